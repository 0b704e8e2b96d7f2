package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
)

// ToncenterClient talks JSON-RPC to a toncenter instance: contract get
// methods, balances, account state and message broadcast.
type ToncenterClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewToncenterClient builds a client for the given JSON-RPC endpoint.
func NewToncenterClient(endpoint, apiKey string) *ToncenterClient {
	return &ToncenterClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	ID      int         `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   int             `json:"code"`
}

func (c *ToncenterClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{ID: 1, JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("rpc %s status %d: %s", method, resp.StatusCode, truncate(body, 256))
	}
	if !envelope.OK {
		return fmt.Errorf("rpc %s failed (code %d): %s", method, envelope.Code, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode rpc %s result: %w", method, err)
		}
	}
	return nil
}

// StackValue is one element of a get method result stack.
type StackValue struct {
	Type string
	Num  *big.Int
	Cell *boc.Cell
}

// RunResult is the outcome of a contract get method call.
type RunResult struct {
	ExitCode int
	Stack    []StackValue
}

// Num returns the i-th stack element as an integer.
func (r *RunResult) Num(i int) (*big.Int, error) {
	if i >= len(r.Stack) || r.Stack[i].Num == nil {
		return nil, fmt.Errorf("stack[%d] is not a number", i)
	}
	return r.Stack[i].Num, nil
}

// CellAt returns the i-th stack element as a cell.
func (r *RunResult) CellAt(i int) (*boc.Cell, error) {
	if i >= len(r.Stack) || r.Stack[i].Cell == nil {
		return nil, fmt.Errorf("stack[%d] is not a cell", i)
	}
	return r.Stack[i].Cell, nil
}

type runGetMethodResult struct {
	ExitCode int               `json:"exit_code"`
	Stack    []json.RawMessage `json:"stack"`
}

// RunGetMethod executes a contract get method with an empty argument
// stack and parses the result stack.
func (c *ToncenterClient) RunGetMethod(ctx context.Context, addr Address, method string) (*RunResult, error) {
	params := map[string]interface{}{
		"address": addr.ToRaw(),
		"method":  method,
		"stack":   []interface{}{},
	}

	var raw runGetMethodResult
	if err := c.call(ctx, "runGetMethod", params, &raw); err != nil {
		return nil, err
	}
	if raw.ExitCode != 0 && raw.ExitCode != 1 {
		return &RunResult{ExitCode: raw.ExitCode}, fmt.Errorf("get method %s exit code %d", method, raw.ExitCode)
	}

	out := &RunResult{ExitCode: raw.ExitCode}
	for i, item := range raw.Stack {
		v, err := parseStackValue(item)
		if err != nil {
			return nil, fmt.Errorf("stack[%d]: %w", i, err)
		}
		out.Stack = append(out.Stack, v)
	}
	return out, nil
}

func parseStackValue(raw json.RawMessage) (StackValue, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return StackValue{}, fmt.Errorf("malformed stack entry: %s", truncate(raw, 64))
	}

	var kind string
	if err := json.Unmarshal(pair[0], &kind); err != nil {
		return StackValue{}, err
	}

	switch kind {
	case "num":
		var numStr string
		if err := json.Unmarshal(pair[1], &numStr); err != nil {
			return StackValue{}, err
		}
		v := new(big.Int)
		neg := strings.HasPrefix(numStr, "-")
		numStr = strings.TrimPrefix(strings.TrimPrefix(numStr, "-"), "0x")
		if _, ok := v.SetString(numStr, 16); !ok {
			return StackValue{}, fmt.Errorf("bad stack number %q", numStr)
		}
		if neg {
			v.Neg(v)
		}
		return StackValue{Type: kind, Num: v}, nil

	case "cell", "slice":
		var payload struct {
			Bytes string `json:"bytes"`
		}
		if err := json.Unmarshal(pair[1], &payload); err != nil {
			return StackValue{}, err
		}
		cell, err := boc.FromBase64(payload.Bytes)
		if err != nil {
			return StackValue{}, fmt.Errorf("decode stack cell: %w", err)
		}
		return StackValue{Type: kind, Cell: cell}, nil

	default:
		// Tuples and nulls never appear on the stacks we read.
		return StackValue{Type: kind}, nil
	}
}

// GetBalance returns the account balance in nanoton.
func (c *ToncenterClient) GetBalance(ctx context.Context, addr Address) (*big.Int, error) {
	var balanceStr string
	if err := c.call(ctx, "getAddressBalance", map[string]string{"address": addr.ToRaw()}, &balanceStr); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(balanceStr, 10)
	if !ok {
		return nil, fmt.Errorf("bad balance %q", balanceStr)
	}
	return v, nil
}

// GetAddressState returns the account state: "active", "frozen" or
// "uninitialized".
func (c *ToncenterClient) GetAddressState(ctx context.Context, addr Address) (string, error) {
	var state string
	if err := c.call(ctx, "getAddressState", map[string]string{"address": addr.ToRaw()}, &state); err != nil {
		return "", err
	}
	return state, nil
}

// SendBoc broadcasts a serialized external message.
func (c *ToncenterClient) SendBoc(ctx context.Context, bocBase64 string) error {
	return c.call(ctx, "sendBoc", map[string]string{"boc": bocBase64}, nil)
}
