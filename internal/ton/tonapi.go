package ton

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Transaction is one account transaction as returned by tonapi.
type Transaction struct {
	Hash    string    `json:"hash"`
	LT      uint64    `json:"lt"`
	Utime   int64     `json:"utime"`
	Success bool      `json:"success"`
	Aborted bool      `json:"aborted"`
	InMsg   *Message  `json:"in_msg"`
	OutMsgs []Message `json:"out_msgs"`
}

// Message is a transaction inbound or outbound message.
type Message struct {
	OpCode      string      `json:"op_code"`
	Value       int64       `json:"value"`
	Source      *AccountRef `json:"source"`
	Destination *AccountRef `json:"destination"`
	RawBody     string      `json:"raw_body"`
}

// AccountRef identifies a message counterparty by raw address.
type AccountRef struct {
	Address string `json:"address"`
}

// Op parses the message op code ("0x00000001") into its numeric form.
// Messages without a body report op 0.
func (m *Message) Op() uint32 {
	if m == nil || m.OpCode == "" {
		return 0
	}
	v, err := strconv.ParseUint(m.OpCode, 0, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// SourceAddress parses the raw source account address. The second
// return is false for external messages with no source.
func (m *Message) SourceAddress() (Address, bool) {
	if m == nil || m.Source == nil || m.Source.Address == "" {
		return Address{}, false
	}
	a, err := ParseAddress(m.Source.Address)
	if err != nil {
		return Address{}, false
	}
	return a, true
}

type txPage struct {
	Transactions []Transaction `json:"transactions"`
}

// TonAPIClient fetches account transaction history from a tonapi
// instance.
type TonAPIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTonAPIClient builds a client for the given base URL. The API key
// is optional and sent as a bearer token when present.
func NewTonAPIClient(baseURL, apiKey string) *TonAPIClient {
	return &TonAPIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAccountTransactions returns up to limit transactions of the
// account strictly older than beforeLT. beforeLT zero means the most
// recent page.
func (c *TonAPIClient) GetAccountTransactions(ctx context.Context, account Address, beforeLT uint64, limit int) ([]Transaction, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if beforeLT > 0 {
		q.Set("before_lt", strconv.FormatUint(beforeLT, 10))
	}

	endpoint := fmt.Sprintf("%s/v2/blockchain/accounts/%s/transactions?%s",
		c.baseURL, url.PathEscape(account.ToRaw()), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tonapi request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tonapi request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tonapi response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tonapi status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var page txPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode tonapi response: %w", err)
	}
	return page.Transactions, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
