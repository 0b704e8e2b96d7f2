package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ratelimit"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// UserState is the on-chain state of one borrower sub-contract.
type UserState struct {
	CodeVersion int32
	Owner       ton.Address
	Principals  map[models.AssetID]*big.Int
	State       int64
}

// UserReader fetches borrower sub-contract state, used by the resync
// path to reconcile the local account table with the chain.
type UserReader struct {
	client GetMethodRunner
	spacer *ratelimit.CallSpacer
}

// NewUserReader builds the reader.
func NewUserReader(client GetMethodRunner, spacer *ratelimit.CallSpacer) *UserReader {
	return &UserReader{client: client, spacer: spacer}
}

// Fetch runs getAllUserScData on the sub-contract. Result stack:
// code version, owner address slice, principals dict, user state flag.
func (r *UserReader) Fetch(ctx context.Context, contract ton.Address) (*UserState, error) {
	if err := r.spacer.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := r.client.RunGetMethod(ctx, contract, "getAllUserScData")
	if err != nil {
		return nil, fmt.Errorf("fetch user state %s: %w", contract, err)
	}

	version, err := res.Num(0)
	if err != nil {
		return nil, fmt.Errorf("user state version: %w", err)
	}

	ownerCell, err := res.CellAt(1)
	if err != nil {
		return nil, fmt.Errorf("user state owner: %w", err)
	}
	owner, err := ton.LoadAddr(ownerCell.BeginParse())
	if err != nil {
		return nil, fmt.Errorf("user state owner: %w", err)
	}

	state := &UserState{
		CodeVersion: int32(version.Int64()),
		Owner:       owner,
		Principals:  make(map[models.AssetID]*big.Int),
	}

	// Principals dict is absent for untouched accounts.
	if len(res.Stack) > 2 && res.Stack[2].Cell != nil {
		kvs, err := boc.ParseDict(res.Stack[2].Cell, 256)
		if err != nil {
			return nil, fmt.Errorf("user principals: %w", err)
		}
		for _, kv := range kvs {
			v, err := kv.Value.LoadInt(64)
			if err != nil {
				return nil, fmt.Errorf("user principal value: %w", err)
			}
			state.Principals[models.AssetIDFromBig(kv.Key)] = big.NewInt(v)
		}
	}

	if len(res.Stack) > 3 && res.Stack[3].Num != nil {
		state.State = res.Stack[3].Num.Int64()
	}
	return state, nil
}
