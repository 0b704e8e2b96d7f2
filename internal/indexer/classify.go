// Package indexer follows the master contract's transaction history:
// it classifies inbound operations, schedules account resyncs for
// position-changing ones and reconciles liquidation settlements.
package indexer

import (
	"encoding/hex"
	"fmt"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// txKind is the indexer's classification of one master transaction.
type txKind int

const (
	kindIgnore txKind = iota
	// kindMutation changes a user position: supply, withdraw,
	// liquidate, jetton notification or the debug principal op.
	kindMutation
	// kindSatisfied and kindUnsatisfied settle a liquidation.
	kindSatisfied
	kindUnsatisfied
)

// classified is the result of classifying one transaction.
type classified struct {
	kind txKind

	// Mutations: the user wallet and its sub-account contract.
	wallet   ton.Address
	contract ton.Address

	// Settlements.
	satisfied   *protocol.SatisfiedReport
	unsatisfied *protocol.UnsatisfiedReport
}

// bodyCell decodes a message raw body into a cell.
func bodyCell(rawBody string) (*boc.Cell, error) {
	if rawBody == "" {
		return nil, fmt.Errorf("empty message body")
	}
	raw, err := hex.DecodeString(rawBody)
	if err != nil {
		return nil, fmt.Errorf("decode message body hex: %w", err)
	}
	return boc.FromBOC(raw)
}

// classify inspects one master transaction.
func classify(tx *ton.Transaction, master ton.Address) (*classified, error) {
	if tx.InMsg == nil {
		return &classified{kind: kindIgnore}, nil
	}

	switch op := tx.InMsg.Op(); op {
	case protocol.OpSupply, protocol.OpWithdraw, protocol.OpLiquidate, protocol.OpDebugPrincipals:
		return classifyMutation(tx, op)

	case protocol.OpJettonTransferNotification:
		return classifyJettonNotify(tx, master)

	case protocol.OpLiquidateSatisfied:
		body, err := bodyCell(tx.InMsg.RawBody)
		if err != nil {
			return nil, fmt.Errorf("satisfied settlement body: %w", err)
		}
		report, err := protocol.ParseSatisfiedReport(body)
		if err != nil {
			return nil, err
		}
		return &classified{kind: kindSatisfied, satisfied: report}, nil

	case protocol.OpLiquidateUnsatisfied:
		body, err := bodyCell(tx.InMsg.RawBody)
		if err != nil {
			return nil, fmt.Errorf("unsatisfied settlement body: %w", err)
		}
		report, err := protocol.ParseUnsatisfiedReport(body)
		if err != nil {
			return nil, err
		}
		return &classified{kind: kindUnsatisfied, unsatisfied: report}, nil

	case protocol.OpSupplySuccess, protocol.OpWithdrawCollateralized:
		// Principal changed on the user side; resync like a mutation.
		return classifyMutation(tx, op)

	default:
		return &classified{kind: kindIgnore}, nil
	}
}

// classifyMutation extracts the user wallet from a position-changing
// operation. The master forwards every such operation to exactly one
// sub-account contract, so the single outbound message names it.
func classifyMutation(tx *ton.Transaction, op uint32) (*classified, error) {
	if !tx.Success || len(tx.OutMsgs) != 1 {
		return &classified{kind: kindIgnore}, nil
	}

	body, err := bodyCell(tx.InMsg.RawBody)
	if err != nil {
		return nil, fmt.Errorf("mutation body (op 0x%x): %w", op, err)
	}
	s := body.BeginParse()
	if _, err := s.LoadUint(32); err != nil {
		return nil, err
	}
	if _, err := s.LoadUint(64); err != nil {
		return nil, err
	}
	wallet, err := ton.LoadAddr(s)
	if err != nil {
		return nil, fmt.Errorf("mutation user address (op 0x%x): %w", op, err)
	}

	contract, err := outDestination(tx)
	if err != nil {
		return nil, err
	}
	return &classified{kind: kindMutation, wallet: wallet, contract: contract}, nil
}

// classifyJettonNotify extracts the user wallet from a jetton
// transfer notification. Notifications whose sender is a protocol
// contract rather than a user, and notifications without a forward
// payload, are not user actions.
func classifyJettonNotify(tx *ton.Transaction, master ton.Address) (*classified, error) {
	if !tx.Success || len(tx.OutMsgs) != 1 {
		return &classified{kind: kindIgnore}, nil
	}

	body, err := bodyCell(tx.InMsg.RawBody)
	if err != nil {
		return nil, fmt.Errorf("jetton notify body: %w", err)
	}
	s := body.BeginParse()
	if _, err := s.LoadUint(32); err != nil {
		return nil, err
	}
	if _, err := s.LoadUint(64); err != nil {
		return nil, err
	}
	if _, err := s.LoadCoins(); err != nil {
		return nil, fmt.Errorf("jetton notify amount: %w", err)
	}
	sender, err := ton.LoadAddr(s)
	if err != nil {
		return nil, fmt.Errorf("jetton notify sender: %w", err)
	}

	contract, err := outDestination(tx)
	if err != nil {
		return nil, err
	}
	if sender.Equal(master) || sender.Equal(contract) {
		return &classified{kind: kindIgnore}, nil
	}

	// A user deposit always carries the forward payload with the
	// wrapped operation.
	if s.BitsLeft() == 0 && s.RefsLeft() == 0 {
		return &classified{kind: kindIgnore}, nil
	}

	return &classified{kind: kindMutation, wallet: sender, contract: contract}, nil
}

func outDestination(tx *ton.Transaction) (ton.Address, error) {
	out := tx.OutMsgs[0]
	if out.Destination == nil || out.Destination.Address == "" {
		return ton.Address{}, fmt.Errorf("out message without destination in tx %s", tx.Hash)
	}
	return ton.ParseAddress(out.Destination.Address)
}
