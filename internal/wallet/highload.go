// Package wallet drives the highload v2 wallet: it packs a batch of
// internal messages into one signed external message and broadcasts
// it, and reads the wallet's native and jetton balances.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/retry"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// SendMode 3: pay fees separately, ignore action errors.
const sendMode = 3

// Broadcast retry policy.
const (
	broadcastAttempts = 20
	broadcastInterval = 200 * time.Millisecond
)

// MaxBatchSize is the largest number of messages one external message
// carries; the dict key is a signed 16-bit index.
const MaxBatchSize = 254

// Broadcaster is the slice of the chain client the wallet needs.
type Broadcaster interface {
	SendBoc(ctx context.Context, bocBase64 string) error
}

// BatchEntry pairs a task with its outgoing message.
type BatchEntry struct {
	TaskID  int64
	Message *protocol.OutgoingMessage
}

// Wallet is a highload v2 wallet bound to one keypair.
type Wallet struct {
	address   ton.Address
	priv      ed25519.PrivateKey
	subwallet uint32
	timeout   time.Duration
	client    Broadcaster
	log       *zap.Logger
}

// New builds the wallet from its address and hex-encoded 32-byte
// ed25519 seed.
func New(address, secretSeedHex string, subwallet uint32, timeout time.Duration, client Broadcaster, log *zap.Logger) (*Wallet, error) {
	addr, err := ton.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("wallet address: %w", err)
	}
	seed, err := hex.DecodeString(secretSeedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet secret seed must be %d hex-encoded bytes", ed25519.SeedSize)
	}

	return &Wallet{
		address:   addr,
		priv:      ed25519.NewKeyFromSeed(seed),
		subwallet: subwallet,
		timeout:   timeout,
		client:    client,
		log:       log.Named("wallet"),
	}, nil
}

// Address returns the wallet's account address.
func (w *Wallet) Address() ton.Address {
	return w.address
}

// NewQueryID builds a highload query id: expiry unix time in the high
// 32 bits, random nonce in the low 32.
func (w *Wallet) NewQueryID(now time.Time) uint64 {
	var nonce [4]byte
	_, _ = rand.Read(nonce[:])
	expiry := uint64(now.Add(w.timeout).Unix())
	return expiry<<32 | uint64(binary.BigEndian.Uint32(nonce[:]))
}

// Dispatch signs and broadcasts the batch as one external message and
// returns the wallet query id it was sent under. Broadcast is retried
// on a short fixed interval; a batch that cannot be broadcast at all
// is a fatal dispatch failure.
func (w *Wallet) Dispatch(ctx context.Context, entries []BatchEntry) (uint64, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("empty batch")
	}
	if len(entries) > MaxBatchSize {
		return 0, fmt.Errorf("batch of %d exceeds %d messages", len(entries), MaxBatchSize)
	}

	queryID := w.NewQueryID(time.Now())
	external, err := w.BuildExternal(queryID, entries)
	if err != nil {
		return 0, err
	}
	payload := boc.ToBase64(external)

	res := retry.Do(ctx, broadcastAttempts, broadcastInterval, func() error {
		return w.client.SendBoc(ctx, payload)
	})
	if !res.Success {
		return 0, fmt.Errorf("broadcast failed after %d attempts: %w", res.Attempts, res.LastError)
	}

	w.log.Info("batch broadcast",
		zap.Uint64("queryID", queryID),
		zap.Int("messages", len(entries)),
		zap.Int("attempts", res.Attempts))
	return queryID, nil
}

// BuildExternal assembles the signed external message for the batch.
func (w *Wallet) BuildExternal(queryID uint64, entries []BatchEntry) (*boc.Cell, error) {
	dictEntries := make([]boc.DictEntry, 0, len(entries))
	for i, e := range entries {
		v := boc.NewBuilder()
		v.StoreUint(sendMode, 8)
		v.StoreRef(WrapInternal(e.Message))
		dictEntries = append(dictEntries, boc.DictEntry{
			Key:   boc.DictKeyInt(int64(i), 16),
			Value: v,
		})
	}
	dict, err := boc.BuildDict(16, dictEntries)
	if err != nil {
		return nil, fmt.Errorf("build message dict: %w", err)
	}

	body := boc.NewBuilder()
	body.StoreUint(uint64(w.subwallet), 32)
	body.StoreUint(queryID, 64)
	body.StoreMaybeRef(dict)

	unsigned := body.EndCell()
	signature := ed25519.Sign(w.priv, unsigned.Hash())

	signed := boc.NewBuilder()
	signed.StoreBytes(signature)
	signed.StoreSlice(unsigned.BeginParse())

	// ext_in_msg_info$10 src:addr_none dest import_fee:0, no state
	// init, body in a ref.
	ext := boc.NewBuilder()
	ext.StoreUint(2, 2)
	ton.StoreAddrNone(ext)
	ton.StoreAddr(ext, w.address)
	ext.StoreCoins(big.NewInt(0))
	ext.StoreBit(false)
	ext.StoreBit(true)
	ext.StoreRef(signed.EndCell())

	return ext.EndCell(), nil
}

// WrapInternal renders an outgoing message as an int_msg_info cell
// the wallet contract relays verbatim.
func WrapInternal(msg *protocol.OutgoingMessage) *boc.Cell {
	b := boc.NewBuilder()
	b.StoreBit(false) // int_msg_info$0
	b.StoreBit(true)  // ihr_disabled
	b.StoreBit(true)  // bounce
	b.StoreBit(false) // bounced
	ton.StoreAddrNone(b)
	ton.StoreAddr(b, msg.Dest)
	b.StoreCoins(msg.Amount)
	b.StoreBit(false)            // no extra currencies
	b.StoreCoins(big.NewInt(0))  // ihr_fee
	b.StoreCoins(big.NewInt(0))  // fwd_fee
	b.StoreUint(0, 64)           // created_lt
	b.StoreUint(0, 32)           // created_at
	b.StoreBit(false)            // no state init
	b.StoreBit(true)             // body in ref
	b.StoreRef(msg.Body)
	return b.EndCell()
}
