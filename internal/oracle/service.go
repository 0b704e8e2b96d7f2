package oracle

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// Snapshot is one validated price set, shared by the validator and
// liquidator ticks. Timestamp is the oldest contributing bundle's
// issue time, the freshness anchor.
type Snapshot struct {
	Prices    map[models.AssetID]*big.Int
	Timestamp int64
	Proof     *boc.Cell
}

// Age returns how old the snapshot is at the given instant.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.Timestamp, 0))
}

// IsFresh reports whether the snapshot is younger than maxAge.
func (s *Snapshot) IsFresh(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) <= maxAge
}

// PriceFor returns the asset price, or an error for assets the oracle
// set does not cover.
func (s *Snapshot) PriceFor(asset models.AssetID) (*big.Int, error) {
	p, ok := s.Prices[asset]
	if !ok {
		return nil, fmt.Errorf("no price for asset %s", asset)
	}
	return p, nil
}

// ProofBase64 returns the serialized proof cell.
func (s *Snapshot) ProofBase64() string {
	return boc.ToBase64(s.Proof)
}

// ErrNoQuorum is returned when too few distinct oracles contributed.
var ErrNoQuorum = errors.New("price quorum not reached")

// ErrNoSnapshot is returned before the first successful refresh.
var ErrNoSnapshot = errors.New("no price snapshot yet")

// Service periodically refreshes the price snapshot.
type Service struct {
	client  *Client
	quorum  int
	refresh time.Duration
	log     *zap.Logger

	current atomic.Pointer[Snapshot]
}

// NewService builds the price service.
func NewService(client *Client, quorum int, refresh time.Duration, log *zap.Logger) *Service {
	return &Service{
		client:  client,
		quorum:  quorum,
		refresh: refresh,
		log:     log.Named("oracle"),
	}
}

// Current returns the latest validated snapshot.
func (s *Service) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Run refreshes prices until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	s.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *Service) refreshOnce(ctx context.Context) {
	bundles, err := s.client.FetchAll(ctx)
	if err != nil {
		s.log.Warn("price fetch failed", zap.Error(err))
		return
	}

	snap, err := Assemble(bundles, s.quorum)
	if err != nil {
		s.log.Warn("price validation failed",
			zap.Int("bundles", len(bundles)), zap.Error(err))
		return
	}

	s.current.Store(snap)
	s.log.Debug("price snapshot refreshed",
		zap.Int64("timestamp", snap.Timestamp),
		zap.Int("assets", len(snap.Prices)))
}

// Assemble validates bundles and folds them into a snapshot: distinct
// oracle quorum, per-oracle signature check, median price per asset,
// oldest timestamp wins as the freshness anchor.
func Assemble(bundles []*Bundle, quorum int) (*Snapshot, error) {
	// One bundle per oracle, newest wins.
	byOracle := make(map[uint32]*Bundle)
	for _, b := range bundles {
		if cur, ok := byOracle[b.OracleID]; !ok || b.Timestamp > cur.Timestamp {
			byOracle[b.OracleID] = b
		}
	}
	if len(byOracle) < quorum {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoQuorum, len(byOracle), quorum)
	}

	var valid []*Bundle
	for _, b := range byOracle {
		if err := verifyBundle(b); err != nil {
			return nil, fmt.Errorf("oracle %d: %w", b.OracleID, err)
		}
		valid = append(valid, b)
	}

	prices := medianPrices(valid)
	if len(prices) == 0 {
		return nil, errors.New("no asset priced by a bundle majority")
	}

	oldest := valid[0].Timestamp
	for _, b := range valid[1:] {
		if b.Timestamp < oldest {
			oldest = b.Timestamp
		}
	}

	pricesCell := BuildPricesCell(prices)
	// The aggregate signature slot carries the oldest bundle's
	// signature; the master recovers contributor keys from its oracle
	// registry.
	var signature []byte
	for _, b := range valid {
		if b.Timestamp == oldest {
			signature = b.Signature
			break
		}
	}

	return &Snapshot{
		Prices:    prices,
		Timestamp: oldest,
		Proof:     BuildProofCell(oldest, pricesCell, signature),
	}, nil
}

// verifyBundle checks the oracle's ed25519 signature over the hash of
// its own prices cell prefixed with the issue timestamp.
func verifyBundle(b *Bundle) error {
	if len(b.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("bad public key length %d", len(b.PublicKey))
	}
	if len(b.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("bad signature length %d", len(b.Signature))
	}

	signed := boc.NewBuilder().
		StoreUint(uint64(b.Timestamp), 64).
		StoreRef(BuildPricesCell(b.Prices)).
		EndCell()

	if !ed25519.Verify(ed25519.PublicKey(b.PublicKey), signed.Hash(), b.Signature) {
		return errors.New("signature verification failed")
	}
	return nil
}

// medianPrices computes the per-asset median over assets priced by a
// strict majority of bundles.
func medianPrices(bundles []*Bundle) map[models.AssetID]*big.Int {
	votes := make(map[models.AssetID][]*big.Int)
	for _, b := range bundles {
		for id, p := range b.Prices {
			votes[id] = append(votes[id], p)
		}
	}

	out := make(map[models.AssetID]*big.Int)
	for id, ps := range votes {
		if len(ps)*2 <= len(bundles) {
			continue
		}
		sort.Slice(ps, func(i, j int) bool { return ps[i].Cmp(ps[j]) < 0 })
		mid := len(ps) / 2
		if len(ps)%2 == 1 {
			out[id] = ps[mid]
		} else {
			avg := new(big.Int).Add(ps[mid-1], ps[mid])
			out[id] = avg.Rsh(avg, 1)
		}
	}
	return out
}

// SignBundle produces the signature an oracle attaches to its bundle.
// Exported for tests and local feed tooling.
func SignBundle(priv ed25519.PrivateKey, timestamp int64, prices map[models.AssetID]*big.Int) []byte {
	signed := boc.NewBuilder().
		StoreUint(uint64(timestamp), 64).
		StoreRef(BuildPricesCell(prices)).
		EndCell()
	return ed25519.Sign(priv, signed.Hash())
}
