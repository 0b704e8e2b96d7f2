package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

type testOracle struct {
	id   uint32
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestOracle(t *testing.T, id uint32) *testOracle {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &testOracle{id: id, pub: pub, priv: priv}
}

func (o *testOracle) bundle(timestamp int64, prices map[models.AssetID]*big.Int) *Bundle {
	return &Bundle{
		OracleID:  o.id,
		Timestamp: timestamp,
		Prices:    prices,
		Signature: SignBundle(o.priv, timestamp, prices),
		PublicKey: o.pub,
	}
}

func testPrices(ton, usdt int64) map[models.AssetID]*big.Int {
	return map[models.AssetID]*big.Int{
		models.AssetIDFromSymbol("TON"):  big.NewInt(ton),
		models.AssetIDFromSymbol("USDT"): big.NewInt(usdt),
	}
}

func TestAssembleQuorum(t *testing.T) {
	now := time.Now().Unix()
	a := newTestOracle(t, 1)
	b := newTestOracle(t, 2)
	c := newTestOracle(t, 3)

	bundles := []*Bundle{
		a.bundle(now, testPrices(5_000_000_000, 1_000_000_000)),
		b.bundle(now-5, testPrices(5_100_000_000, 1_000_000_000)),
		c.bundle(now-2, testPrices(4_900_000_000, 1_000_000_000)),
	}

	snap, err := Assemble(bundles, 3)
	require.NoError(t, err)

	// Median TON price, oldest timestamp.
	tonID := models.AssetIDFromSymbol("TON")
	price, err := snap.PriceFor(tonID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000_000), price.Int64())
	assert.Equal(t, now-5, snap.Timestamp)
	require.NotNil(t, snap.Proof)
	assert.NotEmpty(t, snap.ProofBase64())
}

func TestAssembleBelowQuorum(t *testing.T) {
	now := time.Now().Unix()
	a := newTestOracle(t, 1)

	_, err := Assemble([]*Bundle{
		a.bundle(now, testPrices(5_000_000_000, 1_000_000_000)),
	}, 3)
	assert.ErrorIs(t, err, ErrNoQuorum)
}

func TestAssembleDedupesPerOracle(t *testing.T) {
	// Two bundles from the same oracle count once, and the newer one
	// wins.
	now := time.Now().Unix()
	a := newTestOracle(t, 1)

	_, err := Assemble([]*Bundle{
		a.bundle(now-60, testPrices(4_000_000_000, 1_000_000_000)),
		a.bundle(now, testPrices(5_000_000_000, 1_000_000_000)),
	}, 2)
	assert.ErrorIs(t, err, ErrNoQuorum)
}

func TestAssembleRejectsBadSignature(t *testing.T) {
	now := time.Now().Unix()
	a := newTestOracle(t, 1)
	b := newTestOracle(t, 2)

	good := a.bundle(now, testPrices(5_000_000_000, 1_000_000_000))
	tampered := b.bundle(now, testPrices(5_000_000_000, 1_000_000_000))
	tampered.Prices[models.AssetIDFromSymbol("TON")] = big.NewInt(1)

	_, err := Assemble([]*Bundle{good, tampered}, 2)
	assert.Error(t, err)
}

func TestAssembleDropsMinorityAssets(t *testing.T) {
	now := time.Now().Unix()
	a := newTestOracle(t, 1)
	b := newTestOracle(t, 2)
	c := newTestOracle(t, 3)

	stID := models.AssetIDFromSymbol("stTON")
	withExtra := testPrices(5_000_000_000, 1_000_000_000)
	withExtra[stID] = big.NewInt(5_500_000_000)

	snap, err := Assemble([]*Bundle{
		a.bundle(now, withExtra),
		b.bundle(now, testPrices(5_000_000_000, 1_000_000_000)),
		c.bundle(now, testPrices(5_000_000_000, 1_000_000_000)),
	}, 3)
	require.NoError(t, err)

	// Only one of three oracles priced stTON.
	_, err = snap.PriceFor(stID)
	assert.Error(t, err)
}

func TestAssembleEvenMedian(t *testing.T) {
	now := time.Now().Unix()
	a := newTestOracle(t, 1)
	b := newTestOracle(t, 2)

	snap, err := Assemble([]*Bundle{
		a.bundle(now, testPrices(4_000_000_000, 1_000_000_000)),
		b.bundle(now, testPrices(6_000_000_000, 1_000_000_000)),
	}, 2)
	require.NoError(t, err)

	price, err := snap.PriceFor(models.AssetIDFromSymbol("TON"))
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000_000), price.Int64())
}

func TestSnapshotFreshness(t *testing.T) {
	now := time.Now()
	snap := &Snapshot{Timestamp: now.Add(-30 * time.Second).Unix()}

	assert.True(t, snap.IsFresh(now, 136*time.Second))
	assert.False(t, snap.IsFresh(now, 10*time.Second))
}

func TestPricesCellRoundtrip(t *testing.T) {
	prices := testPrices(5_000_000_000, 1_000_000_000)

	cell := BuildPricesCell(prices)
	parsed, err := ParsePricesCell(cell)
	require.NoError(t, err)

	require.Len(t, parsed, len(prices))
	for id, p := range prices {
		require.Contains(t, parsed, id)
		assert.Zero(t, p.Cmp(parsed[id]))
	}
}

func TestPricesCellDeterministic(t *testing.T) {
	a := BuildPricesCell(testPrices(5_000_000_000, 1_000_000_000))
	b := BuildPricesCell(testPrices(5_000_000_000, 1_000_000_000))
	assert.Equal(t, a.Hash(), b.Hash())
}
