package indexer

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

const (
	testMasterAddr   = "0:65127b1f64cba2a5b035bfacfbbd4a3c9eeffee2a848bd0ef0e835cc2b3cb1f9"
	testUserWallet   = "0:17a3a92992aabea785a7a090985a265cd31f323d849da51239737e321fb05569"
	testUserContract = "0:3333333333333333333333333333333333333333333333333333333333333333"
)

func mustAddr(t *testing.T, raw string) ton.Address {
	t.Helper()
	a, err := ton.ParseAddress(raw)
	require.NoError(t, err)
	return a
}

func rawBody(c *boc.Cell) string {
	return hex.EncodeToString(boc.ToBOC(c))
}

// mutationBody builds an op/query_id/user_address prefix the way the
// master's position-changing operations lay it out.
func mutationBody(t *testing.T, op uint32, wallet ton.Address) string {
	t.Helper()
	b := boc.NewBuilder().
		StoreUint(uint64(op), 32).
		StoreUint(42, 64)
	ton.StoreAddr(b, wallet)
	return rawBody(b.EndCell())
}

func jettonNotifyBody(t *testing.T, sender ton.Address, withPayload bool) string {
	t.Helper()
	b := boc.NewBuilder().
		StoreUint(uint64(protocol.OpJettonTransferNotification), 32).
		StoreUint(42, 64).
		StoreCoins(big.NewInt(1_000_000))
	ton.StoreAddr(b, sender)
	if withPayload {
		payload := boc.NewBuilder().StoreUint(uint64(protocol.OpSupply), 32).EndCell()
		b.StoreRef(payload)
	}
	return rawBody(b.EndCell())
}

func mutationTx(t *testing.T, op uint32, body string) *ton.Transaction {
	t.Helper()
	return &ton.Transaction{
		Hash:    "deadbeef",
		LT:      48000001,
		Utime:   1_755_000_000,
		Success: true,
		InMsg: &ton.Message{
			OpCode:  fmt.Sprintf("0x%08x", op),
			RawBody: body,
		},
		OutMsgs: []ton.Message{
			{Destination: &ton.AccountRef{Address: testUserContract}},
		},
	}
}

func TestClassifyMutationOps(t *testing.T) {
	master := mustAddr(t, testMasterAddr)
	wallet := mustAddr(t, testUserWallet)

	for _, op := range []uint32{
		protocol.OpSupply,
		protocol.OpWithdraw,
		protocol.OpLiquidate,
		protocol.OpDebugPrincipals,
		protocol.OpSupplySuccess,
		protocol.OpWithdrawCollateralized,
	} {
		tx := mutationTx(t, op, mutationBody(t, op, wallet))
		c, err := classify(tx, master)
		require.NoError(t, err, "op 0x%x", op)
		assert.Equal(t, kindMutation, c.kind, "op 0x%x", op)
		assert.True(t, c.wallet.Equal(wallet), "op 0x%x", op)
		assert.True(t, c.contract.Equal(mustAddr(t, testUserContract)), "op 0x%x", op)
	}
}

func TestClassifyIgnoresFailedAndFanout(t *testing.T) {
	master := mustAddr(t, testMasterAddr)
	wallet := mustAddr(t, testUserWallet)

	failed := mutationTx(t, protocol.OpSupply, mutationBody(t, protocol.OpSupply, wallet))
	failed.Success = false
	c, err := classify(failed, master)
	require.NoError(t, err)
	assert.Equal(t, kindIgnore, c.kind)

	fanout := mutationTx(t, protocol.OpSupply, mutationBody(t, protocol.OpSupply, wallet))
	fanout.OutMsgs = append(fanout.OutMsgs, fanout.OutMsgs[0])
	c, err = classify(fanout, master)
	require.NoError(t, err)
	assert.Equal(t, kindIgnore, c.kind)

	noIn := &ton.Transaction{Hash: "cafe", Success: true}
	c, err = classify(noIn, master)
	require.NoError(t, err)
	assert.Equal(t, kindIgnore, c.kind)

	unknown := mutationTx(t, 0xdeadbeef, "")
	c, err = classify(unknown, master)
	require.NoError(t, err)
	assert.Equal(t, kindIgnore, c.kind)
}

func TestClassifyJettonNotify(t *testing.T) {
	master := mustAddr(t, testMasterAddr)
	wallet := mustAddr(t, testUserWallet)

	tx := mutationTx(t, protocol.OpJettonTransferNotification, jettonNotifyBody(t, wallet, true))
	c, err := classify(tx, master)
	require.NoError(t, err)
	assert.Equal(t, kindMutation, c.kind)
	assert.True(t, c.wallet.Equal(wallet))
	assert.True(t, c.contract.Equal(mustAddr(t, testUserContract)))

	// Notification from the master itself is a protocol-internal hop.
	fromMaster := mutationTx(t, protocol.OpJettonTransferNotification, jettonNotifyBody(t, master, true))
	c, err = classify(fromMaster, master)
	require.NoError(t, err)
	assert.Equal(t, kindIgnore, c.kind)

	// No forward payload means a plain transfer, not a deposit.
	bare := mutationTx(t, protocol.OpJettonTransferNotification, jettonNotifyBody(t, wallet, false))
	c, err = classify(bare, master)
	require.NoError(t, err)
	assert.Equal(t, kindIgnore, c.kind)
}

func TestClassifySatisfiedSettlement(t *testing.T) {
	master := mustAddr(t, testMasterAddr)
	user := mustAddr(t, testUserWallet)
	liquidator := mustAddr(t, testUserContract)
	loan := models.AssetIDFromSymbol("USDT")
	collateral := models.AssetIDFromSymbol("TON")

	detail := boc.NewBuilder().
		StoreUint(119_047_619, 64).
		StoreUint(119_047_619, 64).
		StoreUint(0, 64).
		StoreUint(1_000_000, 64).
		StoreBigUint(collateral.Big(), 256).
		StoreUint(24_249_999_990, 64).
		StoreUint(24_249_999_990, 64).
		EndCell()
	report := boc.NewBuilder().
		StoreCoins(big.NewInt(6)).
		StoreMaybeRef(nil).
		StoreInt(0, 2).
		StoreUint(uint64(protocol.OpLiquidateSatisfiedReport), 32).
		StoreUint(77, 64).
		StoreRef(detail).
		EndCell()
	b := boc.NewBuilder().
		StoreUint(uint64(protocol.OpLiquidateSatisfied), 32).
		StoreUint(77, 64)
	ton.StoreAddr(b, user)
	ton.StoreAddr(b, liquidator)
	b.StoreBigUint(loan.Big(), 256).StoreRef(report)

	tx := mutationTx(t, protocol.OpLiquidateSatisfied, rawBody(b.EndCell()))
	c, err := classify(tx, master)
	require.NoError(t, err)
	require.Equal(t, kindSatisfied, c.kind)
	require.NotNil(t, c.satisfied)
	assert.Equal(t, uint64(77), c.satisfied.QueryID)
	assert.True(t, c.satisfied.Liquidator.Equal(liquidator))
	assert.Equal(t, loan, c.satisfied.TransferredAsset)
	assert.Equal(t, collateral, c.satisfied.CollateralAsset)
	assert.Equal(t, 0, c.satisfied.CollateralRewardAmount.Cmp(big.NewInt(24_249_999_990)))
}

func TestClassifyUnsatisfiedSettlement(t *testing.T) {
	master := mustAddr(t, testMasterAddr)
	user := mustAddr(t, testUserWallet)
	liquidator := mustAddr(t, testUserContract)
	loan := models.AssetIDFromSymbol("USDT")
	collateral := models.AssetIDFromSymbol("TON")

	detail := boc.NewBuilder().
		StoreUint(119_047_619, 64).
		StoreBigUint(collateral.Big(), 256).
		StoreUint(24_249_999_990, 64).
		StoreMaybeRef(nil).
		StoreUint(uint64(protocol.ErrNotLiquidatable), 32).
		EndCell()
	b := boc.NewBuilder().
		StoreUint(uint64(protocol.OpLiquidateUnsatisfied), 32).
		StoreUint(78, 64)
	ton.StoreAddr(b, user)
	ton.StoreAddr(b, liquidator)
	b.StoreBigUint(loan.Big(), 256).StoreRef(detail)

	tx := mutationTx(t, protocol.OpLiquidateUnsatisfied, rawBody(b.EndCell()))
	c, err := classify(tx, master)
	require.NoError(t, err)
	require.Equal(t, kindUnsatisfied, c.kind)
	require.NotNil(t, c.unsatisfied)
	assert.Equal(t, uint64(78), c.unsatisfied.QueryID)
	assert.Equal(t, protocol.ErrNotLiquidatable, c.unsatisfied.ErrorCode)
	assert.Nil(t, c.unsatisfied.Detail)
}

func TestClassifyCorruptBody(t *testing.T) {
	master := mustAddr(t, testMasterAddr)

	tx := mutationTx(t, protocol.OpSupply, "zz-not-hex")
	_, err := classify(tx, master)
	assert.Error(t, err)

	short := mutationTx(t, protocol.OpLiquidateSatisfied,
		rawBody(boc.NewBuilder().StoreUint(uint64(protocol.OpLiquidateSatisfied), 32).EndCell()))
	_, err = classify(short, master)
	assert.Error(t, err)
}
