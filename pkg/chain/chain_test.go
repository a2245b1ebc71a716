package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/num"
)

func addTxn(t *testing.T, bc *Blockchain, asset, sender, recipient, amount string) *Transaction {
	t.Helper()
	txn, err := bc.AddTransaction(asset, num.Zero, num.MustDecimal(amount), sender, recipient, time.Now())
	require.NoError(t, err)
	return txn
}

func TestAddTransaction(t *testing.T) {
	bc := NewBlockchain(zap.NewNop())

	txn := addTxn(t, bc, "BTC", "alice", "bob", "1")
	assert.NotEmpty(t, txn.ID)
	assert.False(t, txn.Confirmed)

	// identical payloads still get distinct ids
	dup, err := bc.AddTransaction("BTC", num.Zero, num.One, "alice", "bob", txn.DT)
	require.NoError(t, err)
	assert.NotEqual(t, txn.ID, dup.ID)

	_, err = bc.AddTransaction("BTC", num.Zero, num.Zero, "alice", "bob", time.Now())
	assert.Error(t, err, "zero amount rejected")
	_, err = bc.AddTransaction("BTC", num.Zero, num.MustDecimal("-1"), "alice", "bob", time.Now())
	assert.Error(t, err)
}

func TestGetTransaction(t *testing.T) {
	bc := NewBlockchain(zap.NewNop())
	txn := addTxn(t, bc, "BTC", "alice", "bob", "1")

	got, err := bc.GetTransaction("BTC", txn.ID)
	require.NoError(t, err)
	assert.False(t, got.Confirmed, "mempool txn is not final")

	require.NoError(t, bc.Confirm(txn.ID))
	got, err = bc.GetTransaction("BTC", txn.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)

	_, err = bc.GetTransaction("BTC", "0xmissing")
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestConfirmMovesToChain(t *testing.T) {
	bc := NewBlockchain(zap.NewNop())
	first := addTxn(t, bc, "BTC", "alice", "bob", "1")
	second := addTxn(t, bc, "BTC", "bob", "carol", "2")
	other := addTxn(t, bc, "USD", "alice", "bob", "150")

	assert.Len(t, bc.GetMempool(), 3)
	assert.Len(t, bc.GetPendingTransactions("BTC"), 2)

	require.NoError(t, bc.Confirm(first.ID))
	require.NoError(t, bc.Confirm(other.ID))

	assert.Len(t, bc.GetMempool(), 1)
	confirmed := bc.GetConfirmedTransactions("BTC")
	require.Len(t, confirmed, 1)
	assert.Equal(t, first.ID, confirmed[0].ID)
	assert.Len(t, bc.GetConfirmedTransactions("USD"), 1)
	assert.Equal(t, second.ID, bc.GetPendingTransactions("BTC")[0].ID)

	assert.ErrorIs(t, bc.Confirm(first.ID), ErrTxNotFound, "double confirm")
}

func TestMinerConfirmsAfterDelay(t *testing.T) {
	bc := NewBlockchain(zap.NewNop())
	miner := NewMiner(bc, 2, zap.NewNop())
	txn := addTxn(t, bc, "BTC", "alice", "bob", "1")

	assert.Empty(t, miner.Tick(), "tick 1: age 1, delay 2")
	assert.Empty(t, miner.Tick(), "tick 2: age 2, delay 2")

	confirmed := miner.Tick()
	require.Len(t, confirmed, 1)
	assert.Equal(t, txn.ID, confirmed[0])

	got, err := bc.GetTransaction("BTC", txn.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
}

func TestMinerZeroDelayConfirmsNextTick(t *testing.T) {
	bc := NewBlockchain(zap.NewNop())
	miner := NewMiner(bc, 0, zap.NewNop())
	addTxn(t, bc, "BTC", "alice", "bob", "1")

	assert.Len(t, miner.Tick(), 1)
	assert.Empty(t, bc.GetMempool())
}
