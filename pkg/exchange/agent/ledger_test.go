package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/exchange/position"
	"github.com/uhyunpark/exsim/pkg/num"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func registerWith(t *testing.T, l *Ledger, base string, assets map[string]decimal.Decimal) *Agent {
	t.Helper()
	a, err := l.Register(base, assets, time.Now())
	require.NoError(t, err)
	return a
}

// snap re-fetches an agent; Get hands out detached snapshots, so a fresh one
// is needed after every mutation.
func snap(t *testing.T, l *Ledger, name string) *Agent {
	t.Helper()
	a, err := l.Get(name)
	require.NoError(t, err)
	return a
}

func TestRegisterGeneratesUniqueNames(t *testing.T) {
	l := newTestLedger(t)

	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"USD": num.MustDecimal("1000")})
	b := registerWith(t, l, "alice", nil)

	assert.True(t, strings.HasPrefix(a.Name, "alice_"))
	assert.NotEqual(t, a.Name, b.Name)

	got, err := l.Get(a.Name)
	require.NoError(t, err)
	assert.True(t, got.Total("USD").Equal(num.MustDecimal("1000")))

	// initial balances arrive as deposit lots with no basis
	p := got.PositionFor("USD")
	require.NotNil(t, p)
	require.Len(t, p.Enters, 1)
	assert.Equal(t, "deposit", p.Enters[0].Type)
	assert.True(t, p.Enters[0].Basis.IsZero())
}

func TestRegisterRejectsBadNames(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Register("", nil, time.Now())
	assert.Error(t, err)
	_, err = l.Register("has:colon", nil, time.Now())
	assert.Error(t, err)
}

func TestFreezeRespectsAvailable(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"USD": num.MustDecimal("1000")})

	require.NoError(t, l.Freeze(a.Name, "USD", num.MustDecimal("600"), num.MustDecimal("0.6"), num.Zero, "order-1"))
	got := snap(t, l, a.Name)
	assert.True(t, got.Available("USD").Equal(num.MustDecimal("399.4")))
	assert.True(t, got.Total("USD").Equal(num.MustDecimal("1000")), "freezing never changes the total")

	// second freeze over the remaining available must fail
	err := l.Freeze(a.Name, "USD", num.MustDecimal("400"), num.Zero, num.Zero, "order-2")
	assert.ErrorIs(t, err, ErrInsufficient)

	ok, err := l.HasCash(a.Name, "USD", num.MustDecimal("399"), num.Zero)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.HasCash(a.Name, "USD", num.MustDecimal("400"), num.Zero)
	require.NoError(t, err)
	assert.False(t, ok, "frozen funds are not spendable")
}

func TestUnfreezeReturnsWholeAllocation(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"USD": num.MustDecimal("1000")})

	require.NoError(t, l.Freeze(a.Name, "USD", num.MustDecimal("600"), num.MustDecimal("0.6"), num.Zero, "order-1"))
	alloc, err := l.Unfreeze(a.Name, "USD", "order-1")
	require.NoError(t, err)
	assert.True(t, alloc.Total().Equal(num.MustDecimal("600.6")))
	assert.True(t, snap(t, l, a.Name).Available("USD").Equal(num.MustDecimal("1000")))

	_, err = l.Unfreeze(a.Name, "USD", "order-1")
	assert.ErrorIs(t, err, ErrNotFrozen)
}

func TestReleaseConsumesPartially(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"USD": num.MustDecimal("1000")})

	require.NoError(t, l.Freeze(a.Name, "USD", num.MustDecimal("600"), num.MustDecimal("0.6"), num.Zero, "order-1"))

	require.NoError(t, l.Release(a.Name, "USD", "order-1", num.MustDecimal("450"), num.MustDecimal("0.45"), num.Zero))
	assert.True(t, snap(t, l, a.Name).FrozenTotal("USD").Equal(num.MustDecimal("150.15")))

	// releasing more than remains frozen is rejected
	err := l.Release(a.Name, "USD", "order-1", num.MustDecimal("200"), num.Zero, num.Zero)
	assert.ErrorIs(t, err, ErrOverUnfreeze)

	// draining it exactly drops the allocation
	require.NoError(t, l.Release(a.Name, "USD", "order-1", num.MustDecimal("150"), num.MustDecimal("0.15"), num.Zero))
	assert.Empty(t, snap(t, l, a.Name).Frozen["USD"])
}

func TestEnterExitAsset(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", nil)
	now := time.Now()

	basis := position.Basis{
		InitialUnit: "USD",
		Total:       num.MustDecimal("450.45"),
		PerUnit:     num.MustDecimal("150.15"),
		TxnID:       "txn-1",
		Date:        now,
	}
	_, err := l.EnterAsset(a.Name, "BTC", num.MustDecimal("3"), now, "buy", basis)
	require.NoError(t, err)
	assert.True(t, snap(t, l, a.Name).Total("BTC").Equal(num.MustDecimal("3")))

	exits, err := l.ExitAsset(a.Name, "BTC", num.MustDecimal("2"), num.MustDecimal("299.7"), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, exits, 1)
	assert.True(t, exits[0].PnL().Equal(num.MustDecimal("299.1")))
	assert.True(t, snap(t, l, a.Name).Total("BTC").Equal(num.MustDecimal("1")))

	// exit beyond the balance
	_, err = l.ExitAsset(a.Name, "BTC", num.MustDecimal("2"), num.Zero, now)
	assert.ErrorIs(t, err, ErrInsufficient)

	// frozen balance blocks exits too
	require.NoError(t, l.Freeze(a.Name, "BTC", num.One, num.Zero, num.Zero, "order-1"))
	_, err = l.ExitAsset(a.Name, "BTC", num.One, num.Zero, now)
	assert.ErrorIs(t, err, ErrInsufficient)
}

func TestSnapshotsAreDetached(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"USD": num.MustDecimal("1000")})

	before := snap(t, l, a.Name)
	require.NoError(t, l.Freeze(a.Name, "USD", num.MustDecimal("600"), num.Zero, num.Zero, "order-1"))
	_, err := l.EnterAsset(a.Name, "BTC", num.One, time.Now(), "buy", position.Basis{})
	require.NoError(t, err)

	// the earlier snapshot never observes later mutations
	assert.True(t, before.Available("USD").Equal(num.MustDecimal("1000")))
	assert.True(t, before.Total("BTC").IsZero())
	assert.Nil(t, before.PositionFor("BTC"))

	after := snap(t, l, a.Name)
	assert.True(t, after.Available("USD").Equal(num.MustDecimal("400")))
	assert.True(t, after.Total("BTC").Equal(num.One))

	// and writes to a snapshot never reach the ledger
	after.Assets["USD"] = num.Zero
	after.Frozen["USD"] = nil
	assert.True(t, snap(t, l, a.Name).Total("USD").Equal(num.MustDecimal("1000")))
	assert.True(t, snap(t, l, a.Name).FrozenTotal("USD").Equal(num.MustDecimal("600")))
}

func TestExitAssetWithoutPosition(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", nil)

	_, err := l.ExitAsset(a.Name, "BTC", num.One, num.Zero, time.Now())
	assert.ErrorIs(t, err, ErrInsufficient)
}

func TestHoldingAndOutstanding(t *testing.T) {
	l := newTestLedger(t)
	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"BTC": num.MustDecimal("2")})
	b := registerWith(t, l, "bob", map[string]decimal.Decimal{"BTC": num.MustDecimal("3")})
	registerWith(t, l, "carol", nil)

	holding := l.Holding("BTC")
	assert.Len(t, holding, 2, "zero holders are skipped")
	assert.True(t, holding[a.Name].Equal(num.MustDecimal("2")))
	assert.True(t, holding[b.Name].Equal(num.MustDecimal("3")))
	assert.True(t, l.OutstandingUnits("BTC").Equal(num.MustDecimal("5")))
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	l, err := NewLedger(dir, zap.NewNop())
	require.NoError(t, err)
	a := registerWith(t, l, "alice", map[string]decimal.Decimal{"USD": num.MustDecimal("1000")})
	require.NoError(t, l.Freeze(a.Name, "USD", num.MustDecimal("100"), num.Zero, num.Zero, "order-1"))
	require.NoError(t, l.AppendTransaction(a.Name, TransactionRecord{
		ID: "leg-1", Type: "buy", Base: "BTC", Quote: "USD",
		Qty: num.One, Price: num.MustDecimal("150"), QuoteFlow: num.MustDecimal("-150.15"), DT: now,
	}))
	require.NoError(t, l.Close())

	reopened, err := NewLedger(dir, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(a.Name)
	require.NoError(t, err)
	assert.True(t, got.Total("USD").Equal(num.MustDecimal("1000")))
	assert.True(t, got.Available("USD").Equal(num.MustDecimal("900")), "escrow survives restarts")
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, "leg-1", got.Transactions[0].ID)
	require.NotNil(t, got.PositionFor("USD"))
}
