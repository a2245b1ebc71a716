package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/exsim/pkg/num"
)

func basisAt(unit, total, perUnit string, date time.Time) Basis {
	return Basis{
		InitialUnit: unit,
		Total:       num.MustDecimal(total),
		PerUnit:     num.MustDecimal(perUnit),
		TxnID:       "txn",
		Date:        date,
	}
}

func TestConsumeFIFO(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPosition("alice", "BTC", num.MustDecimal("2"), t0, "buy", basisAt("USD", "300", "150", t0))
	p.AddEnter(num.MustDecimal("6"), t0.Add(time.Hour), "buy", basisAt("USD", "1200", "200", t0.Add(time.Hour)))

	exits, err := p.Consume(num.MustDecimal("5"), num.MustDecimal("250"), t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, exits, 2, "one exit per lot drawn from")

	// first lot drained completely, second partially
	assert.True(t, exits[0].Qty.Equal(num.MustDecimal("2")))
	assert.True(t, exits[0].Basis.PerUnit.Equal(num.MustDecimal("150")))
	assert.True(t, exits[1].Qty.Equal(num.MustDecimal("3")))
	assert.True(t, exits[1].Basis.PerUnit.Equal(num.MustDecimal("200")))

	assert.True(t, p.Enters[0].Qty.IsZero())
	assert.True(t, p.Enters[1].Qty.Equal(num.MustDecimal("3")))
	assert.True(t, p.Qty.Equal(num.MustDecimal("3")))

	// pnl: (250-150)*2 + (250-200)*3 = 350
	total := exits[0].PnL().Add(exits[1].PnL())
	assert.True(t, total.Equal(num.MustDecimal("350")))
}

func TestConsumeOverdraw(t *testing.T) {
	t0 := time.Now()
	p := NewPosition("alice", "BTC", num.MustDecimal("2"), t0, "buy", Basis{})

	_, err := p.Consume(num.MustDecimal("3"), num.MustDecimal("100"), t0)
	assert.Error(t, err)
	assert.True(t, p.Qty.Equal(num.MustDecimal("2")), "no lots consumed on error")
	assert.Empty(t, p.Exits)

	_, err = p.Consume(num.MustDecimal("0"), num.MustDecimal("100"), t0)
	assert.Error(t, err)
}

func TestLongTermClassification(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPosition("alice", "BTC", num.MustDecimal("2"), t0, "buy", basisAt("USD", "300", "150", t0))

	shortExits, err := p.Consume(num.One, num.MustDecimal("200"), t0.Add(LongTermHolding-time.Hour))
	require.NoError(t, err)
	assert.False(t, shortExits[0].LongTerm())

	longExits, err := p.Consume(num.One, num.MustDecimal("200"), t0.Add(LongTermHolding))
	require.NoError(t, err)
	assert.True(t, longExits[0].LongTerm())
}

func TestExitBasisAggregation(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	exits := []*Exit{
		{Qty: num.MustDecimal("2"), Basis: basisAt("USD", "300", "150", t1)},
		{Qty: num.MustDecimal("3"), Basis: basisAt("USD", "600", "200", t0)},
	}

	b := ExitBasis(exits, "txn-1", "BTC", t1)
	assert.Equal(t, "USD", b.InitialUnit, "basis unit survives the hop")
	assert.True(t, b.Total.Equal(num.MustDecimal("900")))
	assert.True(t, b.PerUnit.Equal(num.MustDecimal("180")))
	assert.Equal(t, t0, b.Date, "earliest acquisition date wins")
	assert.Equal(t, "txn-1", b.TxnID)
}

func TestExitBasisFallbackUnit(t *testing.T) {
	b := ExitBasis([]*Exit{{Qty: num.One, Basis: Basis{}}}, "txn", "ETH", time.Now())
	assert.Equal(t, "ETH", b.InitialUnit)
}

func TestTaxableEventsSkipZeroBasis(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// deposit lot (no basis) and a bought lot
	p := NewPosition("alice", "BTC", num.MustDecimal("1"), t0, "deposit", Basis{})
	p.AddEnter(num.MustDecimal("1"), t0, "buy", basisAt("USD", "150", "150", t0))

	_, err := p.Consume(num.MustDecimal("2"), num.MustDecimal("200"), t0.Add(time.Hour))
	require.NoError(t, err)

	events := TaxableEvents([]*Position{p})
	require.Len(t, events, 1, "deposit exit carries no cost trail")
	assert.True(t, events[0].PnL.Equal(num.MustDecimal("50")))
	assert.False(t, events[0].LongTerm)
	assert.Equal(t, "capital_gains", events[0].Type)
}
