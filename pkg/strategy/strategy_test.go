package strategy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/exsim/pkg/num"
)

func viewWith(bid, ask, mid, cash, holding string) MarketView {
	return MarketView{
		Ticker:   "BTCUSD",
		BestBid:  num.MustDecimal(bid),
		BestAsk:  num.MustDecimal(ask),
		Midprice: num.MustDecimal(mid),
		Last:     num.MustDecimal(mid),
		Cash:     num.MustDecimal(cash),
		Holding:  num.MustDecimal(holding),
		Now:      time.Now(),
	}
}

func TestMakerQuotesAroundMid(t *testing.T) {
	m := NewNaiveMarketMaker(num.MustDecimal("0.01"), num.One)

	actions := m.Decide(viewWith("148", "152", "150", "10000", "10"))
	require.Len(t, actions, 3)
	assert.Equal(t, ActionCancelAll, actions[0].Type)

	assert.Equal(t, ActionLimitBuy, actions[1].Type)
	assert.True(t, actions[1].Price.Equal(num.MustDecimal("148.5")))
	assert.Equal(t, ActionLimitSell, actions[2].Type)
	assert.True(t, actions[2].Price.Equal(num.MustDecimal("151.5")))
}

func TestMakerSkipsSidesItCannotFund(t *testing.T) {
	m := NewNaiveMarketMaker(num.MustDecimal("0.01"), num.One)

	// no cash: bid side dropped
	actions := m.Decide(viewWith("148", "152", "150", "0", "10"))
	require.Len(t, actions, 2)
	assert.Equal(t, ActionLimitSell, actions[1].Type)

	// no holding: ask side dropped
	actions = m.Decide(viewWith("148", "152", "150", "10000", "0"))
	require.Len(t, actions, 2)
	assert.Equal(t, ActionLimitBuy, actions[1].Type)
}

func TestMakerNoMarketNoQuotes(t *testing.T) {
	m := NewNaiveMarketMaker(num.MustDecimal("0.01"), num.One)
	assert.Nil(t, m.Decide(viewWith("0", "0", "0", "10000", "10")))
}

func TestTakerDeterministicUnderSeed(t *testing.T) {
	view := viewWith("148", "152", "150", "10000", "10")

	a := NewRandomMarketTaker(rand.New(rand.NewSource(7)), 0.5, num.One)
	b := NewRandomMarketTaker(rand.New(rand.NewSource(7)), 0.5, num.One)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Decide(view), b.Decide(view))
	}
}

func TestTakerRespectsBalances(t *testing.T) {
	// buyProb 1: always tries to buy
	buyer := NewRandomMarketTaker(rand.New(rand.NewSource(1)), 1.0, num.One)
	actions := buyer.Decide(viewWith("148", "152", "150", "10000", "0"))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionMarketBuy, actions[0].Type)

	// cannot afford the ask: stands down
	assert.Nil(t, buyer.Decide(viewWith("148", "152", "150", "10", "0")))
	// empty ask side: stands down
	assert.Nil(t, buyer.Decide(viewWith("148", "0", "0", "10000", "0")))

	// buyProb 0: always tries to sell
	seller := NewRandomMarketTaker(rand.New(rand.NewSource(1)), 0.0, num.One)
	actions = seller.Decide(viewWith("148", "152", "150", "0", "5"))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionMarketSell, actions[0].Type)

	assert.Nil(t, seller.Decide(viewWith("148", "152", "150", "0", "0.5")), "holding below trade size")
}
