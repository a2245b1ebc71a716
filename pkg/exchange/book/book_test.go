package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/exsim/pkg/num"
)

func limit(side Side, price, qty, creator string) *Order {
	return NewOrder("BTCUSD", side, Limit, num.MustDecimal(price), num.MustDecimal(qty), creator, time.Now())
}

func market(side Side, qty, creator string) *Order {
	return NewOrder("BTCUSD", side, Market, decimal.Zero, num.MustDecimal(qty), creator, time.Now())
}

func TestInsertRestsWhenUncrossed(t *testing.T) {
	ob := NewOrderBook("BTCUSD")

	res := ob.Insert(limit(Buy, "148", "1", "alice"))
	assert.Empty(t, res.Fills)
	assert.True(t, res.Rested)

	res = ob.Insert(limit(Sell, "152", "1", "bob"))
	assert.Empty(t, res.Fills)
	assert.True(t, res.Rested)

	assert.True(t, ob.BestBid().Price.Equal(num.MustDecimal("148")))
	assert.True(t, ob.BestAsk().Price.Equal(num.MustDecimal("152")))
}

func TestFillsAtMakerPrice(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Sell, "150", "1", "maker"))

	// taker willing to pay 155 still fills at the resting 150
	res := ob.Insert(limit(Buy, "155", "1", "taker"))
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Fills[0].Price.Equal(num.MustDecimal("150")))
	assert.Equal(t, "maker", res.Fills[0].Maker)
	assert.Equal(t, "taker", res.Fills[0].Taker)
	assert.False(t, res.Rested)
	assert.True(t, ob.LastPrice().Equal(num.MustDecimal("150")))
}

func TestPriceThenTimePriority(t *testing.T) {
	ob := NewOrderBook("BTCUSD")

	// two bids at 150 (first has time priority) and one worse at 149
	first := limit(Buy, "150", "1", "first")
	ob.Insert(first)
	second := limit(Buy, "150", "1", "second")
	ob.Insert(second)
	worse := limit(Buy, "149", "1", "worse")
	ob.Insert(worse)

	res := ob.Insert(market(Sell, "2.5", "taker"))
	require.Len(t, res.Fills, 3)

	assert.Equal(t, first.ID, res.Fills[0].MakerOrderID)
	assert.True(t, res.Fills[0].Price.Equal(num.MustDecimal("150")))
	assert.Equal(t, second.ID, res.Fills[1].MakerOrderID)
	assert.True(t, res.Fills[1].Price.Equal(num.MustDecimal("150")))
	assert.Equal(t, worse.ID, res.Fills[2].MakerOrderID)
	assert.True(t, res.Fills[2].Price.Equal(num.MustDecimal("149")))
	assert.True(t, res.Fills[2].Qty.Equal(num.MustDecimal("0.5")))

	// market remainder of the worse bid stays resting
	assert.True(t, ob.BestBid().Qty.Equal(num.MustDecimal("0.5")))
}

func TestLimitTakerPartialFillRests(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Sell, "150", "1", "maker"))

	taker := limit(Buy, "150", "3", "taker")
	res := ob.Insert(taker)
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Remaining.Equal(num.MustDecimal("2")))
	assert.True(t, res.Rested)
	assert.Equal(t, StatusPartiallyFilled, taker.Status)
	assert.True(t, taker.Filled().Equal(num.MustDecimal("1")))

	// remainder becomes the best bid; the book is never crossed
	assert.True(t, ob.BestBid().Price.Equal(num.MustDecimal("150")))
	assert.True(t, ob.BestAsk().IsNull())
}

func TestMarketRemainderDropped(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Sell, "150", "1", "maker"))

	res := ob.Insert(market(Buy, "5", "taker"))
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Remaining.Equal(num.MustDecimal("4")))
	assert.False(t, res.Rested)
	assert.True(t, ob.BestBid().IsNull())
}

func TestNullQuoteSentinel(t *testing.T) {
	ob := NewOrderBook("BTCUSD")

	bid := ob.BestBid()
	assert.True(t, bid.IsNull())
	assert.True(t, bid.Price.IsZero())
	assert.True(t, bid.Qty.IsZero())
	assert.Equal(t, NullQuoteCreator, bid.Creator)
	assert.True(t, ob.BestAsk().IsNull())
}

func TestCancel(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	o := limit(Buy, "148", "1", "alice")
	ob.Insert(o)

	got, ok := ob.Cancel(o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.True(t, ob.BestBid().IsNull())

	_, ok = ob.Cancel(o.ID)
	assert.False(t, ok, "double cancel must miss")
}

func TestCancelAll(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Buy, "148", "1", "alice"))
	ob.Insert(limit(Buy, "147", "1", "alice"))
	ob.Insert(limit(Sell, "152", "1", "bob"))

	cancelled := ob.CancelAll("alice")
	assert.Len(t, cancelled, 2)
	assert.True(t, ob.BestBid().IsNull())
	assert.Equal(t, "bob", ob.BestAsk().Creator)
}

func TestRestore(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	maker := limit(Sell, "150", "2", "maker")
	ob.Insert(maker)
	ob.Insert(market(Buy, "1", "taker"))

	// still resting: quantity grows in place
	ob.Restore(maker, num.MustDecimal("1"))
	assert.True(t, ob.BestAsk().Qty.Equal(num.MustDecimal("2")))

	// fully consumed: re-enters the book
	ob.Insert(market(Buy, "2", "taker"))
	require.True(t, ob.BestAsk().IsNull())
	ob.Restore(maker, num.MustDecimal("2"))
	assert.True(t, ob.BestAsk().Qty.Equal(num.MustDecimal("2")))
	assert.Equal(t, StatusPartiallyFilled, maker.Status)
}

func TestDepth(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Buy, "148", "1", "a"))
	ob.Insert(limit(Buy, "148", "2", "b"))
	ob.Insert(limit(Buy, "147", "1", "c"))
	ob.Insert(limit(Sell, "152", "4", "d"))

	bids, asks := ob.Depth()
	require.Len(t, bids, 2)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Price.Equal(num.MustDecimal("148")), "best bid first")
	assert.True(t, bids[0].Qty.Equal(num.MustDecimal("3")), "level aggregates")
	assert.True(t, asks[0].Qty.Equal(num.MustDecimal("4")))
}

func TestCostToBuy(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Sell, "150", "1", "a"))
	ob.Insert(limit(Sell, "151", "2", "b"))

	cost, fillable := ob.CostToBuy(num.MustDecimal("2"))
	assert.True(t, cost.Equal(num.MustDecimal("301")), "150 + 151") // 1@150 + 1@151
	assert.True(t, fillable.Equal(num.MustDecimal("2")))

	cost, fillable = ob.CostToBuy(num.MustDecimal("10"))
	assert.True(t, cost.Equal(num.MustDecimal("452")))
	assert.True(t, fillable.Equal(num.MustDecimal("3")))
}

func TestLiquidityToSell(t *testing.T) {
	ob := NewOrderBook("BTCUSD")
	ob.Insert(limit(Buy, "148", "1", "a"))
	ob.Insert(limit(Buy, "147", "2", "b"))

	assert.True(t, ob.LiquidityToSell(num.MustDecimal("2")).Equal(num.MustDecimal("2")))
	assert.True(t, ob.LiquidityToSell(num.MustDecimal("10")).Equal(num.MustDecimal("3")))
}
