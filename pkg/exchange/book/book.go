package book

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Fill is one maker/taker execution. Price is always the resting (maker)
// order's price, never the incoming order's.
type Fill struct {
	TakerOrderID string
	MakerOrderID string
	Taker        string
	Maker        string
	Price        decimal.Decimal
	Qty          decimal.Decimal
}

// MatchResult is returned by Insert.
type MatchResult struct {
	Fills []Fill
	// Remaining is the unfilled quantity of the incoming order. For a limit
	// order it rested in the book; for a market order it was dropped.
	Remaining decimal.Decimal
	// Rested is true when the remainder was added to the book.
	Rested bool
	// FilledMakers lists resting orders fully consumed by this match, so the
	// caller can release their escrow bookkeeping.
	FilledMakers []*Order
}

// Level is an aggregated price level for depth snapshots.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// level holds the FIFO queue of resting orders at one price.
type level struct {
	price  decimal.Decimal
	orders []*Order
}

func (l *level) totalQty() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.Qty)
	}
	return total
}

// OrderBook is the price-time-priority bid/ask ledger for one ticker.
//
// Bids iterate best (highest) price first, asks best (lowest) first; within
// a level orders queue strictly FIFO. Matching happens at insertion time, so
// once Insert returns the book never rests crossed.
type OrderBook struct {
	mu     sync.RWMutex
	ticker string

	bids *btree.BTreeG[*level]
	asks *btree.BTreeG[*level]

	// id -> resting order, for O(log n) cancellation via the price index.
	index map[string]*Order

	seq       uint64
	lastPrice decimal.Decimal
}

// NewOrderBook creates an empty book for a ticker.
func NewOrderBook(ticker string) *OrderBook {
	return &OrderBook{
		ticker: ticker,
		// Bids order descending so the first item is the best bid.
		bids: btree.NewBTreeG(func(a, b *level) bool {
			return a.price.Cmp(b.price) > 0
		}),
		asks: btree.NewBTreeG(func(a, b *level) bool {
			return a.price.Cmp(b.price) < 0
		}),
		index: make(map[string]*Order),
	}
}

// Ticker returns the pair ticker this book serves.
func (ob *OrderBook) Ticker() string { return ob.ticker }

func (ob *OrderBook) sideTree(s Side) *btree.BTreeG[*level] {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) bestLevel(s Side) (*level, bool) {
	lvl, ok := ob.sideTree(s).Min()
	return lvl, ok
}

// crosses reports whether an incoming order at price p takes the given
// maker level. Market orders (zero price) take any level.
func crosses(incoming *Order, lvl *level) bool {
	if incoming.Type == Market {
		return true
	}
	if incoming.Side == Buy {
		return incoming.Price.Cmp(lvl.price) >= 0
	}
	return incoming.Price.Cmp(lvl.price) <= 0
}

// Insert attempts to match o against the opposite side, then rests any
// remainder if o is a limit order. Fills execute at the maker's price.
func (ob *OrderBook) Insert(o *Order) MatchResult {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var res MatchResult
	contra := o.Side.Opposite()

	for o.Qty.Sign() > 0 {
		lvl, ok := ob.bestLevel(contra)
		if !ok || !crosses(o, lvl) {
			break
		}
		maker := lvl.orders[0]
		matched := decimal.Min(o.Qty, maker.Qty)

		o.Qty = o.Qty.Sub(matched)
		maker.Qty = maker.Qty.Sub(matched)
		ob.lastPrice = lvl.price

		res.Fills = append(res.Fills, Fill{
			TakerOrderID: o.ID,
			MakerOrderID: maker.ID,
			Taker:        o.Creator,
			Maker:        maker.Creator,
			Price:        lvl.price,
			Qty:          matched,
		})

		if maker.Qty.Sign() == 0 {
			maker.Status = StatusFilled
			lvl.orders = lvl.orders[1:]
			delete(ob.index, maker.ID)
			res.FilledMakers = append(res.FilledMakers, maker)
			if len(lvl.orders) == 0 {
				ob.sideTree(contra).Delete(lvl)
			}
		} else {
			maker.Status = StatusPartiallyFilled
		}
	}

	if len(res.Fills) > 0 && o.Qty.Sign() > 0 {
		o.Status = StatusPartiallyFilled
	} else if o.Qty.Sign() == 0 {
		o.Status = StatusFilled
	}

	res.Remaining = o.Qty
	if o.Qty.Sign() > 0 && o.Type == Limit {
		ob.restLocked(o)
		res.Rested = true
	}
	return res
}

// Rest places o in the book without attempting to match. Used to seed books
// and to revert a maker remainder whose settlement submission failed.
func (ob *OrderBook) Rest(o *Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.restLocked(o)
}

func (ob *OrderBook) restLocked(o *Order) {
	ob.seq++
	o.seq = ob.seq

	tree := ob.sideTree(o.Side)
	probe := &level{price: o.Price}
	if lvl, ok := tree.Get(probe); ok {
		lvl.orders = append(lvl.orders, o)
	} else {
		probe.orders = []*Order{o}
		tree.Set(probe)
	}
	ob.index[o.ID] = o
}

// Restore adds qty back to an order after a failed settlement submission.
// If o still rests its remaining qty grows in place; otherwise o re-enters
// the book as a maker with the restored quantity, keeping escrowed assets
// attached to a live order instead of silently losing them.
func (ob *OrderBook) Restore(o *Order, qty decimal.Decimal) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if resting, ok := ob.index[o.ID]; ok {
		resting.Qty = resting.Qty.Add(qty)
		resting.Status = StatusPartiallyFilled
		return
	}
	o.Qty = qty
	o.Status = StatusPartiallyFilled
	ob.restLocked(o)
}

// Cancel removes a resting order by id and returns it.
func (ob *OrderBook) Cancel(id string) (*Order, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.cancelLocked(id)
}

func (ob *OrderBook) cancelLocked(id string) (*Order, bool) {
	o, ok := ob.index[id]
	if !ok {
		return nil, false
	}

	tree := ob.sideTree(o.Side)
	lvl, ok := tree.Get(&level{price: o.Price})
	if !ok {
		// index and tree disagree; treat as not found
		delete(ob.index, id)
		return nil, false
	}
	for i, cand := range lvl.orders {
		if cand.ID == id {
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
			break
		}
	}
	if len(lvl.orders) == 0 {
		tree.Delete(lvl)
	}
	delete(ob.index, id)
	o.Status = StatusCancelled
	return o, true
}

// CancelAll removes every resting order owned by agent and returns them.
func (ob *OrderBook) CancelAll(agent string) []*Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var ids []string
	for id, o := range ob.index {
		if o.Creator == agent {
			ids = append(ids, id)
		}
	}
	var out []*Order
	for _, id := range ids {
		if o, ok := ob.cancelLocked(id); ok {
			out = append(out, o)
		}
	}
	return out
}

// Get returns a resting order by id.
func (ob *OrderBook) Get(id string) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	o, ok := ob.index[id]
	return o, ok
}

// BestBid returns the highest resting bid, or the null-quote sentinel when
// the side is empty.
func (ob *OrderBook) BestBid() *Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if lvl, ok := ob.bids.Min(); ok && len(lvl.orders) > 0 {
		return lvl.orders[0]
	}
	return NullQuote(ob.ticker, Buy)
}

// BestAsk returns the lowest resting ask, or the null-quote sentinel when
// the side is empty.
func (ob *OrderBook) BestAsk() *Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if lvl, ok := ob.asks.Min(); ok && len(lvl.orders) > 0 {
		return lvl.orders[0]
	}
	return NullQuote(ob.ticker, Sell)
}

// LastPrice returns the price of the most recent fill, zero if none.
func (ob *OrderBook) LastPrice() decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastPrice
}

// Depth returns aggregated bid and ask levels, best price first.
func (ob *OrderBook) Depth() (bids, asks []Level) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	ob.bids.Scan(func(lvl *level) bool {
		bids = append(bids, Level{Price: lvl.price, Qty: lvl.totalQty()})
		return true
	})
	ob.asks.Scan(func(lvl *level) bool {
		asks = append(asks, Level{Price: lvl.price, Qty: lvl.totalQty()})
		return true
	})
	return bids, asks
}

// OrdersBy returns the agent's resting orders on this book.
func (ob *OrderBook) OrdersBy(agent string) []*Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var out []*Order
	for _, o := range ob.index {
		if o.Creator == agent {
			out = append(out, o)
		}
	}
	return out
}

// CostToBuy walks the ask side and returns the quote cost of buying qty at
// current liquidity, plus the quantity actually fillable. Used to size the
// escrow freeze for market buys before matching runs.
func (ob *OrderBook) CostToBuy(qty decimal.Decimal) (cost, fillable decimal.Decimal) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	remaining := qty
	ob.asks.Scan(func(lvl *level) bool {
		for _, o := range lvl.orders {
			if remaining.Sign() <= 0 {
				return false
			}
			take := decimal.Min(remaining, o.Qty)
			cost = cost.Add(take.Mul(lvl.price))
			fillable = fillable.Add(take)
			remaining = remaining.Sub(take)
		}
		return remaining.Sign() > 0
	})
	return cost, fillable
}

// LiquidityToSell returns the bid-side quantity available against a market
// sell of qty.
func (ob *OrderBook) LiquidityToSell(qty decimal.Decimal) (fillable decimal.Decimal) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	remaining := qty
	ob.bids.Scan(func(lvl *level) bool {
		for _, o := range lvl.orders {
			if remaining.Sign() <= 0 {
				return false
			}
			take := decimal.Min(remaining, o.Qty)
			fillable = fillable.Add(take)
			remaining = remaining.Sub(take)
		}
		return remaining.Sign() > 0
	})
	return fillable
}
