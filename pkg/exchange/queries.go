package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exsim/pkg/archive"
	"github.com/uhyunpark/exsim/pkg/exchange/agent"
	"github.com/uhyunpark/exsim/pkg/exchange/book"
	"github.com/uhyunpark/exsim/pkg/exchange/position"
)

// Quote pairs the current best bid and ask.
type Quote struct {
	BestBid *book.Order `json:"best_bid"`
	BestAsk *book.Order `json:"best_ask"`
}

// Depth returns the aggregated book for a ticker.
func (ex *Exchange) Depth(ticker string) (bids, asks []book.Level, err error) {
	if _, err := ex.pairs.Get(ticker); err != nil {
		return nil, nil, err
	}
	ex.mu.Lock()
	b := ex.bookFor(ticker)
	ex.mu.Unlock()
	bids, asks = b.Depth()
	return bids, asks, nil
}

// BestBid returns a copy of the best bid, or the null-quote sentinel on an
// empty side. The copy is taken under the exchange lock so readers never
// alias an order the tick loop is mutating.
func (ex *Exchange) BestBid(ticker string) (*book.Order, error) {
	if _, err := ex.pairs.Get(ticker); err != nil {
		return nil, err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	o := *ex.bookFor(ticker).BestBid()
	return &o, nil
}

// BestAsk returns a copy of the best ask, or the null-quote sentinel on an
// empty side.
func (ex *Exchange) BestAsk(ticker string) (*book.Order, error) {
	if _, err := ex.pairs.Get(ticker); err != nil {
		return nil, err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	o := *ex.bookFor(ticker).BestAsk()
	return &o, nil
}

// Quotes returns both best quotes.
func (ex *Exchange) Quotes(ticker string) (Quote, error) {
	bid, err := ex.BestBid(ticker)
	if err != nil {
		return Quote{}, err
	}
	ask, err := ex.BestAsk(ticker)
	if err != nil {
		return Quote{}, err
	}
	return Quote{BestBid: bid, BestAsk: ask}, nil
}

// Midprice returns (best bid + best ask) / 2, falling back to the last
// trade price when either side is empty, and zero with no trades at all.
func (ex *Exchange) Midprice(ticker string) (decimal.Decimal, error) {
	q, err := ex.Quotes(ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if q.BestBid.IsNull() || q.BestAsk.IsNull() {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return ex.bookFor(ticker).LastPrice(), nil
	}
	return q.BestBid.Price.Add(q.BestAsk.Price).Div(decimal.NewFromInt(2)), nil
}

// LatestTrade returns the most recent trade on a ticker.
func (ex *Exchange) LatestTrade(ticker string) (Trade, bool, error) {
	if _, err := ex.pairs.Get(ticker); err != nil {
		return Trade{}, false, err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	tape := ex.trades[ticker]
	if len(tape) == 0 {
		return Trade{}, false, nil
	}
	return tape[len(tape)-1], true, nil
}

// Trades returns up to limit most recent trades, oldest first.
// limit <= 0 returns the whole tape.
func (ex *Exchange) Trades(ticker string, limit int) ([]Trade, error) {
	if _, err := ex.pairs.Get(ticker); err != nil {
		return nil, err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	tape := ex.trades[ticker]
	if limit > 0 && len(tape) > limit {
		tape = tape[len(tape)-limit:]
	}
	out := make([]Trade, len(tape))
	copy(out, tape)
	return out, nil
}

// Candles buckets the ticker's trade tape into OHLCV candles.
func (ex *Exchange) Candles(ticker string, interval time.Duration) ([]Candle, error) {
	trades, err := ex.Trades(ticker, 0)
	if err != nil {
		return nil, err
	}
	return candlesFrom(trades, interval), nil
}

// GetOrder finds a resting order on a ticker's book and returns a copy.
func (ex *Exchange) GetOrder(ticker, orderID string) (*book.Order, error) {
	if _, err := ex.pairs.Get(ticker); err != nil {
		return nil, err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	o, ok := ex.bookFor(ticker).Get(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

// ArchivedTrades reads a ticker's full trade history from the durable
// archive, oldest first. Returns nil when the exchange runs without one.
func (ex *Exchange) ArchivedTrades(ticker string) ([]Trade, error) {
	if ex.arch == nil {
		return nil, nil
	}
	if _, err := ex.pairs.Get(ticker); err != nil {
		return nil, err
	}
	return archive.Trades[Trade](ex.arch, ticker)
}

// ArchivedTaxableEvents reads an agent's realized exits from the durable
// archive, oldest first. Returns nil when the exchange runs without one.
func (ex *Exchange) ArchivedTaxableEvents(name string) ([]position.Exit, error) {
	if ex.arch == nil {
		return nil, nil
	}
	return archive.TaxableEvents[position.Exit](ex.arch, name)
}

// ---- agent-facing wrappers --------------------------------------------

// RegisterAgent creates an agent seeded with initial assets and returns it;
// the generated name (base + random suffix) is the handle for all later
// calls.
func (ex *Exchange) RegisterAgent(baseName string, initialAssets map[string]decimal.Decimal) (*agent.Agent, error) {
	return ex.agents.Register(baseName, initialAssets, ex.Now())
}

// GetAgent returns a snapshot of one agent by generated name.
func (ex *Exchange) GetAgent(name string) (*agent.Agent, error) { return ex.agents.Get(name) }

// GetAgents returns snapshots of all agents.
func (ex *Exchange) GetAgents() []*agent.Agent { return ex.agents.List() }

// AddCash credits cash to an agent outside the order book.
func (ex *Exchange) AddCash(name string, amount decimal.Decimal, reason string) error {
	if reason == "" {
		reason = "deposit"
	}
	return ex.agents.AddAsset(name, ex.opts.CashAsset, amount, ex.Now(), reason)
}

// RemoveCash debits cash from an agent outside the order book.
func (ex *Exchange) RemoveCash(name string, amount decimal.Decimal) error {
	return ex.agents.RemoveAsset(name, ex.opts.CashAsset, amount, ex.Now())
}

// AddAsset credits an asset outside the order book.
func (ex *Exchange) AddAsset(name, assetSym string, qty decimal.Decimal, reason string) error {
	if reason == "" {
		reason = "deposit"
	}
	return ex.agents.AddAsset(name, assetSym, qty, ex.Now(), reason)
}

// RemoveAsset debits an asset outside the order book.
func (ex *Exchange) RemoveAsset(name, assetSym string, qty decimal.Decimal) error {
	return ex.agents.RemoveAsset(name, assetSym, qty, ex.Now())
}

// GetCash returns an agent's total cash balance.
func (ex *Exchange) GetCash(name string) (decimal.Decimal, error) {
	a, err := ex.agents.Get(name)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Total(ex.opts.CashAsset), nil
}

// GetAssets returns an agent's full balance map.
func (ex *Exchange) GetAssets(name string) (map[string]decimal.Decimal, error) {
	a, err := ex.agents.Get(name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(a.Assets))
	for sym, qty := range a.Assets {
		out[sym] = qty
	}
	return out, nil
}

// GetAgentsHolding reports every agent's balance of one asset.
func (ex *Exchange) GetAgentsHolding(assetSym string) map[string]decimal.Decimal {
	return ex.agents.Holding(assetSym)
}

// GetPositions returns an agent's positions with full lot history.
func (ex *Exchange) GetPositions(name string) ([]*position.Position, error) {
	a, err := ex.agents.Get(name)
	if err != nil {
		return nil, err
	}
	return a.Positions, nil
}

// GetAgentsPositions returns positions for all agents keyed by name.
func (ex *Exchange) GetAgentsPositions() map[string][]*position.Position {
	out := make(map[string][]*position.Position)
	for _, a := range ex.agents.List() {
		out[a.Name] = a.Positions
	}
	return out
}

// GetOutstandingShares sums every agent's holding of an asset.
func (ex *Exchange) GetOutstandingShares(assetSym string) decimal.Decimal {
	return ex.agents.OutstandingUnits(assetSym)
}

// GetTaxableEvents aggregates realized capital gains; name == "" means all
// agents.
func (ex *Exchange) GetTaxableEvents(name string) ([]position.TaxableEvent, error) {
	return ex.agents.TaxableEvents(name)
}
