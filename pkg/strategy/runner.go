package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/exchange/book"
)

// Venue is the slice of the exchange a runner needs. *exchange.Exchange
// satisfies it.
type Venue interface {
	BestBid(ticker string) (*book.Order, error)
	BestAsk(ticker string) (*book.Order, error)
	Midprice(ticker string) (decimal.Decimal, error)
	GetCash(name string) (decimal.Decimal, error)
	GetAssets(name string) (map[string]decimal.Decimal, error)
	Now() time.Time

	LimitBuy(ticker string, price, qty decimal.Decimal, agent string) (*book.Order, error)
	LimitSell(ticker string, price, qty decimal.Decimal, agent string) (*book.Order, error)
	MarketBuy(ticker string, qty decimal.Decimal, agent string) (*book.Order, error)
	MarketSell(ticker string, qty decimal.Decimal, agent string) (*book.Order, error)
	CancelAllOrders(ticker, agent string) ([]*book.Order, error)
}

// Runner binds one strategy to one agent on one ticker and steps it each
// tick. Rejected orders are logged and otherwise ignored; a strategy that
// overreaches simply misses that decision.
type Runner struct {
	venue Venue
	strat Strategy
	agent string
	tick  string // ticker
	base  string
	log   *zap.Logger
}

func NewRunner(venue Venue, strat Strategy, agentName, ticker, baseAsset string, log *zap.Logger) *Runner {
	return &Runner{venue: venue, strat: strat, agent: agentName, tick: ticker, base: baseAsset, log: log}
}

// Step snapshots the market, asks the strategy, and submits its actions.
func (r *Runner) Step() {
	view, err := r.snapshot()
	if err != nil {
		r.log.Warn("strategy snapshot failed", zap.String("agent", r.agent), zap.Error(err))
		return
	}

	for _, action := range r.strat.Decide(view) {
		if err := r.apply(action); err != nil {
			r.log.Debug("strategy action rejected",
				zap.String("agent", r.agent),
				zap.String("ticker", r.tick),
				zap.Error(err))
		}
	}
}

func (r *Runner) snapshot() (MarketView, error) {
	bid, err := r.venue.BestBid(r.tick)
	if err != nil {
		return MarketView{}, err
	}
	ask, err := r.venue.BestAsk(r.tick)
	if err != nil {
		return MarketView{}, err
	}
	mid, err := r.venue.Midprice(r.tick)
	if err != nil {
		return MarketView{}, err
	}
	cash, err := r.venue.GetCash(r.agent)
	if err != nil {
		return MarketView{}, err
	}
	assets, err := r.venue.GetAssets(r.agent)
	if err != nil {
		return MarketView{}, err
	}

	view := MarketView{
		Ticker:   r.tick,
		Midprice: mid,
		Last:     mid,
		Cash:     cash,
		Holding:  assets[r.base],
		Now:      r.venue.Now(),
	}
	if !bid.IsNull() {
		view.BestBid = bid.Price
	}
	if !ask.IsNull() {
		view.BestAsk = ask.Price
	}
	return view, nil
}

func (r *Runner) apply(action Action) error {
	var err error
	switch action.Type {
	case ActionLimitBuy:
		_, err = r.venue.LimitBuy(r.tick, action.Price, action.Qty, r.agent)
	case ActionLimitSell:
		_, err = r.venue.LimitSell(r.tick, action.Price, action.Qty, r.agent)
	case ActionMarketBuy:
		_, err = r.venue.MarketBuy(r.tick, action.Qty, r.agent)
	case ActionMarketSell:
		_, err = r.venue.MarketSell(r.tick, action.Qty, r.agent)
	case ActionCancelAll:
		_, err = r.venue.CancelAllOrders(r.tick, r.agent)
	case ActionNone:
	}
	return err
}
