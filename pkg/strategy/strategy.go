// Package strategy holds trading collaborators that drive the exchange from
// the outside. Strategies never touch engine state directly: they see a
// MarketView snapshot and answer with Actions the runner submits through the
// exchange's public operations.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketView is the read-only snapshot a strategy decides on.
type MarketView struct {
	Ticker   string
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	Midprice decimal.Decimal
	Last     decimal.Decimal
	Cash     decimal.Decimal // strategy agent's available cash
	Holding  decimal.Decimal // strategy agent's available base holding
	Now      time.Time
}

// ActionType selects the exchange operation an Action maps to.
type ActionType int8

const (
	ActionNone ActionType = iota
	ActionLimitBuy
	ActionLimitSell
	ActionMarketBuy
	ActionMarketSell
	ActionCancelAll
)

// Action is one order instruction from a strategy.
type Action struct {
	Type  ActionType
	Price decimal.Decimal // unused for market orders
	Qty   decimal.Decimal
}

// Strategy decides what to do given the current market view.
// Implementations are stateful and deterministic for a fixed random seed;
// randomness comes from a generator injected at construction, never from
// package-level state.
type Strategy interface {
	Decide(view MarketView) []Action
}
