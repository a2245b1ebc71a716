package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/exchange/agent"
	"github.com/uhyunpark/exsim/pkg/exchange/asset"
	"github.com/uhyunpark/exsim/pkg/exchange/book"
)

var ErrOrderNotFound = errors.New("order not found")

// LimitBuy places a buy limit order. The full order notional plus fees is
// frozen up front; insufficiency is reported on the returned order's
// Accounting field, not as an error.
func (ex *Exchange) LimitBuy(ticker string, price, qty decimal.Decimal, agentName string) (*book.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	pair, err := ex.pairs.Get(ticker)
	if err != nil {
		return nil, err
	}
	if err := pair.ValidateOrder(price, qty); err != nil {
		return nil, err
	}

	o := book.NewOrder(ticker, book.Buy, book.Limit, price, qty, agentName, ex.now)

	notional := price.Mul(qty)
	fee := ex.feeOn(notional)
	ok, err := ex.agents.HasCash(agentName, pair.Quote, notional, fee.Add(ex.opts.NetworkFee))
	if err != nil {
		return nil, err
	}
	if !ok {
		o.Status = book.StatusError
		o.Accounting = book.InsufficientFunds
		return o, nil
	}
	if err := ex.agents.Freeze(agentName, pair.Quote, notional, fee, ex.opts.NetworkFee, o.ID); err != nil {
		return nil, err
	}

	res := ex.bookFor(ticker).Insert(o)
	ex.processMatch(pair, o, res)
	cp := *o
	return &cp, nil
}

// LimitSell places a sell limit order, freezing the base quantity.
// Exchange fees come out of the quote proceeds at settlement.
func (ex *Exchange) LimitSell(ticker string, price, qty decimal.Decimal, agentName string) (*book.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	pair, err := ex.pairs.Get(ticker)
	if err != nil {
		return nil, err
	}
	if err := pair.ValidateOrder(price, qty); err != nil {
		return nil, err
	}

	o := book.NewOrder(ticker, book.Sell, book.Limit, price, qty, agentName, ex.now)

	ok, err := ex.agents.HasAssets(agentName, pair.Base, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.Status = book.StatusError
		o.Accounting = book.InsufficientAssets
		return o, nil
	}
	if err := ex.agents.Freeze(agentName, pair.Base, qty, decimal.Zero, decimal.Zero, o.ID); err != nil {
		return nil, err
	}

	res := ex.bookFor(ticker).Insert(o)
	ex.processMatch(pair, o, res)
	cp := *o
	return &cp, nil
}

// MarketBuy buys qty at whatever ask liquidity exists. The freeze is sized
// from the current book before matching; an unmatched remainder is dropped
// and its escrow returned once in-flight legs drain.
func (ex *Exchange) MarketBuy(ticker string, qty decimal.Decimal, agentName string) (*book.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	pair, err := ex.pairs.Get(ticker)
	if err != nil {
		return nil, err
	}
	if err := pair.ValidateOrder(decimal.Zero, qty); err != nil {
		return nil, err
	}

	b := ex.bookFor(ticker)
	cost, fillable := b.CostToBuy(qty)
	o := book.NewOrder(ticker, book.Buy, book.Market, decimal.Zero, qty, agentName, ex.now)
	if fillable.Sign() == 0 {
		// no contra liquidity: no fills, nothing frozen
		o.Status = book.StatusCancelled
		return o, nil
	}

	fee := ex.feeOn(cost)
	ok, err := ex.agents.HasCash(agentName, pair.Quote, cost, fee.Add(ex.opts.NetworkFee))
	if err != nil {
		return nil, err
	}
	if !ok {
		o.Status = book.StatusError
		o.Accounting = book.InsufficientFunds
		return o, nil
	}
	if err := ex.agents.Freeze(agentName, pair.Quote, cost, fee, ex.opts.NetworkFee, o.ID); err != nil {
		return nil, err
	}

	res := b.Insert(o)
	ex.processMatch(pair, o, res)
	ex.closeOrder(o, pair)
	return o, nil
}

// MarketSell sells qty against resting bids; the unmatched remainder is
// dropped.
func (ex *Exchange) MarketSell(ticker string, qty decimal.Decimal, agentName string) (*book.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	pair, err := ex.pairs.Get(ticker)
	if err != nil {
		return nil, err
	}
	if err := pair.ValidateOrder(decimal.Zero, qty); err != nil {
		return nil, err
	}

	b := ex.bookFor(ticker)
	o := book.NewOrder(ticker, book.Sell, book.Market, decimal.Zero, qty, agentName, ex.now)
	if b.LiquidityToSell(qty).Sign() == 0 {
		o.Status = book.StatusCancelled
		return o, nil
	}

	ok, err := ex.agents.HasAssets(agentName, pair.Base, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.Status = book.StatusError
		o.Accounting = book.InsufficientAssets
		return o, nil
	}
	if err := ex.agents.Freeze(agentName, pair.Base, qty, decimal.Zero, decimal.Zero, o.ID); err != nil {
		return nil, err
	}

	res := b.Insert(o)
	ex.processMatch(pair, o, res)
	ex.closeOrder(o, pair)
	return o, nil
}

// CancelOrder removes a resting order and returns its escrow, minus any
// portion still committed to in-flight settlement legs.
func (ex *Exchange) CancelOrder(ticker, orderID string) (*book.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	pair, err := ex.pairs.Get(ticker)
	if err != nil {
		return nil, err
	}
	o, ok := ex.bookFor(ticker).Cancel(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	ex.closeOrder(o, pair)
	return o, nil
}

// CancelAllOrders cancels every resting order an agent has on a ticker.
func (ex *Exchange) CancelAllOrders(ticker, agentName string) ([]*book.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	pair, err := ex.pairs.Get(ticker)
	if err != nil {
		return nil, err
	}
	cancelled := ex.bookFor(ticker).CancelAll(agentName)
	for _, o := range cancelled {
		ex.closeOrder(o, pair)
	}
	return cancelled, nil
}

// closeOrder marks an order as off the book and drains its leftover escrow
// once no settlement legs remain in flight. Callers must hold ex.mu.
func (ex *Exchange) closeOrder(o *book.Order, pair *asset.Pair) {
	ex.closedOrders[o.ID] = o
	ex.finalizeOrderEscrow(o.ID, pair)
}

// finalizeOrderEscrow returns any remaining frozen allocation for a closed
// order with no outstanding legs. Callers must hold ex.mu.
func (ex *Exchange) finalizeOrderEscrow(orderID string, pair *asset.Pair) {
	if ex.outstandingLegs[orderID] > 0 {
		return
	}
	o, ok := ex.closedOrders[orderID]
	if !ok {
		return
	}
	escrowAsset := pair.Quote
	if o.Side == book.Sell {
		escrowAsset = pair.Base
	}
	if _, err := ex.agents.Unfreeze(o.Creator, escrowAsset, orderID); err != nil && !errors.Is(err, agent.ErrNotFrozen) {
		ex.log.Warn("escrow drain failed",
			zap.String("order", orderID), zap.String("agent", o.Creator), zap.Error(err))
		return
	}
	delete(ex.closedOrders, orderID)
	delete(ex.outstandingLegs, orderID)
	delete(ex.netFeeCharged, orderID)
}
