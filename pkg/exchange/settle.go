package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/exchange/agent"
	"github.com/uhyunpark/exsim/pkg/exchange/asset"
	"github.com/uhyunpark/exsim/pkg/exchange/book"
	"github.com/uhyunpark/exsim/pkg/exchange/position"
)

// TxnRef locates one confirmation-layer transaction.
type TxnRef struct {
	Asset string `json:"asset"`
	ID    string `json:"id"`
}

// PendingLeg is one side of one fill, submitted to the confirmation layer
// and awaiting finality. Legs are held in FIFO submission order and retried
// every tick until every referenced transaction confirms; they are never
// dropped on failure.
type PendingLeg struct {
	ID          string          `json:"id"`
	Agent       string          `json:"agent"`
	OrderID     string          `json:"order_id"`
	Side        book.Side       `json:"-"`
	Base        string          `json:"base"`
	Quote       string          `json:"quote"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	QuoteFlow   decimal.Decimal `json:"quote_flow"`
	ExchangeFee decimal.Decimal `json:"exchange_fee"`
	NetworkFee  decimal.Decimal `json:"network_fee"`
	DT          time.Time       `json:"dt"`
	Txns        []TxnRef        `json:"txn_ids"`
}

// Notional returns price * qty.
func (pl *PendingLeg) Notional() decimal.Decimal { return pl.Price.Mul(pl.Qty) }

// processMatch turns each fill into two chain transactions (base movement,
// quote movement) and two pending legs, one per side. If transaction
// submission fails the fill is NOT settled: the maker gets its quantity
// restored as a resting order and every frozen asset stays frozen.
// Callers must hold ex.mu.
func (ex *Exchange) processMatch(pair *asset.Pair, taker *book.Order, res book.MatchResult) {
	b := ex.bookFor(pair.Ticker)

	makersByID := make(map[string]*book.Order)
	for _, m := range res.FilledMakers {
		makersByID[m.ID] = m
	}
	reverted := make(map[string]bool)

	for _, f := range res.Fills {
		buyerOrderID, sellerOrderID := f.TakerOrderID, f.MakerOrderID
		buyer, seller := f.Taker, f.Maker
		if taker.Side == book.Sell {
			buyerOrderID, sellerOrderID = f.MakerOrderID, f.TakerOrderID
			buyer, seller = f.Maker, f.Taker
		}

		notional := f.Price.Mul(f.Qty)
		netFee := decimal.Zero
		if _, charged := ex.netFeeCharged[buyerOrderID]; !charged {
			netFee = ex.opts.NetworkFee
		}

		baseTxn, err := ex.conf.AddTransaction(pair.Base, decimal.Zero, f.Qty, seller, buyer, ex.now)
		var quoteTxnID string
		if err == nil {
			quoteTxnID, err = ex.submitQuoteTxn(pair.Quote, notional, netFee, buyer, seller)
		}
		if err != nil {
			ex.log.Warn("settlement submission failed, reverting fill",
				zap.String("ticker", pair.Ticker), zap.String("maker", f.MakerOrderID), zap.Error(err))
			ex.revertFill(b, taker, makersByID, f)
			reverted[f.MakerOrderID] = true
			if taker.Type == book.Limit {
				reverted[f.TakerOrderID] = true
			}
			continue
		}
		if netFee.Sign() > 0 {
			ex.netFeeCharged[buyerOrderID] = struct{}{}
		}

		ex.recordTrade(pair.Ticker, Trade{
			Ticker:    pair.Ticker,
			Price:     f.Price,
			Qty:       f.Qty,
			Taker:     f.Taker,
			Maker:     f.Maker,
			TakerSide: taker.Side.String(),
			DT:        ex.now,
		})

		refs := []TxnRef{{Asset: pair.Base, ID: baseTxn.ID}, {Asset: pair.Quote, ID: quoteTxnID}}
		fee := ex.feeOn(notional)

		buyLeg := &PendingLeg{
			ID:          uuid.NewString(),
			Agent:       buyer,
			OrderID:     buyerOrderID,
			Side:        book.Buy,
			Base:        pair.Base,
			Quote:       pair.Quote,
			Qty:         f.Qty,
			Price:       f.Price,
			QuoteFlow:   notional.Add(fee).Add(netFee).Neg(),
			ExchangeFee: fee,
			NetworkFee:  netFee,
			DT:          ex.now,
			Txns:        refs,
		}
		sellLeg := &PendingLeg{
			ID:          uuid.NewString(),
			Agent:       seller,
			OrderID:     sellerOrderID,
			Side:        book.Sell,
			Base:        pair.Base,
			Quote:       pair.Quote,
			Qty:         f.Qty,
			Price:       f.Price,
			QuoteFlow:   notional.Sub(fee),
			ExchangeFee: fee,
			NetworkFee:  decimal.Zero,
			DT:          ex.now,
			Txns:        refs,
		}
		ex.pending = append(ex.pending, buyLeg, sellLeg)
		ex.outstandingLegs[buyerOrderID]++
		ex.outstandingLegs[sellerOrderID]++
	}

	// Fully consumed makers leave the book; their leftover escrow drains
	// once their legs settle. Reverted makers rest again with their escrow
	// intact and must not be closed.
	for _, m := range res.FilledMakers {
		if reverted[m.ID] {
			continue
		}
		ex.closeOrder(m, pair)
	}
	if taker.Type == book.Limit && taker.Status == book.StatusFilled {
		ex.closeOrder(taker, pair)
	}

	ex.dropDustRemainders(b, pair, res, reverted)
}

// recordTrade appends a printed trade to the in-memory tape and mirrors it to
// the durable archive. A printed trade's legs retry until they settle, so the
// archive never records a fill that later unwinds.
func (ex *Exchange) recordTrade(ticker string, tr Trade) {
	ex.trades[ticker] = append(ex.trades[ticker], tr)
	if ex.arch == nil {
		return
	}
	ex.tradeSeq++
	if err := ex.arch.PutTrade(ticker, ex.tradeSeq, tr); err != nil {
		ex.log.Warn("trade archive failed", zap.String("ticker", ticker), zap.Error(err))
	}
}

// dropDustRemainders cancels resting remainders smaller than the pair's dust
// threshold. Reverted fills keep their restored quantity: that remainder is
// awaiting resubmission, not dust.
func (ex *Exchange) dropDustRemainders(b *book.OrderBook, pair *asset.Pair, res book.MatchResult, reverted map[string]bool) {
	dust := pair.DustQty()
	if dust.Sign() <= 0 {
		return
	}
	seen := make(map[string]bool)
	for _, f := range res.Fills {
		for _, id := range []string{f.MakerOrderID, f.TakerOrderID} {
			if seen[id] || reverted[id] {
				continue
			}
			seen[id] = true
			o, ok := b.Get(id)
			if !ok {
				continue
			}
			if o.Qty.Sign() > 0 && o.Qty.Cmp(dust) < 0 {
				if _, ok := b.Cancel(id); ok {
					o.Status = book.StatusPartiallyFilled
					ex.log.Info("dust remainder dropped",
						zap.String("ticker", pair.Ticker), zap.String("order", id), zap.String("qty", o.Qty.String()))
					ex.closeOrder(o, pair)
				}
			}
		}
	}
}

func (ex *Exchange) submitQuoteTxn(quote string, notional, networkFee decimal.Decimal, buyer, seller string) (string, error) {
	txn, err := ex.conf.AddTransaction(quote, networkFee, notional, buyer, seller, ex.now)
	if err != nil {
		return "", err
	}
	return txn.ID, nil
}

// revertFill restores the maker's matched quantity as a resting order after
// a failed submission. The taker side of the failed fill is dropped for
// market orders and restored into the taker's resting remainder for limits.
func (ex *Exchange) revertFill(b *book.OrderBook, taker *book.Order, makers map[string]*book.Order, f book.Fill) {
	if m, ok := makers[f.MakerOrderID]; ok {
		b.Restore(m, f.Qty)
	} else if resting, ok := b.Get(f.MakerOrderID); ok {
		b.Restore(resting, f.Qty)
	}

	if taker.Type == book.Limit {
		b.Restore(taker, f.Qty)
	}
}

// Next is the per-tick reconciliation sweep. It observes the new simulated
// time, then scans pending legs in FIFO submission order: confirmed legs
// settle (positions mutate, escrow drains), unreachable or unconfirmed legs
// stay queued for the next tick. Re-processing an already-settled leg is a
// no-op. The whole scan runs under the exchange lock, so no order
// submission interleaves mid-scan.
func (ex *Exchange) Next(now time.Time) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if now.After(ex.now) {
		ex.now = now
	}

	var remaining []*PendingLeg
	for _, leg := range ex.pending {
		if _, done := ex.settled[leg.ID]; done {
			continue
		}

		confirmed := true
		reachable := true
		for _, ref := range leg.Txns {
			txn, err := ex.conf.GetTransaction(ref.Asset, ref.ID)
			if err != nil {
				// layer unreachable: leave pending, do not settle,
				// do not unfreeze
				ex.log.Warn("confirmation query failed",
					zap.String("leg", leg.ID), zap.String("txn", ref.ID), zap.Error(err))
				reachable = false
				break
			}
			if !txn.Confirmed {
				confirmed = false
				break
			}
		}
		if !reachable || !confirmed {
			remaining = append(remaining, leg)
			continue
		}

		if err := ex.settleLeg(leg); err != nil {
			ex.log.Error("settlement failed, will retry",
				zap.String("leg", leg.ID), zap.String("agent", leg.Agent), zap.Error(err))
			remaining = append(remaining, leg)
			continue
		}
		ex.settled[leg.ID] = struct{}{}
		ex.outstandingLegs[leg.OrderID]--

		if pair, err := ex.pairs.Get(leg.Base + leg.Quote); err == nil {
			ex.finalizeOrderEscrow(leg.OrderID, pair)
		}
	}
	ex.pending = remaining
}

// settleLeg applies one confirmed leg to the agent ledger: escrow release,
// FIFO lot exits, the opposite-side enter with basis chaining, fee credit,
// and the agent's transaction history record.
func (ex *Exchange) settleLeg(leg *PendingLeg) error {
	if leg.Side == book.Buy {
		return ex.settleBuy(leg)
	}
	return ex.settleSell(leg)
}

func (ex *Exchange) settleBuy(leg *PendingLeg) error {
	notional := leg.Notional()
	spend := notional.Add(leg.ExchangeFee).Add(leg.NetworkFee)

	if err := ex.agents.Release(leg.Agent, leg.Quote, leg.OrderID, notional, leg.ExchangeFee, leg.NetworkFee); err != nil {
		return err
	}

	cross := leg.Quote != ex.opts.CashAsset
	exitPrice := decimal.NewFromInt(1)
	if cross {
		exitPrice = decimal.Zero
	}
	exits, err := ex.agents.ExitAsset(leg.Agent, leg.Quote, spend, exitPrice, leg.DT)
	if err != nil {
		return err
	}

	var basis position.Basis
	if cross {
		// Defer the quote-side gain: price each exit at its own basis so
		// the PnL realizes on the entered asset's eventual disposal, not
		// on the intermediate hop.
		for _, x := range exits {
			x.Price = x.Basis.PerUnit
		}
		basis = position.ExitBasis(exits, leg.Txns[1].ID, leg.Quote, leg.DT)
		// rescale from per-exited-quote to per-entered-base
		basis.PerUnit = basis.Total.Div(leg.Qty)
	} else {
		basis = position.Basis{
			InitialUnit: leg.Quote,
			Total:       spend,
			PerUnit:     spend.Div(leg.Qty),
			TxnID:       leg.Txns[1].ID,
			Date:        leg.DT,
		}
	}

	if _, err := ex.agents.EnterAsset(leg.Agent, leg.Base, leg.Qty, leg.DT, "buy", basis); err != nil {
		return err
	}
	if err := ex.creditFee(leg.Quote, leg.ExchangeFee); err != nil {
		return err
	}
	ex.archiveExits(leg.Agent, exits)

	return ex.agents.AppendTransaction(leg.Agent, agent.TransactionRecord{
		ID:        leg.ID,
		Type:      "buy",
		Base:      leg.Base,
		Quote:     leg.Quote,
		Qty:       leg.Qty,
		Price:     leg.Price,
		QuoteFlow: leg.QuoteFlow,
		DT:        leg.DT,
		TxnIDs:    []string{leg.Txns[0].ID, leg.Txns[1].ID},
	})
}

func (ex *Exchange) settleSell(leg *PendingLeg) error {
	notional := leg.Notional()
	proceeds := notional.Sub(leg.ExchangeFee).Sub(leg.NetworkFee)

	if err := ex.agents.Release(leg.Agent, leg.Base, leg.OrderID, leg.Qty, decimal.Zero, decimal.Zero); err != nil {
		return err
	}

	cross := leg.Quote != ex.opts.CashAsset
	exitPrice := decimal.Zero
	if !cross {
		exitPrice = proceeds.Div(leg.Qty)
	}
	exits, err := ex.agents.ExitAsset(leg.Agent, leg.Base, leg.Qty, exitPrice, leg.DT)
	if err != nil {
		return err
	}

	var basis position.Basis
	if cross {
		for _, x := range exits {
			x.Price = x.Basis.PerUnit
		}
		basis = position.ExitBasis(exits, leg.Txns[1].ID, leg.Base, leg.DT)
		if proceeds.Sign() > 0 {
			// rescale from per-exited-base to per-entered-quote
			basis.PerUnit = basis.Total.Div(proceeds)
		}
	}

	if proceeds.Sign() > 0 {
		if _, err := ex.agents.EnterAsset(leg.Agent, leg.Quote, proceeds, leg.DT, "sell", basis); err != nil {
			return err
		}
	}
	if err := ex.creditFee(leg.Quote, leg.ExchangeFee); err != nil {
		return err
	}
	ex.archiveExits(leg.Agent, exits)

	return ex.agents.AppendTransaction(leg.Agent, agent.TransactionRecord{
		ID:        leg.ID,
		Type:      "sell",
		Base:      leg.Base,
		Quote:     leg.Quote,
		Qty:       leg.Qty,
		Price:     leg.Price,
		QuoteFlow: leg.QuoteFlow,
		DT:        leg.DT,
		TxnIDs:    []string{leg.Txns[0].ID, leg.Txns[1].ID},
	})
}

// creditFee moves an exchange fee to the operator account.
func (ex *Exchange) creditFee(quote string, fee decimal.Decimal) error {
	if fee.Sign() <= 0 {
		return nil
	}
	_, err := ex.agents.EnterAsset(ex.operator, quote, fee, ex.now, "fee", position.Basis{})
	return err
}

// archiveExits persists realized taxable events; archival errors are logged
// and do not block settlement.
func (ex *Exchange) archiveExits(agentName string, exits []*position.Exit) {
	if ex.arch == nil {
		return
	}
	for _, x := range exits {
		if x.Basis.IsZero() {
			continue
		}
		ex.taxSeq[agentName]++
		if err := ex.arch.PutTaxableEvent(agentName, ex.taxSeq[agentName], x); err != nil {
			ex.log.Warn("taxable event archive failed", zap.String("agent", agentName), zap.Error(err))
		}
	}
}
