// Package exchange is the settlement orchestrator: it validates and freezes
// funds for incoming orders, matches them on per-pair books, submits the
// resulting settlement legs to the confirmation layer, and reconciles
// pending legs against confirmations on every tick.
//
// The book is optimistic and settlement is pessimistic: quotes move the
// moment a match happens, but ledgers only move once the confirmation layer
// reports the leg's transactions final.
package exchange

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/archive"
	"github.com/uhyunpark/exsim/pkg/chain"
	"github.com/uhyunpark/exsim/pkg/exchange/agent"
	"github.com/uhyunpark/exsim/pkg/exchange/asset"
	"github.com/uhyunpark/exsim/pkg/exchange/book"
	"github.com/uhyunpark/exsim/pkg/num"
)

// ConfirmationService is the narrow contract the orchestrator holds on the
// blockchain/mempool layer. Both calls may fail transiently; failures leave
// settlement pending and are retried every tick.
type ConfirmationService interface {
	AddTransaction(asset string, fee, amount decimal.Decimal, sender, recipient string, dt time.Time) (*chain.Transaction, error)
	GetTransaction(asset, id string) (*chain.Transaction, error)
}

// Options tunes fees and the reference cash asset.
type Options struct {
	// FeeBps is the exchange fee in basis points of notional, charged in
	// the quote asset on both sides of every fill.
	FeeBps int64
	// NetworkFee is the flat per-order confirmation-layer fee, frozen with
	// buy-side escrow and charged once on the order's first settled leg.
	NetworkFee decimal.Decimal
	// CashAsset is the reference currency for cost basis ("USD").
	CashAsset string
}

// DefaultOptions mirror the standard simulation setup: 10 bps fees, no
// network fee, USD cost basis.
func DefaultOptions() Options {
	return Options{FeeBps: 10, NetworkFee: decimal.Zero, CashAsset: "USD"}
}

// Exchange owns the order books, the agent ledger view, and the pending
// settlement queue. All mutation goes through its methods; a Next scan is a
// logical transaction boundary, so order submission never interleaves with
// a settlement sweep.
type Exchange struct {
	mu sync.Mutex

	pairs  *asset.Registry
	books  map[string]*book.OrderBook
	agents *agent.Ledger
	conf   ConfirmationService
	arch   *archive.Store // optional, nil disables archival
	log    *zap.Logger

	opts     Options
	operator string // ledger name collecting exchange fees

	now time.Time

	pending []*PendingLeg
	settled map[string]struct{} // leg id -> already applied (idempotence)
	// outstandingLegs counts unsettled legs per order id; leftover escrow is
	// returned only when the order is closed and this reaches zero.
	outstandingLegs map[string]int
	// closedOrders holds orders that left the book with escrow still to be
	// drained by in-flight legs.
	closedOrders map[string]*book.Order
	// netFeeCharged marks buy orders whose flat network fee has been attached
	// to a submitted leg; later fills of the same order carry no network fee.
	netFeeCharged map[string]struct{}

	trades   map[string][]Trade
	tradeSeq uint64
	taxSeq   map[string]uint64
}

// New creates an exchange. The archive store may be nil.
func New(pairs *asset.Registry, agents *agent.Ledger, conf ConfirmationService, arch *archive.Store, opts Options, now time.Time, log *zap.Logger) (*Exchange, error) {
	if opts.CashAsset == "" {
		opts.CashAsset = "USD"
	}
	op, err := agents.Register("exchange_operator", nil, now)
	if err != nil {
		return nil, err
	}
	return &Exchange{
		pairs:           pairs,
		books:           make(map[string]*book.OrderBook),
		agents:          agents,
		conf:            conf,
		arch:            arch,
		log:             log,
		opts:            opts,
		operator:        op.Name,
		now:             now,
		settled:         make(map[string]struct{}),
		outstandingLegs: make(map[string]int),
		closedOrders:    make(map[string]*book.Order),
		netFeeCharged:   make(map[string]struct{}),
		trades:          make(map[string][]Trade),
		taxSeq:          make(map[string]uint64),
	}, nil
}

// Agents exposes the ledger for collaborators (HTTP facade, strategies).
func (ex *Exchange) Agents() *agent.Ledger { return ex.agents }

// Pairs exposes the pair registry.
func (ex *Exchange) Pairs() *asset.Registry { return ex.pairs }

// Now returns the last simulated timestamp the exchange observed.
func (ex *Exchange) Now() time.Time {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.now
}

// ObserveTime records a clock broadcast. The exchange reads the clock
// opportunistically: missed updates simply leave the previous value.
func (ex *Exchange) ObserveTime(t time.Time) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if t.After(ex.now) {
		ex.now = t
	}
}

// bookFor returns the book for a ticker, creating it lazily.
// Callers must hold ex.mu.
func (ex *Exchange) bookFor(ticker string) *book.OrderBook {
	b, ok := ex.books[ticker]
	if !ok {
		b = book.NewOrderBook(ticker)
		ex.books[ticker] = b
	}
	return b
}

// feeOn returns the exchange fee for a notional amount.
func (ex *Exchange) feeOn(notional decimal.Decimal) decimal.Decimal {
	return num.BpsOf(notional, ex.opts.FeeBps)
}

// PendingCount reports the number of unsettled legs (for tests/metrics).
func (ex *Exchange) PendingCount() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return len(ex.pending)
}
