package agent

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exsim/pkg/exchange/position"
)

// FrozenAllocation is the escrow reserved against one open order: the
// quantity committed plus the exchange and network fees frozen with it.
// Keeping fees broken out lets cancellation return exactly what was taken.
type FrozenAllocation struct {
	OrderID     string          `json:"order_id"`
	Qty         decimal.Decimal `json:"frozen_qty"`
	ExchangeFee decimal.Decimal `json:"frozen_exchange_fee"`
	NetworkFee  decimal.Decimal `json:"frozen_network_fee"`
}

// Total returns qty + fees, the full amount withheld from the agent.
func (f *FrozenAllocation) Total() decimal.Decimal {
	return f.Qty.Add(f.ExchangeFee).Add(f.NetworkFee)
}

// TransactionRecord is one settled trade leg appended to an agent's history.
// QuoteFlow is signed: negative when quote was spent (a buy), positive when
// received (a sell).
type TransactionRecord struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"` // "buy" or "sell"
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	QuoteFlow decimal.Decimal `json:"quote_flow"`
	DT        time.Time       `json:"dt"`
	TxnIDs    []string        `json:"txn_ids"`
}

// Agent holds one participant's full financial state: balances, escrow,
// lot-tracked positions, and settled transaction history. Agents live for
// the whole simulation and are never deleted.
type Agent struct {
	Name         string                         `json:"name"`
	Assets       map[string]decimal.Decimal     `json:"assets"`
	Frozen       map[string][]*FrozenAllocation `json:"frozen_assets"`
	Positions    []*position.Position           `json:"positions"`
	Transactions []TransactionRecord            `json:"_transactions"`
	CreatedAt    time.Time                      `json:"created_at"`
}

func newAgent(name string, now time.Time) *Agent {
	return &Agent{
		Name:      name,
		Assets:    make(map[string]decimal.Decimal),
		Frozen:    make(map[string][]*FrozenAllocation),
		CreatedAt: now,
	}
}

// Clone returns a deep copy of the agent. The ledger hands out clones so
// readers never alias state the tick loop is mutating.
func (a *Agent) Clone() *Agent {
	cp := *a
	cp.Assets = make(map[string]decimal.Decimal, len(a.Assets))
	for k, v := range a.Assets {
		cp.Assets[k] = v
	}
	cp.Frozen = make(map[string][]*FrozenAllocation, len(a.Frozen))
	for k, allocs := range a.Frozen {
		out := make([]*FrozenAllocation, len(allocs))
		for i, f := range allocs {
			fc := *f
			out[i] = &fc
		}
		cp.Frozen[k] = out
	}
	cp.Positions = position.ClonePositions(a.Positions)
	cp.Transactions = append([]TransactionRecord(nil), a.Transactions...)
	return &cp
}

// Total returns the agent's full holding of asset, frozen included.
func (a *Agent) Total(asset string) decimal.Decimal {
	return a.Assets[asset]
}

// FrozenTotal returns the amount of asset currently escrowed.
func (a *Agent) FrozenTotal(asset string) decimal.Decimal {
	total := decimal.Zero
	for _, f := range a.Frozen[asset] {
		total = total.Add(f.Total())
	}
	return total
}

// Available returns the tradable (non-frozen) balance of asset.
func (a *Agent) Available(asset string) decimal.Decimal {
	return a.Total(asset).Sub(a.FrozenTotal(asset))
}

// PositionFor returns the agent's position in asset, nil if none.
func (a *Agent) PositionFor(asset string) *position.Position {
	for _, p := range a.Positions {
		if p.Asset == asset {
			return p
		}
	}
	return nil
}

// allocationFor finds the escrow allocation for an order, with its index.
func (a *Agent) allocationFor(asset, orderID string) (int, *FrozenAllocation) {
	for i, f := range a.Frozen[asset] {
		if f.OrderID == orderID {
			return i, f
		}
	}
	return -1, nil
}
