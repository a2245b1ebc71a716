// Package position tracks per-agent, per-asset tax lots.
//
// Every acquisition opens an Enter (a lot); every disposal consumes Enters in
// FIFO order, producing one Exit record per lot drawn from. Each Exit carries
// the basis of its Enter so realized gain survives any number of currency
// hops between acquisition and final disposal.
package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LongTermHolding is the minimum holding period for long-term treatment.
const LongTermHolding = 365 * 24 * time.Hour

// Basis records the cost trail of a lot: the unit it was paid in, the total
// and per-unit cost, and the transaction that established it.
type Basis struct {
	InitialUnit string          `json:"basis_initial_unit"`
	Total       decimal.Decimal `json:"basis_total"`
	PerUnit     decimal.Decimal `json:"basis_per_unit"`
	TxnID       string          `json:"basis_txn_id"`
	Date        time.Time       `json:"basis_date"`
}

// IsZero reports whether b carries no cost information.
func (b Basis) IsZero() bool {
	return b.InitialUnit == "" && b.Total.Sign() == 0 && b.PerUnit.Sign() == 0
}

// Enter is a discrete acquisition of an asset (an open lot).
// Qty is the remaining unconsumed quantity; InitialQty never changes.
type Enter struct {
	ID         string          `json:"id"`
	Agent      string          `json:"agent"`
	Asset      string          `json:"asset"`
	InitialQty decimal.Decimal `json:"initial_qty"`
	Qty        decimal.Decimal `json:"qty"`
	DT         time.Time       `json:"dt"`
	Type       string          `json:"type"` // "buy", "deposit", "dividend", ...
	Basis      Basis           `json:"basis"`
}

// Exit records consumption of (part of) one Enter.
// Price is the per-unit proceeds in the basis unit; Basis is copied from the
// Enter the exit draws on, so PnL = (Price - Basis.PerUnit) * Qty.
type Exit struct {
	ID      string          `json:"id"`
	Agent   string          `json:"agent"`
	Asset   string          `json:"asset"`
	Qty     decimal.Decimal `json:"qty"`
	DT      time.Time       `json:"dt"`
	EnterID string          `json:"enter_id"`
	Price   decimal.Decimal `json:"price"`
	Basis   Basis           `json:"basis"`
}

// EnterDT returns the acquisition date the exit inherits (from its basis).
func (e *Exit) EnterDT() time.Time { return e.Basis.Date }

// PnL returns the realized gain or loss of this exit.
func (e *Exit) PnL() decimal.Decimal {
	return e.Price.Sub(e.Basis.PerUnit).Mul(e.Qty)
}

// LongTerm reports whether the holding period qualifies as long-term.
func (e *Exit) LongTerm() bool {
	return e.DT.Sub(e.Basis.Date) >= LongTermHolding
}

// Position is an agent's net holding of one asset with its full lot history.
type Position struct {
	ID     string          `json:"id"`
	Agent  string          `json:"agent"`
	Asset  string          `json:"asset"`
	Qty    decimal.Decimal `json:"qty"`
	DT     time.Time       `json:"dt"`
	Enters []*Enter        `json:"enters"`
	Exits  []*Exit         `json:"exits"`
}

// NewPosition opens a position with a single initial lot.
func NewPosition(agent, asset string, qty decimal.Decimal, dt time.Time, enterType string, basis Basis) *Position {
	p := &Position{
		ID:    uuid.NewString(),
		Agent: agent,
		Asset: asset,
		DT:    dt,
	}
	p.AddEnter(qty, dt, enterType, basis)
	return p
}

// AddEnter appends a new lot and increments the net quantity.
func (p *Position) AddEnter(qty decimal.Decimal, dt time.Time, enterType string, basis Basis) *Enter {
	if basis.Date.IsZero() {
		basis.Date = dt
	}
	e := &Enter{
		ID:         uuid.NewString(),
		Agent:      p.Agent,
		Asset:      p.Asset,
		InitialQty: qty,
		Qty:        qty,
		DT:         dt,
		Type:       enterType,
		Basis:      basis,
	}
	p.Enters = append(p.Enters, e)
	p.Qty = p.Qty.Add(qty)
	return e
}

// Clone returns a deep copy of the position, detached from the original's
// lot slices.
func (p *Position) Clone() *Position {
	cp := *p
	cp.Enters = make([]*Enter, len(p.Enters))
	for i, e := range p.Enters {
		ec := *e
		cp.Enters[i] = &ec
	}
	cp.Exits = make([]*Exit, len(p.Exits))
	for i, x := range p.Exits {
		xc := *x
		cp.Exits[i] = &xc
	}
	return &cp
}

// ClonePositions deep-copies a slice of positions.
func ClonePositions(positions []*Position) []*Position {
	if positions == nil {
		return nil
	}
	out := make([]*Position, len(positions))
	for i, p := range positions {
		out[i] = p.Clone()
	}
	return out
}

// Consume exits qty from the position in FIFO lot order, at a per-unit
// proceeds of price. One call may span several Enters and then produces one
// Exit per lot drawn from. The net quantity never goes negative: exiting
// more than held is a caller contract violation and returns an error with
// no lots consumed.
func (p *Position) Consume(qty, price decimal.Decimal, dt time.Time) ([]*Exit, error) {
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("exit qty must be positive: %s", qty)
	}
	if qty.Cmp(p.Qty) > 0 {
		return nil, fmt.Errorf("exit %s exceeds position qty %s of %s", qty, p.Qty, p.Asset)
	}

	remaining := qty
	var exits []*Exit
	for _, e := range p.Enters {
		if remaining.Sign() == 0 {
			break
		}
		if e.Qty.Sign() <= 0 {
			continue
		}
		take := decimal.Min(remaining, e.Qty)
		e.Qty = e.Qty.Sub(take)
		remaining = remaining.Sub(take)

		exits = append(exits, &Exit{
			ID:      uuid.NewString(),
			Agent:   p.Agent,
			Asset:   p.Asset,
			Qty:     take,
			DT:      dt,
			EnterID: e.ID,
			Price:   price,
			Basis:   e.Basis,
		})
	}

	p.Qty = p.Qty.Sub(qty)
	p.Exits = append(p.Exits, exits...)
	return exits, nil
}

// ExitBasis aggregates the basis consumed by a set of exits into a single
// basis record for the lot entered on the other side of a cross-currency
// trade. Totals are summed from each exit's per-unit basis; the initial unit
// is taken from the first exit with one (falling back to fallbackUnit).
func ExitBasis(exits []*Exit, txnID string, fallbackUnit string, date time.Time) Basis {
	total := decimal.Zero
	qty := decimal.Zero
	unit := ""
	first := date
	for _, x := range exits {
		total = total.Add(x.Basis.PerUnit.Mul(x.Qty))
		qty = qty.Add(x.Qty)
		if unit == "" && x.Basis.InitialUnit != "" {
			unit = x.Basis.InitialUnit
		}
		if x.Basis.Date.Before(first) {
			first = x.Basis.Date
		}
	}
	if unit == "" {
		unit = fallbackUnit
	}
	b := Basis{InitialUnit: unit, Total: total, TxnID: txnID, Date: first}
	if qty.Sign() > 0 {
		b.PerUnit = total.Div(qty)
	}
	return b
}

// TaxableEvent is one realized capital gain or loss, derived from an Exit.
type TaxableEvent struct {
	Agent     string          `json:"agent"`
	Asset     string          `json:"asset"`
	EnterDate time.Time       `json:"enter_date"`
	ExitDate  time.Time       `json:"exit_date"`
	Qty       decimal.Decimal `json:"qty"`
	PnL       decimal.Decimal `json:"pnl"`
	LongTerm  bool            `json:"long_term"`
	Type      string          `json:"type"` // always "capital_gains"
}

// TaxableEvents derives events from every exit across the given positions.
// Zero-basis exits (deposits, admin removals) are skipped: without a cost
// trail there is nothing to realize against.
func TaxableEvents(positions []*Position) []TaxableEvent {
	var out []TaxableEvent
	for _, p := range positions {
		for _, x := range p.Exits {
			if x.Basis.IsZero() {
				continue
			}
			out = append(out, TaxableEvent{
				Agent:     p.Agent,
				Asset:     p.Asset,
				EnterDate: x.Basis.Date,
				ExitDate:  x.DT,
				Qty:       x.Qty,
				PnL:       x.PnL(),
				LongTerm:  x.LongTerm(),
				Type:      "capital_gains",
			})
		}
	}
	return out
}
