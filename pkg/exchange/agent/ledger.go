package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/exchange/position"
)

var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrNotFrozen      = errors.New("no frozen allocation for order")
	ErrOverUnfreeze   = errors.New("unfreeze exceeds frozen allocation")
	ErrInsufficient   = errors.New("insufficient available balance")
	ErrNoPosition     = errors.New("no position for asset")
)

// Ledger manages all agents in a thread-safe manner: registration, balance
// checks, escrow freezing, admin cash/asset transfers, and the lot-level
// enter/exit mutations driven by settlement.
//
// In-memory map backed by Pebble persistence, mirrored after each mutation.
type Ledger struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	store  *Store
	log    *zap.Logger
}

// NewLedger creates a ledger with Pebble persistence, loading any agents
// stored from a previous run.
func NewLedger(dbPath string, log *zap.Logger) (*Ledger, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("create agent store: %w", err)
	}
	l := &Ledger{
		agents: make(map[string]*Agent),
		store:  store,
		log:    log,
	}
	existing, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	for _, a := range existing {
		l.agents[a.Name] = a
	}
	return l, nil
}

// Close closes the underlying store.
func (l *Ledger) Close() error { return l.store.Close() }

// Register creates a new agent. The display name gets a random suffix so
// repeated registrations of the same base name never collide. Each initial
// asset seeds one position with a single deposit lot (no basis: deposits
// carry no cost trail). Returns a detached snapshot of the new agent.
func (l *Ledger) Register(baseName string, initialAssets map[string]decimal.Decimal, now time.Time) (*Agent, error) {
	if baseName == "" {
		return nil, fmt.Errorf("agent name required")
	}
	if strings.Contains(baseName, ":") {
		return nil, fmt.Errorf("agent name must not contain ':': %q", baseName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	name := baseName
	for {
		suffix := uuid.NewString()[:8]
		name = baseName + "_" + suffix
		if _, taken := l.agents[name]; !taken {
			break
		}
	}

	a := newAgent(name, now)
	for asset, qty := range initialAssets {
		if qty.Sign() <= 0 {
			continue
		}
		a.Assets[asset] = qty
		a.Positions = append(a.Positions, position.NewPosition(name, asset, qty, now, "deposit", position.Basis{}))
	}
	l.agents[name] = a

	if err := l.store.SaveAgent(a); err != nil {
		return nil, err
	}
	l.log.Info("agent registered", zap.String("agent", name))
	return a.Clone(), nil
}

// Get returns a detached snapshot of the agent with the exact generated name.
// All mutation goes through ledger methods; callers never hold live state.
func (l *Ledger) Get(name string) (*Agent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a.Clone(), nil
}

// List returns detached snapshots of all agents sorted by name.
func (l *Ledger) List() []*Agent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Agent, 0, len(l.agents))
	for _, a := range l.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasCash reports whether the agent's available cash covers amount + fee.
func (l *Ledger) HasCash(name, cashAsset string, amount, fee decimal.Decimal) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.agents[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a.Available(cashAsset).Cmp(amount.Add(fee)) >= 0, nil
}

// HasAssets reports whether the agent's available balance covers qty.
func (l *Ledger) HasAssets(name, asset string, qty decimal.Decimal) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.agents[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a.Available(asset).Cmp(qty) >= 0, nil
}

// Freeze escrows qty plus fees of asset against orderID.
// Frozen never exceeds total held: the check is against available balance.
func (l *Ledger) Freeze(name, asset string, qty, exchangeFee, networkFee decimal.Decimal, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	alloc := &FrozenAllocation{
		OrderID:     orderID,
		Qty:         qty,
		ExchangeFee: exchangeFee,
		NetworkFee:  networkFee,
	}
	if a.Available(asset).Cmp(alloc.Total()) < 0 {
		return fmt.Errorf("%w: freeze %s %s for %s", ErrInsufficient, alloc.Total(), asset, name)
	}
	a.Frozen[asset] = append(a.Frozen[asset], alloc)
	return l.store.SaveAgent(a)
}

// Unfreeze releases the whole remaining allocation for orderID and returns
// it. Unfreezing an amount not currently frozen is an error.
func (l *Ledger) Unfreeze(name, asset, orderID string) (*FrozenAllocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	i, alloc := a.allocationFor(asset, orderID)
	if alloc == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFrozen, asset, orderID)
	}
	a.Frozen[asset] = append(a.Frozen[asset][:i], a.Frozen[asset][i+1:]...)
	return alloc, l.store.SaveAgent(a)
}

// Release consumes part of an order's frozen allocation: qty plus the given
// fee portions are removed from escrow (they are about to leave the balance
// through settlement). The allocation is dropped once fully consumed.
func (l *Ledger) Release(name, asset, orderID string, qty, exchangeFee, networkFee decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	i, alloc := a.allocationFor(asset, orderID)
	if alloc == nil {
		return fmt.Errorf("%w: %s/%s", ErrNotFrozen, asset, orderID)
	}
	if alloc.Qty.Cmp(qty) < 0 || alloc.ExchangeFee.Cmp(exchangeFee) < 0 || alloc.NetworkFee.Cmp(networkFee) < 0 {
		return fmt.Errorf("%w: %s/%s", ErrOverUnfreeze, asset, orderID)
	}
	alloc.Qty = alloc.Qty.Sub(qty)
	alloc.ExchangeFee = alloc.ExchangeFee.Sub(exchangeFee)
	alloc.NetworkFee = alloc.NetworkFee.Sub(networkFee)
	if alloc.Total().Sign() == 0 {
		a.Frozen[asset] = append(a.Frozen[asset][:i], a.Frozen[asset][i+1:]...)
	}
	return l.store.SaveAgent(a)
}

// EnterAsset credits qty of asset, opening a lot on the agent's position for
// that asset (creating the position if absent).
func (l *Ledger) EnterAsset(name, asset string, qty decimal.Decimal, dt time.Time, enterType string, basis position.Basis) (*position.Enter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("enter qty must be positive: %s", qty)
	}

	var e *position.Enter
	if p := a.PositionFor(asset); p != nil {
		e = p.AddEnter(qty, dt, enterType, basis)
	} else {
		p = position.NewPosition(name, asset, qty, dt, enterType, basis)
		a.Positions = append(a.Positions, p)
		e = p.Enters[0]
	}
	a.Assets[asset] = a.Assets[asset].Add(qty)
	return e, l.store.SaveAgent(a)
}

// ExitAsset debits qty of asset at a per-unit proceeds of price, consuming
// lots FIFO. Settlement releases escrow before exiting, so the check is
// simply against the available balance.
func (l *Ledger) ExitAsset(name, asset string, qty, price decimal.Decimal, dt time.Time) ([]*position.Exit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	if a.Available(asset).Cmp(qty) < 0 {
		return nil, fmt.Errorf("%w: exit %s %s for %s", ErrInsufficient, qty, asset, name)
	}
	p := a.PositionFor(asset)
	if p == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoPosition, name, asset)
	}
	exits, err := p.Consume(qty, price, dt)
	if err != nil {
		return nil, err
	}
	a.Assets[asset] = a.Assets[asset].Sub(qty)
	return exits, l.store.SaveAgent(a)
}

// AppendTransaction records a settled trade leg in the agent's history.
func (l *Ledger) AppendTransaction(name string, rec TransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	a.Transactions = append(a.Transactions, rec)
	return l.store.SaveAgent(a)
}

// AddAsset is the admin credit path, bypassing the order book. Used for
// seeding, dividends, and fee/tax transfers. Produces an Enter so position
// history stays consistent with the balance.
func (l *Ledger) AddAsset(name, asset string, qty decimal.Decimal, dt time.Time, reason string) error {
	_, err := l.EnterAsset(name, asset, qty, dt, reason, position.Basis{})
	return err
}

// RemoveAsset is the admin debit path. Produces Exits (zero proceeds) so the
// lot history accounts for every unit that left.
func (l *Ledger) RemoveAsset(name, asset string, qty decimal.Decimal, dt time.Time) error {
	_, err := l.ExitAsset(name, asset, qty, decimal.Zero, dt)
	return err
}

// TaxableEvents aggregates exit records into capital-gains events. With
// name == "" all agents are included.
func (l *Ledger) TaxableEvents(name string) ([]position.TaxableEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if name != "" {
		a, ok := l.agents[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
		}
		return position.TaxableEvents(a.Positions), nil
	}
	names := make([]string, 0, len(l.agents))
	for n := range l.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	var out []position.TaxableEvent
	for _, n := range names {
		out = append(out, position.TaxableEvents(l.agents[n].Positions)...)
	}
	return out, nil
}

// Holding reports each agent's total balance of asset, skipping zeros.
func (l *Ledger) Holding(asset string) map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]decimal.Decimal)
	for name, a := range l.agents {
		if q := a.Total(asset); q.Sign() > 0 {
			out[name] = q
		}
	}
	return out
}

// OutstandingUnits sums every agent's holding of asset.
func (l *Ledger) OutstandingUnits(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, a := range l.agents {
		total = total.Add(a.Total(asset))
	}
	return total
}
