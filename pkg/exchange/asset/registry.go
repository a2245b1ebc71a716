package asset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrPairNotFound = errors.New("pair not found")

// Registry manages all tradable pairs in a thread-safe manner.
// Supports registration, lookup, and active-flag updates.
type Registry struct {
	mu    sync.RWMutex
	pairs map[string]*Pair // ticker -> pair
}

// NewRegistry creates an empty pair registry.
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[string]*Pair)}
}

// Register adds a new pair to the registry.
// Returns an error if a pair with the same ticker already exists.
func (r *Registry) Register(p *Pair) error {
	if p == nil {
		return fmt.Errorf("cannot register nil pair")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[p.Ticker]; exists {
		return fmt.Errorf("pair %s already registered", p.Ticker)
	}
	r.pairs[p.Ticker] = p
	return nil
}

// Get retrieves a pair by ticker.
func (r *Registry) Get(ticker string) (*Pair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pairs[ticker]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPairNotFound, ticker)
	}
	return p, nil
}

// List returns all registered pairs sorted by ticker.
func (r *Registry) List() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// ListActive returns only pairs open for trading.
func (r *Registry) ListActive() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pair, 0)
	for _, p := range r.pairs {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// SetActive halts or resumes trading on a pair.
func (r *Registry) SetActive(ticker string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pairs[ticker]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPairNotFound, ticker)
	}
	p.IsActive = active
	return nil
}

// Exists checks whether a ticker is registered.
func (r *Registry) Exists(ticker string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.pairs[ticker]
	return exists
}

// Count returns the number of registered pairs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}
