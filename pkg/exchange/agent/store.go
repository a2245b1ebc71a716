package agent

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"
)

// Store provides Pebble-based persistence for agents.
// Thread-safe: all operations go through the Ledger's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func agentKey(name string) []byte { return append([]byte("a:"), name...) }

// SaveAgent persists an agent.
func (s *Store) SaveAgent(a *Agent) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal agent %s: %w", a.Name, err)
	}
	if err := s.db.Set(agentKey(a.Name), data, pebble.Sync); err != nil {
		return fmt.Errorf("save agent %s: %w", a.Name, err)
	}
	return nil
}

// LoadAgent loads an agent by name. Returns nil if absent.
func (s *Store) LoadAgent(name string) (*Agent, error) {
	data, closer, err := s.db.Get(agentKey(name))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", name, err)
	}
	defer closer.Close()

	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal agent %s: %w", name, err)
	}
	if a.Assets == nil {
		a.Assets = make(map[string]decimal.Decimal)
	}
	if a.Frozen == nil {
		a.Frozen = make(map[string][]*FrozenAllocation)
	}
	return &a, nil
}

// LoadAll iterates every stored agent.
func (s *Store) LoadAll() ([]*Agent, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("a:"),
		UpperBound: []byte("a;"), // ';' is ':'+1
	})
	if err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	defer iter.Close()

	var out []*Agent
	for iter.First(); iter.Valid(); iter.Next() {
		var a Agent
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			return nil, fmt.Errorf("unmarshal agent at %s: %w", iter.Key(), err)
		}
		if a.Assets == nil {
			a.Assets = make(map[string]decimal.Decimal)
		}
		if a.Frozen == nil {
			a.Frozen = make(map[string][]*FrozenAllocation)
		}
		out = append(out, &a)
	}
	return out, nil
}
