// Package archive is the keyed on-disk store for records that outlive the
// simulation's in-memory state: settled trades and realized taxable events.
package archive

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store wraps a Pebble database with prefix-scoped JSON records.
//
// keys: tr:<ticker>:<seq> for trades, tx:<agent>:<seq> for taxable events.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the archive at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func tradeKey(ticker string, seq uint64) []byte {
	return []byte(fmt.Sprintf("tr:%s:%020d", ticker, seq))
}

func taxKey(agent string, seq uint64) []byte {
	return []byte(fmt.Sprintf("tx:%s:%020d", agent, seq))
}

// PutTrade archives one settled trade under the ticker's prefix.
func (s *Store) PutTrade(ticker string, seq uint64, trade any) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if err := s.db.Set(tradeKey(ticker, seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("archive trade %s/%d: %w", ticker, seq, err)
	}
	return nil
}

// PutTaxableEvent archives one realized capital-gains event.
func (s *Store) PutTaxableEvent(agent string, seq uint64, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal taxable event: %w", err)
	}
	if err := s.db.Set(taxKey(agent, seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("archive taxable event %s/%d: %w", agent, seq, err)
	}
	return nil
}

// scan iterates all values under prefix, decoding each into a fresh T.
func scan[T any](db *pebble.DB, prefix string) ([]T, error) {
	upper := []byte(prefix)
	upper = append(upper[:len(upper):len(upper)], 0xff)

	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", prefix, err)
	}
	defer iter.Close()

	var out []T
	for iter.First(); iter.Valid(); iter.Next() {
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, fmt.Errorf("unmarshal record at %s: %w", iter.Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Trades returns the archived trades for a ticker in sequence order.
func Trades[T any](s *Store, ticker string) ([]T, error) {
	return scan[T](s.db, "tr:"+ticker+":")
}

// TaxableEvents returns the archived events for an agent in sequence order.
func TaxableEvents[T any](s *Store, agent string) ([]T, error) {
	return scan[T](s.db, "tx:"+agent+":")
}
