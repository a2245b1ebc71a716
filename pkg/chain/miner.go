package chain

import (
	"sync"

	"go.uber.org/zap"
)

// Miner simulates block production: each Tick it ages every mempool
// transaction and confirms those that have waited the configured number of
// ticks. It is the only component that confirms transactions.
type Miner struct {
	mu    sync.Mutex
	chain *Blockchain
	delay int            // ticks a txn stays pending before confirmation
	age   map[string]int // txn id -> ticks observed
	log   *zap.Logger
}

// NewMiner creates a miner confirming after delay ticks (0 = next tick).
func NewMiner(bc *Blockchain, delay int, log *zap.Logger) *Miner {
	if delay < 0 {
		delay = 0
	}
	return &Miner{
		chain: bc,
		delay: delay,
		age:   make(map[string]int),
		log:   log,
	}
}

// Tick advances the miner one simulated step and returns the ids confirmed.
func (m *Miner) Tick() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var confirmed []string
	for _, txn := range m.chain.GetMempool() {
		m.age[txn.ID]++
		if m.age[txn.ID] > m.delay {
			if err := m.chain.Confirm(txn.ID); err != nil {
				m.log.Warn("confirm failed", zap.String("txn", txn.ID), zap.Error(err))
				continue
			}
			delete(m.age, txn.ID)
			confirmed = append(confirmed, txn.ID)
		}
	}
	if len(confirmed) > 0 {
		m.log.Info("mined", zap.Int("confirmed", len(confirmed)))
	}
	return confirmed
}
