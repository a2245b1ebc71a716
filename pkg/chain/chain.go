// Package chain models the asynchronous settlement-finality layer: an
// append-only per-asset chain of confirmed transactions fed from a mempool.
//
// Confirmation is driven externally (see Miner); the exchange never confirms
// its own transactions. A transaction is settlement-final only once
// Confirmed is true.
package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrTxNotFound = errors.New("transaction not found")

// Transaction is one asset movement awaiting (or past) confirmation.
type Transaction struct {
	ID        string          `json:"id"`
	Asset     string          `json:"asset"`
	Fee       decimal.Decimal `json:"fee"`
	Amount    decimal.Decimal `json:"amount"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Confirmed bool            `json:"confirmed"`
	DT        time.Time       `json:"dt"`
}

// Blockchain holds the mempool and the per-asset confirmed chains.
type Blockchain struct {
	mu      sync.RWMutex
	mempool map[string]*Transaction   // id -> unconfirmed txn
	order   []string                  // mempool admission order (FIFO)
	chains  map[string][]*Transaction // asset -> append-only confirmed txns
	nonce   uint64
	log     *zap.Logger
}

// NewBlockchain creates an empty chain set.
func NewBlockchain(log *zap.Logger) *Blockchain {
	return &Blockchain{
		mempool: make(map[string]*Transaction),
		chains:  make(map[string][]*Transaction),
		log:     log,
	}
}

// txnID derives a unique id by hashing the transaction fields plus a nonce.
func (bc *Blockchain) txnID(asset, sender, recipient string, amount decimal.Decimal, dt time.Time) string {
	bc.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], bc.nonce)
	h := crypto.Keccak256(
		[]byte(asset),
		[]byte(sender),
		[]byte(recipient),
		[]byte(amount.String()),
		[]byte(dt.UTC().Format(time.RFC3339Nano)),
		nonce[:],
	)
	return hexutil.Encode(h)
}

// AddTransaction appends an unconfirmed transaction to the mempool.
func (bc *Blockchain) AddTransaction(asset string, fee, amount decimal.Decimal, sender, recipient string, dt time.Time) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("transaction amount must be positive: %s", amount)
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	txn := &Transaction{
		ID:        bc.txnID(asset, sender, recipient, amount, dt),
		Asset:     asset,
		Fee:       fee,
		Amount:    amount,
		Sender:    sender,
		Recipient: recipient,
		DT:        dt,
	}
	bc.mempool[txn.ID] = txn
	bc.order = append(bc.order, txn.ID)
	return txn, nil
}

// GetTransaction looks a transaction up by id, checking the mempool first
// and then the asset's confirmed chain.
func (bc *Blockchain) GetTransaction(asset, id string) (*Transaction, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if txn, ok := bc.mempool[id]; ok {
		return txn, nil
	}
	for _, txn := range bc.chains[asset] {
		if txn.ID == id {
			return txn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrTxNotFound, asset, id)
}

// Confirm flips a mempool transaction to confirmed and appends it to its
// asset's chain. Called by the simulated miner, never by the exchange.
func (bc *Blockchain) Confirm(id string) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	txn, ok := bc.mempool[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	txn.Confirmed = true
	bc.chains[txn.Asset] = append(bc.chains[txn.Asset], txn)
	delete(bc.mempool, id)
	for i, oid := range bc.order {
		if oid == id {
			bc.order = append(bc.order[:i], bc.order[i+1:]...)
			break
		}
	}
	bc.log.Debug("transaction confirmed", zap.String("txn", id), zap.String("asset", txn.Asset))
	return nil
}

// GetMempool returns all unconfirmed transactions in admission order.
func (bc *Blockchain) GetMempool() []*Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	out := make([]*Transaction, 0, len(bc.order))
	for _, id := range bc.order {
		out = append(out, bc.mempool[id])
	}
	return out
}

// GetPendingTransactions returns unconfirmed transactions for one asset,
// in admission order.
func (bc *Blockchain) GetPendingTransactions(asset string) []*Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	var out []*Transaction
	for _, id := range bc.order {
		if txn := bc.mempool[id]; txn.Asset == asset {
			out = append(out, txn)
		}
	}
	return out
}

// GetConfirmedTransactions returns the asset's confirmed chain in append
// order.
func (bc *Blockchain) GetConfirmedTransactions(asset string) []*Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	chain := bc.chains[asset]
	out := make([]*Transaction, len(chain))
	copy(out, chain)
	return out
}
