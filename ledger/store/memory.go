// Package store provides in-memory implementations of the ledger's
// persistence interfaces, used by tests and dev setups.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/finance-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - Implements TransactionStore and AccountStore
// =============================================================================

// Memory keeps transactions in insertion order, matching the "natural store
// order" the reconciliation engine depends on. Replacing a transaction
// keeps its original position.
type Memory struct {
	mu       sync.RWMutex
	txs      map[ledger.TransactionID]ledger.Transaction
	order    []ledger.TransactionID
	accounts map[ledger.AccountID]ledger.Account
}

func NewMemory() *Memory {
	return &Memory{
		txs:      make(map[ledger.TransactionID]ledger.Transaction),
		accounts: make(map[ledger.AccountID]ledger.Account),
	}
}

// SeedAccount installs an account record. Account creation is the account
// manager's job, not the ledger's; tests and dev wiring use this directly.
func (m *Memory) SeedAccount(account ledger.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

// -----------------------------------------------------------------------------
// TransactionStore
// -----------------------------------------------------------------------------

func (m *Memory) PutTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txs[tx.ID]; !exists {
		m.order = append(m.order, tx.ID)
	}
	m.txs[tx.ID] = tx
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *Memory) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[id]; !ok {
		return nil
	}
	delete(m.txs, id)
	for i, ordered := range m.order {
		if ordered == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) TransactionsByAccount(_ context.Context, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.Transaction
	for _, id := range m.order {
		if tx := m.txs[id]; tx.AccountID == accountID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) AllTransactions(_ context.Context) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.Transaction, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.txs[id])
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// AccountStore
// -----------------------------------------------------------------------------

func (m *Memory) Accounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) Account(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (m *Memory) UpdateAccount(_ context.Context, account ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}
