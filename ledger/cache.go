/*
cache.go - Per-account read cache mirroring the authoritative store

PURPOSE:
  The Service keeps a second, read-optimized copy of each account's
  transactions so repeated reads don't hit the authoritative store. The
  cache is populated read-through on first access and updated in place by
  every mutation, always AFTER the authoritative write succeeded.

STALENESS:
  The cache carries no versioning. If it diverges from the authoritative
  store (e.g. another process wrote records), the only recovery is an
  explicit rebuild triggered by the host application via
  Service.RebuildCache. No automatic reconciliation is performed.

SEE ALSO:
  - service.go: Mutations and the read-through path
*/
package ledger

import "sync"

// ReadCache mirrors the authoritative transaction set keyed by account.
// Safe for concurrent use.
type ReadCache struct {
	mu        sync.RWMutex
	byAccount map[AccountID][]Transaction
}

func NewReadCache() *ReadCache {
	return &ReadCache{byAccount: make(map[AccountID][]Transaction)}
}

// Has reports whether the cache holds an entry (possibly empty) for the
// account. An absent entry means the account was never loaded.
func (c *ReadCache) Has(accountID AccountID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byAccount[accountID]
	return ok
}

// List returns a copy of the cached transactions for the account.
func (c *ReadCache) List(accountID AccountID) []Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached := c.byAccount[accountID]
	out := make([]Transaction, len(cached))
	copy(out, cached)
	return out
}

// Append adds a freshly created transaction to its account's entry.
// If the account was never loaded there is no entry to extend; the record
// is picked up by the next read-through load instead. Appending into an
// absent entry would make a partial entry masquerade as the full set.
func (c *ReadCache) Append(tx Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if txs, ok := c.byAccount[tx.AccountID]; ok {
		c.byAccount[tx.AccountID] = append(txs, tx)
	}
}

// Upsert replaces the cached transaction in place. If the entry exists but
// has no matching transaction, one is inserted, healing a cache that missed
// the create. Absent entries are left for the read-through load.
func (c *ReadCache) Upsert(tx Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txs, ok := c.byAccount[tx.AccountID]
	if !ok {
		return
	}
	for i := range txs {
		if txs[i].ID == tx.ID {
			txs[i] = tx
			return
		}
	}
	c.byAccount[tx.AccountID] = append(txs, tx)
}

// Remove drops a transaction from its account's entry. Removing an absent
// transaction is a no-op.
func (c *ReadCache) Remove(accountID AccountID, id TransactionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txs := c.byAccount[accountID]
	for i := range txs {
		if txs[i].ID == id {
			c.byAccount[accountID] = append(txs[:i], txs[i+1:]...)
			return
		}
	}
}

// ReplaceAll swaps an account's entire entry, used by rebuilds and the
// read-through load.
func (c *ReadCache) ReplaceAll(accountID AccountID, txs []Transaction) {
	cp := make([]Transaction, len(txs))
	copy(cp, txs)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAccount[accountID] = cp
}

// Invalidate drops an account's entry entirely; the next read reloads it.
func (c *ReadCache) Invalidate(accountID AccountID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byAccount, accountID)
}
