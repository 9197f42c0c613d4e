/*
store.go - Persistence interfaces for transactions and accounts

PURPOSE:
  Defines the boundary between the ledger Service and the authoritative
  store. Implementations exist for SQLite (production) and in-memory
  (tests/dev). A single concrete type may implement both interfaces.

WRITE ORDERING CONTRACT:
  The Service always writes the authoritative store before reflecting a
  change in its read cache. Store implementations must therefore report
  write failures rather than deferring them, so the cache never claims a
  state that was not durably persisted.

ATOMICITY:
  The account-balance update and the transaction write are two separate
  operations. Stores that support multi-record transactions should also
  implement AtomicStore; the Service then wraps each mutation in WithTx so
  a failure cannot leave the balance out of sync with the record set.
  Stores without that capability accept the documented crash window.

NOT-FOUND CONVENTION:
  Get-style reads return (nil, nil) for a missing record, mirroring a
  single-row query with no result. Errors are reserved for store failures.

SEE ALSO:
  - store/memory.go: In-memory implementation
  - ../store/sqlite/sqlite.go: SQLite implementation with WithTx
*/
package ledger

import "context"

// =============================================================================
// TRANSACTION STORE
// =============================================================================

// TransactionStore persists transaction records keyed by ID.
type TransactionStore interface {
	// PutTransaction inserts or replaces a transaction by ID.
	PutTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns the persisted transaction, or nil if missing.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// DeleteTransaction removes a transaction. Deleting a missing record
	// is not an error.
	DeleteTransaction(ctx context.Context, id TransactionID) error

	// TransactionsByAccount returns all transactions owned by an account,
	// in stable store order (insertion order).
	TransactionsByAccount(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// AllTransactions returns every transaction, in stable store order.
	// Used by the transfer reconciliation view.
	AllTransactions(ctx context.Context) ([]Transaction, error)
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// AccountStore exposes the account collaborator surface the ledger depends
// on. The ledger never creates or deletes accounts; it only reads them and
// rewrites balances.
type AccountStore interface {
	// Accounts lists all accounts.
	Accounts(ctx context.Context) ([]Account, error)

	// Account returns a single account, or nil if missing.
	Account(ctx context.Context, id AccountID) (*Account, error)

	// UpdateAccount replaces an account record.
	UpdateAccount(ctx context.Context, account Account) error
}

// =============================================================================
// ATOMIC STORE - Optional multi-record transaction capability
// =============================================================================

// AtomicStore is implemented by stores that can execute a record write and
// an account-balance update as one transaction. If fn returns an error the
// whole mutation is rolled back.
type AtomicStore interface {
	WithTx(ctx context.Context, fn func(txs TransactionStore, accounts AccountStore) error) error
}
