/*
Package ledger is the transaction ledger at the core of the finance tracker.

PURPOSE:
  Owns every mutation of transaction records and the balance-maintenance
  protocol that keeps each account's balance equal to the converted sum of
  its transactions. Also hosts the transfer reconciliation algorithm that
  reconstructs transfer pairs from independently stored legs.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: A dated, signed, currency-denominated ledger entry
  - Account: Identity, denomination, and running balance
  - TransferPair: Two legs reconstructed into one logical transfer

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all amounts, never float64
  2. Single writer: Only the Service mutates transactions and balances
  3. Derived transfers: TransferPair is computed on read, never persisted

SEE ALSO:
  - service.go: Create/Update/Delete and the balance effect
  - transfer.go: Transfer pair reconciliation
  - store.go: Persistence interfaces
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string
type AccountID string

// =============================================================================
// CATEGORY MARKERS
// =============================================================================

const (
	// CategoryUncategorized is assigned when a transaction arrives with a
	// blank category.
	CategoryUncategorized = "Uncategorized"

	// CategoryTransfer marks a transaction as one leg of a transfer.
	// Matching is case-insensitive.
	CategoryTransfer = "Transfer"

	// CategoryOpeningBalance marks a transaction that seeds an account and
	// must not contribute a balance effect. Matching is case-insensitive.
	CategoryOpeningBalance = "Opening Balance"
)

// =============================================================================
// TRANSACTION
// =============================================================================

// OriginalImport preserves the foreign amount/currency of an imported
// transaction for display and audit. It never participates in balance math.
type OriginalImport struct {
	Amount   decimal.Decimal
	Currency string
}

// Transaction is a single ledger entry. Negative amounts are outflows
// (expenses, outgoing transfer legs); positive amounts are inflows.
// The amount is denominated in Currency, which may differ from the owning
// account's currency.
type Transaction struct {
	ID          TransactionID
	AccountID   AccountID
	Date        Date
	Amount      decimal.Decimal
	Currency    string
	Description string
	Category    string

	// Tags is an order-irrelevant set of tag names, may be empty.
	Tags []string

	// SubscriptionID optionally links back to a recurring-subscription
	// definition. Informational only.
	SubscriptionID string

	// OriginalImport is present only for imported transactions.
	OriginalImport *OriginalImport

	// Stamped by the Service, never by callers.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTransfer reports whether the transaction is categorized as a transfer leg.
func (t Transaction) IsTransfer() bool {
	return strings.EqualFold(t.Category, CategoryTransfer)
}

// IsOpeningBalance reports whether the transaction is an opening-balance
// seed, which is excluded from the balance effect.
func (t Transaction) IsOpeningBalance() bool {
	return strings.EqualFold(t.Category, CategoryOpeningBalance)
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountCategory string

const (
	AccountAsset  AccountCategory = "asset"
	AccountCrypto AccountCategory = "crypto"
)

// Account holds an account's identity, denomination, and running balance.
// Once transactions exist against an account, Balance is owned exclusively
// by the ledger Service; any other writer is a protocol violation.
type Account struct {
	ID       AccountID
	Name     string
	Currency string
	Balance  decimal.Decimal
	Category AccountCategory
}

// =============================================================================
// TRANSFER PAIR - Derived, never persisted
// =============================================================================

// TransferPair joins an outgoing leg (From, negative amount) with its
// matching incoming leg (To, positive amount). Pairs are recomputed from the
// transaction set on every read; recomputing from the same set always yields
// the same pairing.
type TransferPair struct {
	From Transaction
	To   Transaction
}
