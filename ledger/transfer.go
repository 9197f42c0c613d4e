/*
transfer.go - Transfer pair reconciliation

PURPOSE:
  The system stores a transfer as two independent transactions: a negative
  leg on the source account and a positive leg on the destination. No
  first-class transfer entity is persisted, so pairing is re-derived from
  the transaction set on every read.

MATCHING PREDICATE:
  An outgoing leg O pairs with an incoming leg I when all hold:
    - both are categorized "transfer" (case-insensitive)
    - I.Amount == -O.Amount
    - I.AccountID != O.AccountID
    - same calendar date, same currency
    - I.Description == O.Description, OR both descriptions start with the
      literal prefix "Transfer"
  The predicate is intentionally strict on date/currency/amount to avoid
  false positives, at the cost of missing transfers whose dates drift by a
  day (bank posting delay). The description-prefix branch is broad and can
  mis-pair unrelated same-day same-amount transfers; it is kept for
  compatibility with existing data, with ties broken deterministically.

DETERMINISM:
  Outgoing legs are processed in store order; among multiple candidates the
  incoming leg with the lexicographically smallest ID wins. Each leg is
  consumed at most once. The same input set always yields the same pairs.

EDITING:
  Transfers are never patched one leg at a time; doing so could break the
  equal-and-opposite/same-date invariants between legs. Edit and delete go
  through UpdateTransfer/DeleteTransfer, which drop both legs and recreate
  them.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// transferPrefix is the description prefix accepted by the broad branch of
// the matching predicate.
const transferPrefix = "Transfer"

// =============================================================================
// RECONCILIATION - Pure function over a transaction slice
// =============================================================================

// Reconcile scans txs and reconstructs transfer pairs. It never mutates its
// input. Pairs are sorted by the outgoing leg's date, newest first, for
// display. Legs with no match are simply omitted; see Unpaired.
func Reconcile(txs []Transaction) []TransferPair {
	pairs, _ := reconcile(txs)
	return pairs
}

// Unpaired returns the transfer-categorized transactions left over after
// pairing, in input order. They still exist as ordinary transactions.
func Unpaired(txs []Transaction) []Transaction {
	_, unpaired := reconcile(txs)
	return unpaired
}

func reconcile(txs []Transaction) ([]TransferPair, []Transaction) {
	var candidates []Transaction
	for _, tx := range txs {
		if tx.IsTransfer() {
			candidates = append(candidates, tx)
		}
	}

	consumed := make(map[TransactionID]bool, len(candidates))
	var pairs []TransferPair

	// Outgoing legs in natural store order; every other candidate is a
	// potential incoming leg.
	for _, out := range candidates {
		if !out.Amount.IsNegative() || consumed[out.ID] {
			continue
		}
		var match *Transaction
		for i := range candidates {
			in := candidates[i]
			if consumed[in.ID] || in.ID == out.ID {
				continue
			}
			if !matchesLegs(out, in) {
				continue
			}
			// Deterministic tie-break: smallest incoming ID wins.
			if match == nil || in.ID < match.ID {
				match = &candidates[i]
			}
		}
		if match == nil {
			continue
		}
		consumed[out.ID] = true
		consumed[match.ID] = true
		pairs = append(pairs, TransferPair{From: out, To: *match})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].From.Date.After(pairs[j].From.Date)
	})

	var unpaired []Transaction
	for _, tx := range candidates {
		if !consumed[tx.ID] {
			unpaired = append(unpaired, tx)
		}
	}
	return pairs, unpaired
}

func matchesLegs(out, in Transaction) bool {
	if !in.Amount.Equal(out.Amount.Neg()) {
		return false
	}
	if in.AccountID == out.AccountID {
		return false
	}
	if !in.Date.Equal(out.Date) {
		return false
	}
	if !strings.EqualFold(in.Currency, out.Currency) {
		return false
	}
	if in.Description == out.Description {
		return true
	}
	return strings.HasPrefix(in.Description, transferPrefix) &&
		strings.HasPrefix(out.Description, transferPrefix)
}

// =============================================================================
// TRANSFER MUTATIONS - Composed from Create/Delete, never leg patches
// =============================================================================

// TransferInput describes one logical transfer. Amount is positive; the
// Service derives the signed legs from it.
type TransferInput struct {
	FromAccountID AccountID
	ToAccountID   AccountID
	Amount        decimal.Decimal
	Currency      string
	Date          Date
	Description   string
}

func (in TransferInput) validate() error {
	if in.FromAccountID == "" || in.ToAccountID == "" {
		return &ValidationError{Field: "accountId", Message: "both accounts are required"}
	}
	if in.FromAccountID == in.ToAccountID {
		return &ValidationError{Field: "accountId", Message: "accounts must differ"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return nil
}

// CreateTransfer writes both legs of a transfer: a negative leg on the
// source account and a positive leg on the destination, sharing date,
// currency, and description so the reconciliation predicate pairs them.
func (s *Service) CreateTransfer(ctx context.Context, input TransferInput) (*TransferPair, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	out, err := s.Create(ctx, CreateInput{
		AccountID:   input.FromAccountID,
		Date:        input.Date,
		Amount:      input.Amount.Neg(),
		Currency:    input.Currency,
		Description: input.Description,
		Category:    CategoryTransfer,
	})
	if err != nil {
		return nil, fmt.Errorf("create outgoing leg: %w", err)
	}
	in, err := s.Create(ctx, CreateInput{
		AccountID:   input.ToAccountID,
		Date:        input.Date,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Description: input.Description,
		Category:    CategoryTransfer,
	})
	if err != nil {
		return nil, fmt.Errorf("create incoming leg: %w", err)
	}
	return &TransferPair{From: out.Transaction, To: in.Transaction}, nil
}

// DeleteTransfer removes both legs, reversing each leg's balance effect.
// Missing legs are treated as already-gone.
func (s *Service) DeleteTransfer(ctx context.Context, fromID, toID TransactionID) error {
	if _, err := s.Delete(ctx, fromID, ""); err != nil {
		return fmt.Errorf("delete outgoing leg: %w", err)
	}
	if _, err := s.Delete(ctx, toID, ""); err != nil {
		return fmt.Errorf("delete incoming leg: %w", err)
	}
	return nil
}

// UpdateTransfer edits a transfer by deleting both legs and creating two
// fresh legs with the edited values.
func (s *Service) UpdateTransfer(ctx context.Context, fromID, toID TransactionID, input TransferInput) (*TransferPair, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.DeleteTransfer(ctx, fromID, toID); err != nil {
		return nil, err
	}
	return s.CreateTransfer(ctx, input)
}
