/*
service.go - The transaction ledger service

PURPOSE:
  The sole writer of transaction records and the sole owner of the
  balance-maintenance protocol. Every create, update, and delete flows
  through here; no other component touches account balances.

BALANCE EFFECT:
  Each transaction contributes a signed, currency-converted amount to its
  account's balance. Create applies it, delete reverses it, update reverses
  the persisted prior effect before applying the new one. Reversal always
  uses the amount/currency that was originally applied, read back from the
  authoritative store, never caller-supplied state. The resulting balance
  is rounded to 2 decimal places before being stored.

WRITE ORDERING:
  Within one call: authoritative store first, read cache second. If the
  authoritative write fails, the cache is not touched. When the store
  implements AtomicStore, the record write and the account update run in a
  single store transaction; otherwise a crash between them leaves the
  balance out of sync until the host triggers a cache rebuild and repair.

SOFT FAILURES:
  A missing account during a balance effect does not abort the mutation.
  The record write proceeds, the account update is skipped, and the skip is
  reported on the result as an AccountMissingWarning (also logged).

EXCLUSIONS:
  Transactions categorized "Opening Balance" (case-insensitive) never
  produce a balance effect, symmetrically on create, update, and delete.

SEE ALSO:
  - cache.go: Read cache semantics
  - transfer.go: Pair reconciliation and transfer mutations
  - store.go: Persistence interfaces
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-ledger/currency"
)

// balancePrecision bounds conversion/float drift accumulating in stored
// balances across many operations.
const balancePrecision = 2

// =============================================================================
// SERVICE
// =============================================================================

// Service owns transaction mutations and balance maintenance for a pair of
// stores. Operations are safe to call concurrently, but the account balance
// is read-modify-written without optimistic locking: two truly concurrent
// writers to the same account race, last write wins.
type Service struct {
	store    TransactionStore
	accounts AccountStore
	convert  currency.Converter
	cache    *ReadCache
	log      zerolog.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() TransactionID
}

func NewService(store TransactionStore, accounts AccountStore, convert currency.Converter, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		convert:  convert,
		cache:    NewReadCache(),
		log:      log,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    func() TransactionID { return TransactionID(uuid.NewString()) },
	}
}

// CreateInput carries every Transaction field a caller may set. ID and
// timestamps are assigned by the Service.
type CreateInput struct {
	AccountID      AccountID
	Date           Date
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Category       string
	Tags           []string
	SubscriptionID string
	OriginalImport *OriginalImport
}

// MutationResult reports the materialized transaction and any soft-failure
// warnings raised while applying balance effects.
type MutationResult struct {
	Transaction Transaction
	Warnings    []AccountMissingWarning
}

// =============================================================================
// CREATE
// =============================================================================

// Create assigns a fresh ID, stamps timestamps, persists the record, and
// applies its balance effect. A blank category defaults to "Uncategorized".
// If the owning account cannot be found the balance effect is skipped with
// a warning rather than aborting; the record is still created.
func (s *Service) Create(ctx context.Context, input CreateInput) (*MutationResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := s.Now()
	tx := Transaction{
		ID:             s.NewID(),
		AccountID:      input.AccountID,
		Date:           input.Date,
		Amount:         input.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		Description:    input.Description,
		Category:       normalizeCategory(input.Category),
		Tags:           normalizeTags(input.Tags),
		SubscriptionID: input.SubscriptionID,
		OriginalImport: input.OriginalImport,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result := &MutationResult{}
	err := s.mutate(ctx, func(txs TransactionStore, accounts AccountStore) error {
		if err := txs.PutTransaction(ctx, tx); err != nil {
			return fmt.Errorf("persist transaction: %w", err)
		}
		if tx.IsOpeningBalance() {
			return nil
		}
		warn, err := s.applyEffect(ctx, accounts, tx, effectApply)
		if err != nil {
			return err
		}
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Append(tx)
	result.Transaction = tx
	return result, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update replaces a transaction wholesale: reverse the persisted prior
// effect, persist the new record, apply the new effect. The prior version
// is read from the authoritative store, not the cache, so reversal never
// acts on stale caller state. CreatedAt is preserved; UpdatedAt is
// restamped. Even when old and new amount/currency are identical, the
// reverse-then-apply sequence still runs, keeping the code path uniform.
func (s *Service) Update(ctx context.Context, tx Transaction) (*MutationResult, error) {
	if tx.ID == "" {
		return nil, &ValidationError{Field: "id", Message: "is required"}
	}
	if err := validateInput(CreateInput{
		AccountID: tx.AccountID,
		Date:      tx.Date,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
	}); err != nil {
		return nil, err
	}

	result := &MutationResult{}
	var updated Transaction
	var priorAccount AccountID

	err := s.mutate(ctx, func(txs TransactionStore, accounts AccountStore) error {
		prior, err := txs.GetTransaction(ctx, tx.ID)
		if err != nil {
			return fmt.Errorf("load prior version: %w", err)
		}

		if prior != nil && !prior.IsOpeningBalance() {
			warn, err := s.applyEffect(ctx, accounts, *prior, effectReverse)
			if err != nil {
				return err
			}
			if warn != nil {
				result.Warnings = append(result.Warnings, *warn)
			}
		}
		if prior != nil {
			priorAccount = prior.AccountID
		}

		updated = tx
		updated.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
		updated.Category = normalizeCategory(tx.Category)
		updated.Tags = normalizeTags(tx.Tags)
		updated.UpdatedAt = s.Now()
		if prior != nil {
			updated.CreatedAt = prior.CreatedAt
		} else {
			// Prior version already gone: nothing to reverse, the write
			// below re-materializes the record.
			updated.CreatedAt = updated.UpdatedAt
		}

		if err := txs.PutTransaction(ctx, updated); err != nil {
			return fmt.Errorf("persist transaction: %w", err)
		}
		if updated.IsOpeningBalance() {
			return nil
		}
		warn, err := s.applyEffect(ctx, accounts, updated, effectApply)
		if err != nil {
			return err
		}
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if priorAccount != "" && priorAccount != updated.AccountID {
		s.cache.Remove(priorAccount, updated.ID)
	}
	s.cache.Upsert(updated)
	result.Transaction = updated
	return result, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete reverses the persisted record's balance effect, removes the record,
// and drops it from the cache. Deleting an already-missing transaction is an
// idempotent success: nothing is reversed twice. The amount/currency used
// for reversal come from the store, never from the caller.
func (s *Service) Delete(ctx context.Context, id TransactionID, accountID AccountID) (*MutationResult, error) {
	result := &MutationResult{}
	var prior *Transaction

	err := s.mutate(ctx, func(txs TransactionStore, accounts AccountStore) error {
		var err error
		prior, err = txs.GetTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if prior == nil {
			return nil // already gone
		}
		if !prior.IsOpeningBalance() {
			warn, err := s.applyEffect(ctx, accounts, *prior, effectReverse)
			if err != nil {
				return err
			}
			if warn != nil {
				result.Warnings = append(result.Warnings, *warn)
			}
		}
		if err := txs.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("remove transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if prior == nil {
		s.cache.Remove(accountID, id)
		return result, nil
	}
	s.cache.Remove(prior.AccountID, id)
	result.Transaction = *prior
	return result, nil
}

// =============================================================================
// READS
// =============================================================================

// Transactions returns an account's transactions, read-through: the first
// access loads from the authoritative store and caches the result.
func (s *Service) Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error) {
	if s.cache.Has(accountID) {
		return s.cache.List(accountID), nil
	}
	txs, err := s.store.TransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	s.cache.ReplaceAll(accountID, txs)
	return txs, nil
}

// TransferPairs reconciles transfer pairs over the full transaction set.
func (s *Service) TransferPairs(ctx context.Context) ([]TransferPair, error) {
	txs, err := s.store.AllTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return Reconcile(txs), nil
}

// RebuildCache reloads an account's cache entry from the authoritative
// store. This is the only recovery path after a detected desync; callers
// (the host application) decide when to trigger it.
func (s *Service) RebuildCache(ctx context.Context, accountID AccountID) error {
	txs, err := s.store.TransactionsByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}
	s.cache.ReplaceAll(accountID, txs)
	return nil
}

// =============================================================================
// BALANCE EFFECT
// =============================================================================

type effectDirection int

const (
	effectApply effectDirection = iota
	effectReverse
)

// applyEffect adds (or subtracts) a transaction's converted amount to its
// account's balance and stores the rounded result. A missing account is a
// soft failure: the skip is returned as a warning, not an error.
func (s *Service) applyEffect(ctx context.Context, accounts AccountStore, tx Transaction, dir effectDirection) (*AccountMissingWarning, error) {
	account, err := accounts.Account(ctx, tx.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", tx.AccountID, err)
	}
	if account == nil {
		s.log.Warn().
			Str("account_id", string(tx.AccountID)).
			Str("transaction_id", string(tx.ID)).
			Msg("balance effect skipped: account not found")
		return &AccountMissingWarning{AccountID: tx.AccountID, TransactionID: tx.ID}, nil
	}

	effect := tx.Amount
	if !strings.EqualFold(tx.Currency, account.Currency) {
		effect, err = s.convert.Convert(tx.Amount, tx.Currency, account.Currency)
		if err != nil {
			return nil, fmt.Errorf("convert %s %s to %s: %w",
				tx.Amount, tx.Currency, account.Currency, err)
		}
	}
	if dir == effectReverse {
		effect = effect.Neg()
	}

	account.Balance = account.Balance.Add(effect).Round(balancePrecision)
	if err := accounts.UpdateAccount(ctx, *account); err != nil {
		return nil, fmt.Errorf("update account balance: %w", err)
	}
	return nil, nil
}

// mutate runs fn against the stores, inside a single store transaction when
// the authoritative store supports one.
func (s *Service) mutate(ctx context.Context, fn func(txs TransactionStore, accounts AccountStore) error) error {
	if atomic, ok := s.store.(AtomicStore); ok {
		return atomic.WithTx(ctx, fn)
	}
	return fn(s.store, s.accounts)
}

// =============================================================================
// INPUT NORMALIZATION
// =============================================================================

func validateInput(in CreateInput) error {
	if in.AccountID == "" {
		return &ValidationError{Field: "accountId", Message: "is required"}
	}
	if in.Amount.IsZero() {
		return &ValidationError{Field: "amount", Message: "must be non-zero"}
	}
	if strings.TrimSpace(in.Currency) == "" {
		return &ValidationError{Field: "currency", Message: "is required"}
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	return nil
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return CategoryUncategorized
	}
	return category
}

// normalizeTags treats tags as a set: drop blanks and duplicates, sort for
// stable comparison and storage.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
