package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-ledger/currency"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testRates quotes units-per-USD, so 1 USD = 0.9 EUR.
func testRates() *currency.RateTable {
	return currency.NewRateTable(map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.9"),
	})
}

func newTestService(t *testing.T) (*ledger.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := ledger.NewService(mem, mem, testRates(), zerolog.Nop())

	// Deterministic IDs for stable assertions.
	n := 0
	svc.NewID = func() ledger.TransactionID {
		n++
		return ledger.TransactionID(fmt.Sprintf("tx-%03d", n))
	}
	return svc, mem
}

func seedAccount(mem *store.Memory, id, curr string) {
	mem.SeedAccount(ledger.Account{
		ID:       ledger.AccountID(id),
		Name:     id,
		Currency: curr,
		Balance:  decimal.Zero,
		Category: ledger.AccountAsset,
	})
}

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func balanceOf(t *testing.T, mem *store.Memory, id string) decimal.Decimal {
	t.Helper()
	account, err := mem.Account(context.Background(), ledger.AccountID(id))
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.Balance
}

func createInput(accountID, amount, curr string) ledger.CreateInput {
	return ledger.CreateInput{
		AccountID: ledger.AccountID(accountID),
		Date:      ledger.NewDate(2024, 1, 1),
		Amount:    usd(amount),
		Currency:  curr,
		Category:  "Groceries",
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_SameCurrency_AppliesAmountDirectly(t *testing.T) {
	// GIVEN: account X (USD, balance 0)
	// WHEN: creating a -20 USD transaction
	// THEN: balance becomes -20.00

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")

	result, err := svc.Create(context.Background(), createInput("X", "-20", "USD"))
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.NotEmpty(t, result.Transaction.ID)
	assert.False(t, result.Transaction.CreatedAt.IsZero())

	assert.True(t, balanceOf(t, mem, "X").Equal(usd("-20")),
		"expected -20.00, got %s", balanceOf(t, mem, "X"))
}

func TestCreate_CrossCurrency_ConvertsBeforeApplying(t *testing.T) {
	// GIVEN: account Y (EUR, balance 0) and a 1 USD = 0.9 EUR rate
	// WHEN: creating a +10 USD transaction against it
	// THEN: balance becomes 9.00 EUR

	svc, mem := newTestService(t)
	seedAccount(mem, "Y", "EUR")

	_, err := svc.Create(context.Background(), createInput("Y", "10", "USD"))
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "Y").Equal(usd("9")),
		"expected 9.00 EUR, got %s", balanceOf(t, mem, "Y"))
}

func TestCreate_RoundsStoredBalanceToTwoPlaces(t *testing.T) {
	// GIVEN: account in EUR
	// WHEN: 10.555 USD converts to 9.4995 EUR
	// THEN: stored balance is rounded to 9.50

	svc, mem := newTestService(t)
	seedAccount(mem, "Y", "EUR")

	_, err := svc.Create(context.Background(), createInput("Y", "10.555", "USD"))
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "Y").Equal(usd("9.50")),
		"expected 9.50, got %s", balanceOf(t, mem, "Y"))
}

func TestCreate_BlankCategory_DefaultsToUncategorized(t *testing.T) {
	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")

	input := createInput("X", "-5", "USD")
	input.Category = "   "
	result, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, ledger.CategoryUncategorized, result.Transaction.Category)
}

func TestCreate_NormalizesTagsAsSet(t *testing.T) {
	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")

	input := createInput("X", "-5", "USD")
	input.Tags = []string{"food", "", "weekly", "food"}
	result, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"food", "weekly"}, result.Transaction.Tags)
}

func TestCreate_OpeningBalance_SkipsBalanceEffect(t *testing.T) {
	// GIVEN: account X (USD, balance 0)
	// WHEN: creating a transaction categorized "opening balance" (any case)
	// THEN: the record is persisted but the balance stays 0

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")

	input := createInput("X", "100", "USD")
	input.Category = "opening balance"
	result, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").IsZero())

	persisted, err := mem.GetTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
}

func TestCreate_MissingAccount_SoftFailsWithWarning(t *testing.T) {
	// GIVEN: no account "ghost" exists
	// WHEN: creating a transaction against it
	// THEN: the record is still created and the result carries a typed
	//       warning instead of an error

	svc, mem := newTestService(t)

	result, err := svc.Create(context.Background(), createInput("ghost", "-20", "USD"))
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, ledger.AccountID("ghost"), result.Warnings[0].AccountID)
	assert.ErrorIs(t, &result.Warnings[0], ledger.ErrAccountNotFound)

	persisted, err := mem.GetTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted, "record must exist despite the skipped effect")
}

func TestCreate_UnsupportedCurrency_Propagates(t *testing.T) {
	// GIVEN: the rate table has no XYZ rate
	// WHEN: creating an XYZ transaction against a USD account
	// THEN: the error propagates; no default rate is substituted

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")

	_, err := svc.Create(context.Background(), createInput("X", "-20", "XYZ"))
	require.Error(t, err)
	assert.ErrorIs(t, err, currency.ErrUnsupportedCurrency)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	_, err := svc.Create(ctx, createInput("X", "0", "USD"))
	assert.ErrorIs(t, err, ledger.ErrInvalidTransaction, "zero amount")

	_, err = svc.Create(ctx, createInput("", "-5", "USD"))
	assert.ErrorIs(t, err, ledger.ErrInvalidTransaction, "missing account")

	_, err = svc.Create(ctx, createInput("X", "-5", " "))
	assert.ErrorIs(t, err, ledger.ErrInvalidTransaction, "missing currency")
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_ReversesOldEffectThenAppliesNew(t *testing.T) {
	// GIVEN: account X with a -20 USD transaction (balance -20)
	// WHEN: updating the amount to -35
	// THEN: balance becomes -35, not -55

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	updated := result.Transaction
	updated.Amount = usd("-35")
	_, err = svc.Update(ctx, updated)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").Equal(usd("-35")),
		"expected -35, got %s", balanceOf(t, mem, "X"))
}

func TestUpdate_ThenRevert_RestoresBalance(t *testing.T) {
	// GIVEN: a transaction and its account balance
	// WHEN: updating it and then updating back to the original values
	// THEN: the balance returns to its pre-update value (within 0.01)

	svc, mem := newTestService(t)
	seedAccount(mem, "Y", "EUR")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("Y", "10.555", "USD"))
	require.NoError(t, err)
	original := result.Transaction
	before := balanceOf(t, mem, "Y")

	changed := original
	changed.Amount = usd("42.42")
	_, err = svc.Update(ctx, changed)
	require.NoError(t, err)

	_, err = svc.Update(ctx, original)
	require.NoError(t, err)

	diff := balanceOf(t, mem, "Y").Sub(before).Abs()
	assert.True(t, diff.LessThanOrEqual(usd("0.01")),
		"balance drifted by %s", diff)
}

func TestUpdate_UsesPersistedStateForReversal(t *testing.T) {
	// GIVEN: a caller holding a stale copy of a transaction that was
	//        meanwhile updated from -20 to -30 (balance -30)
	// WHEN: the caller submits an update to -10 based on the stale copy
	// THEN: reversal uses the persisted -30, so the balance ends at -10

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)
	stale := result.Transaction

	fresh := stale
	fresh.Amount = usd("-30")
	_, err = svc.Update(ctx, fresh)
	require.NoError(t, err)
	require.True(t, balanceOf(t, mem, "X").Equal(usd("-30")))

	stale.Amount = usd("-10")
	_, err = svc.Update(ctx, stale)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").Equal(usd("-10")),
		"expected -10, got %s", balanceOf(t, mem, "X"))
}

func TestUpdate_IdenticalAmountAndCurrency_NetsToZero(t *testing.T) {
	// Reverse-then-apply still runs, but the net effect is zero.

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	updated := result.Transaction
	updated.Description = "renamed"
	_, err = svc.Update(ctx, updated)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").Equal(usd("-20")))
}

func TestUpdate_PreservesCreatedAt_RestampsUpdatedAt(t *testing.T) {
	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)
	created := result.Transaction

	updated := created
	updated.Amount = usd("-25")
	after, err := svc.Update(ctx, updated)
	require.NoError(t, err)

	assert.Equal(t, created.CreatedAt, after.Transaction.CreatedAt)
	assert.True(t, after.Transaction.UpdatedAt.After(created.UpdatedAt) ||
		after.Transaction.UpdatedAt.Equal(created.UpdatedAt))
}

func TestUpdate_MoveBetweenAccounts_AdjustsBothBalances(t *testing.T) {
	// GIVEN: a -20 transaction on account A (A: -20, B: 0)
	// WHEN: updating its accountId to B
	// THEN: A returns to 0 and B becomes -20

	svc, mem := newTestService(t)
	seedAccount(mem, "A", "USD")
	seedAccount(mem, "B", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("A", "-20", "USD"))
	require.NoError(t, err)

	moved := result.Transaction
	moved.AccountID = "B"
	_, err = svc.Update(ctx, moved)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "A").IsZero(), "A should be restored")
	assert.True(t, balanceOf(t, mem, "B").Equal(usd("-20")))
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_ReversesBalanceEffect(t *testing.T) {
	// GIVEN: account X with a -20 USD transaction (balance -20)
	// WHEN: deleting it
	// THEN: the balance returns to 0.00

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	_, err = svc.Delete(ctx, result.Transaction.ID, "X")
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").IsZero(),
		"expected 0.00, got %s", balanceOf(t, mem, "X"))
}

func TestDelete_Twice_IsIdempotent(t *testing.T) {
	// GIVEN: a deleted transaction
	// WHEN: deleting it again
	// THEN: no error and no double reversal

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	_, err = svc.Delete(ctx, result.Transaction.ID, "X")
	require.NoError(t, err)
	_, err = svc.Delete(ctx, result.Transaction.ID, "X")
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").IsZero(),
		"second delete must not reverse again, got %s", balanceOf(t, mem, "X"))
}

func TestDelete_UsesPersistedAmountForReversal(t *testing.T) {
	// The caller only supplies the ID; the reversal amount comes from the
	// store, so a caller holding a stale amount cannot corrupt the balance.

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	updated := result.Transaction
	updated.Amount = usd("-50")
	_, err = svc.Update(ctx, updated)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, result.Transaction.ID, "X")
	require.NoError(t, err)

	assert.True(t, balanceOf(t, mem, "X").IsZero(),
		"expected 0, got %s", balanceOf(t, mem, "X"))
}

// =============================================================================
// BALANCE INVARIANT
// =============================================================================

func TestBalanceInvariant_AfterMixedOperations(t *testing.T) {
	// At rest, balance == round2(sum of converted transaction amounts),
	// with opening-balance transactions excluded on both sides.

	svc, mem := newTestService(t)
	seedAccount(mem, "X", "EUR")
	ctx := context.Background()
	rates := testRates()

	amounts := []struct{ amount, curr string }{
		{"-20", "EUR"},
		{"10.555", "USD"},
		{"-3.33", "EUR"},
		{"7.77", "USD"},
	}
	var ids []ledger.TransactionID
	for _, a := range amounts {
		result, err := svc.Create(ctx, createInput("X", a.amount, a.curr))
		require.NoError(t, err)
		ids = append(ids, result.Transaction.ID)
	}

	opening := createInput("X", "1000", "EUR")
	opening.Category = "Opening Balance"
	_, err := svc.Create(ctx, opening)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, ids[0], "X")
	require.NoError(t, err)

	txs, err := mem.TransactionsByAccount(ctx, "X")
	require.NoError(t, err)

	sum := decimal.Zero
	for _, tx := range txs {
		if tx.IsOpeningBalance() {
			continue
		}
		converted, err := rates.Convert(tx.Amount, tx.Currency, "EUR")
		require.NoError(t, err)
		sum = sum.Add(converted)
	}

	diff := balanceOf(t, mem, "X").Sub(sum.Round(2)).Abs()
	assert.True(t, diff.LessThanOrEqual(usd("0.01")),
		"invariant violated: balance %s vs sum %s", balanceOf(t, mem, "X"), sum.Round(2))
}

// =============================================================================
// DUAL-STORE CONSISTENCY
// =============================================================================

// failingTxStore rejects writes on demand, simulating an authoritative
// store outage.
type failingTxStore struct {
	ledger.TransactionStore
	failPut bool
}

func (f *failingTxStore) PutTransaction(ctx context.Context, tx ledger.Transaction) error {
	if f.failPut {
		return errors.New("store unavailable")
	}
	return f.TransactionStore.PutTransaction(ctx, tx)
}

func TestCreate_StoreWriteFailure_LeavesCacheAndBalanceUntouched(t *testing.T) {
	// GIVEN: a primed read cache and a store that rejects the next write
	// WHEN: create fails at the authoritative write
	// THEN: the error propagates, the cache is unchanged, the balance is
	//       unchanged

	mem := store.NewMemory()
	failing := &failingTxStore{TransactionStore: mem}
	svc := ledger.NewService(failing, mem, testRates(), zerolog.Nop())
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	_, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	// Prime the cache.
	cached, err := svc.Transactions(ctx, "X")
	require.NoError(t, err)
	require.Len(t, cached, 1)

	failing.failPut = true
	_, err = svc.Create(ctx, createInput("X", "-99", "USD"))
	require.Error(t, err)

	cached, err = svc.Transactions(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, cached, 1, "cache must not claim the failed write")
	assert.True(t, balanceOf(t, mem, "X").Equal(usd("-20")))
}

func TestTransactions_ReadThrough_ThenServedFromCache(t *testing.T) {
	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	_, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	first, err := svc.Transactions(ctx, "X")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A write that bypasses the service is invisible until a rebuild.
	rogue := first[0]
	rogue.ID = "rogue-1"
	require.NoError(t, mem.PutTransaction(ctx, rogue))

	stale, err := svc.Transactions(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, stale, 1, "cache serves the stale view")

	require.NoError(t, svc.RebuildCache(ctx, "X"))
	fresh, err := svc.Transactions(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, fresh, 2, "rebuild picks up the out-of-band write")
}

func TestMutations_KeepPrimedCacheInSync(t *testing.T) {
	svc, mem := newTestService(t)
	seedAccount(mem, "X", "USD")
	ctx := context.Background()

	result, err := svc.Create(ctx, createInput("X", "-20", "USD"))
	require.NoError(t, err)

	// Prime, then mutate through the service.
	_, err = svc.Transactions(ctx, "X")
	require.NoError(t, err)

	second, err := svc.Create(ctx, createInput("X", "-5", "USD"))
	require.NoError(t, err)

	cached, err := svc.Transactions(ctx, "X")
	require.NoError(t, err)
	require.Len(t, cached, 2)

	updated := result.Transaction
	updated.Description = "renamed"
	_, err = svc.Update(ctx, updated)
	require.NoError(t, err)

	cached, err = svc.Transactions(ctx, "X")
	require.NoError(t, err)
	require.Len(t, cached, 2)
	for _, tx := range cached {
		if tx.ID == result.Transaction.ID {
			assert.Equal(t, "renamed", tx.Description)
		}
	}

	_, err = svc.Delete(ctx, second.Transaction.ID, "X")
	require.NoError(t, err)

	cached, err = svc.Transactions(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}
