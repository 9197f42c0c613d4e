package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleTx(id string) ledger.Transaction {
	now := time.Date(2024, time.March, 1, 10, 30, 0, 0, time.UTC)
	return ledger.Transaction{
		ID:             ledger.TransactionID(id),
		AccountID:      "acct-1",
		Date:           ledger.NewDate(2024, time.March, 1),
		Amount:         d("-42.50"),
		Currency:       "USD",
		Description:    "lunch",
		Category:       "Food",
		Tags:           []string{"out", "work"},
		SubscriptionID: "sub-9",
		OriginalImport: &ledger.OriginalImport{Amount: d("-39.10"), Currency: "EUR"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStore_TransactionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleTx("t1")
	require.NoError(t, store.PutTransaction(ctx, want))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.AccountID, got.AccountID)
	assert.True(t, got.Date.Equal(want.Date))
	assert.True(t, got.Amount.Equal(want.Amount))
	assert.Equal(t, want.Currency, got.Currency)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.Tags, got.Tags)
	assert.Equal(t, want.SubscriptionID, got.SubscriptionID)
	require.NotNil(t, got.OriginalImport)
	assert.True(t, got.OriginalImport.Amount.Equal(want.OriginalImport.Amount))
	assert.Equal(t, "EUR", got.OriginalImport.Currency)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))

	missing, err := store.GetTransaction(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_OptionalFieldsAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := sampleTx("t1")
	tx.Tags = nil
	tx.SubscriptionID = ""
	tx.OriginalImport = nil
	require.NoError(t, store.PutTransaction(ctx, tx))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Tags)
	assert.Empty(t, got.SubscriptionID)
	assert.Nil(t, got.OriginalImport)
}

func TestStore_UpsertKeepsStoreOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutTransaction(ctx, sampleTx("first")))
	require.NoError(t, store.PutTransaction(ctx, sampleTx("second")))

	edited := sampleTx("first")
	edited.Description = "renamed"
	require.NoError(t, store.PutTransaction(ctx, edited))

	all, err := store.AllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.TransactionID("first"), all[0].ID, "replace keeps position")
	assert.Equal(t, "renamed", all[0].Description)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutTransaction(ctx, sampleTx("t1")))
	require.NoError(t, store.DeleteTransaction(ctx, "t1"))
	require.NoError(t, store.DeleteTransaction(ctx, "t1"))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_AccountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	account := ledger.Account{
		ID: "acct-1", Name: "Checking", Currency: "USD",
		Balance: d("0"), Category: ledger.AccountAsset,
	}
	require.NoError(t, store.CreateAccount(ctx, account))

	account.Balance = d("-20.00")
	require.NoError(t, store.UpdateAccount(ctx, account))

	got, err := store.Account(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Balance.Equal(d("-20")))

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// A failing mutation must leave neither the record nor the balance
	// behind.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, ledger.Account{
		ID: "acct-1", Name: "Checking", Currency: "USD", Balance: d("0"),
		Category: ledger.AccountAsset,
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(txs ledger.TransactionStore, accounts ledger.AccountStore) error {
		if err := txs.PutTransaction(ctx, sampleTx("t1")); err != nil {
			return err
		}
		account, err := accounts.Account(ctx, "acct-1")
		if err != nil {
			return err
		}
		account.Balance = d("-42.50")
		if err := accounts.UpdateAccount(ctx, *account); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got, "record write rolled back")

	account, err := store.Account(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero(), "balance update rolled back")
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(txs ledger.TransactionStore, _ ledger.AccountStore) error {
		return txs.PutTransaction(ctx, sampleTx("t1"))
	})
	require.NoError(t, err)

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
