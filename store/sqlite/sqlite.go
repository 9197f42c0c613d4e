/*
Package sqlite provides the SQLite-backed authoritative store.

PURPOSE:
  Implements the ledger's TransactionStore and AccountStore on SQLite, plus
  AtomicStore so the record write and the account-balance update of one
  mutation commit or roll back together. The same patterns apply to
  PostgreSQL with minor dialect changes.

KEY TABLES:
  accounts:     Identity, denomination, running balance
  transactions: The authoritative transaction set, keyed by id

STORE ORDER:
  TransactionsByAccount and AllTransactions return rows ordered by rowid,
  which is insertion order. Updates use an UPSERT that preserves rowid, so
  a replaced transaction keeps its position. The transfer reconciliation
  engine depends on this stable order.

ENCODING:
  Decimals and dates are stored as TEXT to avoid float drift in the
  database itself. Tags are a JSON array. The optional import pair is two
  nullable columns.

WAL MODE:
  Opened with WAL so readers don't block behind the single writer.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil { ... }
  defer store.Close()
  svc := ledger.NewService(store, store, converter, log)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-ledger/ledger"
)

// Store implements ledger.TransactionStore, ledger.AccountStore, and
// ledger.AtomicStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, queries: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		category TEXT NOT NULL DEFAULT 'asset'
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		tags_json TEXT,
		subscription_id TEXT,
		import_amount TEXT,
		import_currency TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, date);
	CREATE INDEX IF NOT EXISTS idx_transactions_category
		ON transactions(category);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ATOMIC STORE
// =============================================================================

// WithTx runs fn inside one database transaction. Both interface views fn
// receives are backed by the same sql.Tx.
func (s *Store) WithTx(ctx context.Context, fn func(txs ledger.TransactionStore, accounts ledger.AccountStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	view := &txView{queries{db: tx}}
	if err := fn(view, view); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txView exposes the store interfaces over an in-flight sql.Tx.
type txView struct {
	queries
}

// =============================================================================
// QUERIES - Shared between the live connection and transaction views
// =============================================================================

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// -----------------------------------------------------------------------------
// TransactionStore
// -----------------------------------------------------------------------------

const txColumns = `id, account_id, date, amount, currency, description,
	category, tags_json, subscription_id, import_amount, import_currency,
	created_at, updated_at`

func (q queries) PutTransaction(ctx context.Context, tx ledger.Transaction) error {
	var tagsJSON sql.NullString
	if len(tx.Tags) > 0 {
		raw, err := json.Marshal(tx.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		tagsJSON = sql.NullString{String: string(raw), Valid: true}
	}

	var importAmount, importCurrency sql.NullString
	if tx.OriginalImport != nil {
		importAmount = sql.NullString{String: tx.OriginalImport.Amount.String(), Valid: true}
		importCurrency = sql.NullString{String: tx.OriginalImport.Currency, Valid: true}
	}

	// UPSERT keeps the original rowid on replace, preserving store order.
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			date = excluded.date,
			amount = excluded.amount,
			currency = excluded.currency,
			description = excluded.description,
			category = excluded.category,
			tags_json = excluded.tags_json,
			subscription_id = excluded.subscription_id,
			import_amount = excluded.import_amount,
			import_currency = excluded.import_currency,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		string(tx.ID), string(tx.AccountID), tx.Date.String(), tx.Amount.String(),
		tx.Currency, tx.Description, tx.Category, tagsJSON,
		nullable(tx.SubscriptionID), importAmount, importCurrency,
		tx.CreatedAt.Format(time.RFC3339Nano), tx.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put transaction: %w", err)
	}
	return nil
}

func (q queries) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, string(id))
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (q queries) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (q queries) TransactionsByAccount(ctx context.Context, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE account_id = ? ORDER BY rowid`,
		string(accountID))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (q queries) AllTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// -----------------------------------------------------------------------------
// AccountStore
// -----------------------------------------------------------------------------

func (q queries) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, currency, balance, category FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (q queries) Account(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, currency, balance, category FROM accounts WHERE id = ?`,
		string(id))
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (q queries) UpdateAccount(ctx context.Context, account ledger.Account) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE accounts SET name = ?, currency = ?, balance = ?, category = ?
		WHERE id = ?`,
		account.Name, account.Currency, account.Balance.String(),
		string(account.Category), string(account.ID))
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// CreateAccount inserts an account record. Account creation belongs to the
// account manager (the API layer), not the ledger service.
func (q queries) CreateAccount(ctx context.Context, account ledger.Account) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, currency, balance, category)
		VALUES (?, ?, ?, ?, ?)`,
		string(account.ID), account.Name, account.Currency,
		account.Balance.String(), string(account.Category))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type scannable interface {
	Scan(dest ...any) error
}

func scanTransaction(row scannable) (*ledger.Transaction, error) {
	var (
		tx                           ledger.Transaction
		id, accountID, date          string
		amount, createdAt, updatedAt string
		tagsJSON, subscriptionID     sql.NullString
		importAmount, importCurrency sql.NullString
	)
	err := row.Scan(&id, &accountID, &date, &amount, &tx.Currency,
		&tx.Description, &tx.Category, &tagsJSON, &subscriptionID,
		&importAmount, &importCurrency, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	tx.ID = ledger.TransactionID(id)
	tx.AccountID = ledger.AccountID(accountID)
	if tx.Date, err = ledger.ParseDate(date); err != nil {
		return nil, fmt.Errorf("decode date %q: %w", date, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &tx.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	tx.SubscriptionID = subscriptionID.String
	if importAmount.Valid && importCurrency.Valid {
		foreign, err := decimal.NewFromString(importAmount.String)
		if err != nil {
			return nil, fmt.Errorf("decode import amount %q: %w", importAmount.String, err)
		}
		tx.OriginalImport = &ledger.OriginalImport{
			Amount:   foreign,
			Currency: importCurrency.String,
		}
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at %q: %w", createdAt, err)
	}
	if tx.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at %q: %w", updatedAt, err)
	}
	return &tx, nil
}

func scanAccount(row scannable) (*ledger.Account, error) {
	var (
		account                ledger.Account
		id, balance, category string
	)
	if err := row.Scan(&id, &account.Name, &account.Currency, &balance, &category); err != nil {
		return nil, err
	}
	account.ID = ledger.AccountID(id)
	account.Category = ledger.AccountCategory(category)
	var err error
	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("decode balance %q: %w", balance, err)
	}
	return &account, nil
}

func collectTransactions(rows *sql.Rows) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
