/*
handlers.go - HTTP handlers for the ledger API

PURPOSE:
  Exposes the ledger service and transfer view over REST. Handles HTTP
  request/response and JSON mapping, delegates everything else to the
  ledger package.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                   List accounts
    POST   /api/accounts                   Create account (account manager)
    GET    /api/accounts/{id}              Get one account
    GET    /api/accounts/{id}/transactions List the account's transactions
    POST   /api/accounts/{id}/rebuild      Rebuild the account's read cache

  Transactions:
    POST   /api/transactions               Create
    PUT    /api/transactions/{id}          Replace
    DELETE /api/transactions/{id}          Delete (idempotent)

  Transfers:
    GET    /api/transfers                  Reconciled pairs, newest first
    POST   /api/transfers                  Create both legs
    PUT    /api/transfers                  Delete both legs, recreate
    DELETE /api/transfers                  Delete both legs

ERROR HANDLING:
  - 400: Validation errors, malformed JSON/amounts/dates
  - 404: Missing account (on direct reads)
  - 422: Unsupported currency in conversion
  - 500: Store failures
  Create soft-failures (missing account during balance effect) are NOT
  errors: the response is 201 with a warnings array.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-ledger/currency"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Ledger *ledger.Service
	Log    zerolog.Logger
}

func NewHandler(store *sqlite.Store, svc *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{Store: store, Ledger: svc, Log: log}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.Accounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	account, err := h.Store.Account(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// CreateAccount belongs to the account-manager collaborator, hosted here
// for convenience. The ledger service itself never creates accounts.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Currency == "" {
		writeError(w, http.StatusBadRequest, "id and currency are required", nil)
		return
	}
	balance := decimal.Zero
	if req.Balance != "" {
		var err error
		if balance, err = decimal.NewFromString(req.Balance); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid balance", err)
			return
		}
	}
	category := ledger.AccountCategory(req.Category)
	if category == "" {
		category = ledger.AccountAsset
	}
	account := ledger.Account{
		ID:       ledger.AccountID(req.ID),
		Name:     req.Name,
		Currency: req.Currency,
		Balance:  balance,
		Category: category,
	}
	if err := h.Store.CreateAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	txs, err := h.Ledger.Transactions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RebuildCache reloads the account's read cache from the authoritative
// store. The host calls this on detected desync.
func (h *Handler) RebuildCache(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	if err := h.Ledger.RebuildCache(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to rebuild cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	input, err := parseTransactionRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}

	result, err := h.Ledger.Create(r.Context(), *input)
	if err != nil {
		writeLedgerError(w, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMutationResponse(result))
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	input, err := parseTransactionRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}

	tx := ledger.Transaction{
		ID:             id,
		AccountID:      input.AccountID,
		Date:           input.Date,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Description:    input.Description,
		Category:       input.Category,
		Tags:           input.Tags,
		SubscriptionID: input.SubscriptionID,
		OriginalImport: input.OriginalImport,
	}
	result, err := h.Ledger.Update(r.Context(), tx)
	if err != nil {
		writeLedgerError(w, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(result))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	accountID := ledger.AccountID(r.URL.Query().Get("accountId"))

	result, err := h.Ledger.Delete(r.Context(), id, accountID)
	if err != nil {
		writeLedgerError(w, "Failed to delete transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(result))
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.Ledger.TransferPairs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reconcile transfers", err)
		return
	}
	dtos := make([]TransferPairDTO, len(pairs))
	for i, pair := range pairs {
		dtos[i] = TransferPairDTO{
			From: toTransactionDTO(pair.From),
			To:   toTransactionDTO(pair.To),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	input, _, _, ok := h.parseTransferRequest(w, r)
	if !ok {
		return
	}
	pair, err := h.Ledger.CreateTransfer(r.Context(), *input)
	if err != nil {
		writeLedgerError(w, "Failed to create transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, TransferPairDTO{
		From: toTransactionDTO(pair.From),
		To:   toTransactionDTO(pair.To),
	})
}

// UpdateTransfer deletes both legs and recreates them with the edited
// values. Legs are never patched in place.
func (h *Handler) UpdateTransfer(w http.ResponseWriter, r *http.Request) {
	input, fromID, toID, ok := h.parseTransferRequest(w, r)
	if !ok {
		return
	}
	if fromID == "" || toID == "" {
		writeError(w, http.StatusBadRequest, "fromId and toId are required", nil)
		return
	}
	pair, err := h.Ledger.UpdateTransfer(r.Context(), fromID, toID, *input)
	if err != nil {
		writeLedgerError(w, "Failed to update transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, TransferPairDTO{
		From: toTransactionDTO(pair.From),
		To:   toTransactionDTO(pair.To),
	})
}

func (h *Handler) DeleteTransfer(w http.ResponseWriter, r *http.Request) {
	fromID := ledger.TransactionID(r.URL.Query().Get("fromId"))
	toID := ledger.TransactionID(r.URL.Query().Get("toId"))
	if fromID == "" || toID == "" {
		writeError(w, http.StatusBadRequest, "fromId and toId are required", nil)
		return
	}
	if err := h.Ledger.DeleteTransfer(r.Context(), fromID, toID); err != nil {
		writeLedgerError(w, "Failed to delete transfer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func parseTransactionRequest(req TransactionRequest) (*ledger.CreateInput, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, err
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	input := &ledger.CreateInput{
		AccountID:      ledger.AccountID(req.AccountID),
		Date:           date,
		Amount:         amount,
		Currency:       req.Currency,
		Description:    req.Description,
		Category:       req.Category,
		Tags:           req.Tags,
		SubscriptionID: req.SubscriptionID,
	}
	if req.OriginalImport != nil {
		foreign, err := decimal.NewFromString(req.OriginalImport.Amount)
		if err != nil {
			return nil, err
		}
		input.OriginalImport = &ledger.OriginalImport{
			Amount:   foreign,
			Currency: req.OriginalImport.Currency,
		}
	}
	return input, nil
}

func (h *Handler) parseTransferRequest(w http.ResponseWriter, r *http.Request) (*ledger.TransferInput, ledger.TransactionID, ledger.TransactionID, bool) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, "", "", false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return nil, "", "", false
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return nil, "", "", false
	}
	input := &ledger.TransferInput{
		FromAccountID: ledger.AccountID(req.FromAccountID),
		ToAccountID:   ledger.AccountID(req.ToAccountID),
		Date:          date,
		Amount:        amount,
		Currency:      req.Currency,
		Description:   req.Description,
	}
	return input, ledger.TransactionID(req.FromID), ledger.TransactionID(req.ToID), true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, currency.ErrUnsupportedCurrency):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
