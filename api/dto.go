/*
dto.go - Request/response shapes for the HTTP API

Amounts travel as decimal strings ("-20.50") so no precision is lost in
JSON number round-trips. Dates are YYYY-MM-DD.
*/
package api

import (
	"time"

	"github.com/warp/finance-ledger/ledger"
)

// =============================================================================
// RESPONSE DTOS
// =============================================================================

type AccountDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Category string `json:"category"`
}

type OriginalImportDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type TransactionDTO struct {
	ID             string             `json:"id"`
	AccountID      string             `json:"accountId"`
	Date           string             `json:"date"`
	Amount         string             `json:"amount"`
	Currency       string             `json:"currency"`
	Description    string             `json:"description,omitempty"`
	Category       string             `json:"category"`
	Tags           []string           `json:"tags,omitempty"`
	SubscriptionID string             `json:"subscriptionId,omitempty"`
	OriginalImport *OriginalImportDTO `json:"originalImportData,omitempty"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
}

type TransferPairDTO struct {
	From TransactionDTO `json:"from"`
	To   TransactionDTO `json:"to"`
}

type WarningDTO struct {
	AccountID     string `json:"accountId"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message"`
}

// MutationResponse carries the materialized transaction plus any
// balance-effect warnings (e.g. missing account on create).
type MutationResponse struct {
	Transaction TransactionDTO `json:"transaction"`
	Warnings    []WarningDTO   `json:"warnings,omitempty"`
}

// =============================================================================
// REQUEST DTOS
// =============================================================================

type CreateAccountRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Category string `json:"category"`
}

type TransactionRequest struct {
	AccountID      string             `json:"accountId"`
	Date           string             `json:"date"`
	Amount         string             `json:"amount"`
	Currency       string             `json:"currency"`
	Description    string             `json:"description"`
	Category       string             `json:"category"`
	Tags           []string           `json:"tags"`
	SubscriptionID string             `json:"subscriptionId"`
	OriginalImport *OriginalImportDTO `json:"originalImportData"`
}

type TransferRequest struct {
	// Leg IDs, required for update/delete, ignored on create.
	FromID string `json:"fromId,omitempty"`
	ToID   string `json:"toId,omitempty"`

	FromAccountID string `json:"fromAccountId"`
	ToAccountID   string `json:"toAccountId"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:       string(a.ID),
		Name:     a.Name,
		Currency: a.Currency,
		Balance:  a.Balance.StringFixed(2),
		Category: string(a.Category),
	}
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:             string(t.ID),
		AccountID:      string(t.AccountID),
		Date:           t.Date.String(),
		Amount:         t.Amount.String(),
		Currency:       t.Currency,
		Description:    t.Description,
		Category:       t.Category,
		Tags:           t.Tags,
		SubscriptionID: t.SubscriptionID,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.Format(time.RFC3339),
	}
	if t.OriginalImport != nil {
		dto.OriginalImport = &OriginalImportDTO{
			Amount:   t.OriginalImport.Amount.String(),
			Currency: t.OriginalImport.Currency,
		}
	}
	return dto
}

func toMutationResponse(result *ledger.MutationResult) MutationResponse {
	resp := MutationResponse{Transaction: toTransactionDTO(result.Transaction)}
	for _, w := range result.Warnings {
		resp.Warnings = append(resp.Warnings, WarningDTO{
			AccountID:     string(w.AccountID),
			TransactionID: string(w.TransactionID),
			Message:       w.Error(),
		})
	}
	return resp
}
