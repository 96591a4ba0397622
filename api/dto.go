/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (parse errors, missing fields) happens in the
  handlers; business validation lives in the register service.
*/
package api

import (
	"time"

	"github.com/tillpoint/register-engine/register"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RegisterDTO represents a register in API responses.
type RegisterDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Cashier        string `json:"cashier,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	CurrentBalance string `json:"current_balance"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// CreateRegisterRequest is the request to create a register.
type CreateRegisterRequest struct {
	Name string `json:"name"`
	// OpeningBalance is a decimal string ("100.00"). Empty means zero.
	OpeningBalance string `json:"opening_balance,omitempty"`
}

// PostTransactionRequest is the request to post a ledger entry.
type PostTransactionRequest struct {
	Type           string            `json:"type"`
	Amount         string            `json:"amount"`
	Reference      string            `json:"reference,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID         string            `json:"id"`
	RegisterID string            `json:"register_id"`
	Type       string            `json:"type"`
	Amount     string            `json:"amount"`
	CreatedBy  string            `json:"created_by"`
	Reference  string            `json:"reference,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  string            `json:"created_at"`
	Seq        int64             `json:"seq"`
}

// SnapshotDTO is the read-only display view of a register.
type SnapshotDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Cashier        string `json:"cashier,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	CurrentBalance string `json:"current_balance"`
}

// ReconciliationDTO reports cached-vs-derived balance comparison.
type ReconciliationDTO struct {
	RegisterID string `json:"register_id"`
	Cached     string `json:"cached_balance"`
	Derived    string `json:"derived_balance"`
	Drift      string `json:"drift"`
	Consistent bool   `json:"consistent"`
	Entries    int    `json:"entries"`
	CheckedAt  string `json:"checked_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPING HELPERS
// =============================================================================

func toRegisterDTO(reg *register.Register) RegisterDTO {
	return RegisterDTO{
		ID:             string(reg.ID),
		Name:           reg.Name,
		Status:         string(reg.Status),
		Cashier:        string(reg.Cashier),
		OpeningBalance: reg.OpeningBalance.String(),
		CurrentBalance: reg.CurrentBalance.String(),
		CreatedAt:      reg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      reg.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx *register.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:         string(tx.ID),
		RegisterID: string(tx.RegisterID),
		Type:       string(tx.Type),
		Amount:     tx.Amount.String(),
		CreatedBy:  string(tx.CreatedBy),
		Reference:  tx.Reference,
		Metadata:   tx.Metadata,
		CreatedAt:  tx.CreatedAt.Format(time.RFC3339Nano),
		Seq:        tx.Seq,
	}
}

func toSnapshotDTO(snap register.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:             string(snap.ID),
		Name:           snap.Name,
		Status:         string(snap.Status),
		Cashier:        string(snap.Cashier),
		OpeningBalance: snap.OpeningBalance.String(),
		CurrentBalance: snap.CurrentBalance.String(),
	}
}

func toReconciliationDTO(r register.ReconciliationReport) ReconciliationDTO {
	return ReconciliationDTO{
		RegisterID: string(r.RegisterID),
		Cached:     r.Cached.String(),
		Derived:    r.Derived.String(),
		Drift:      r.Drift.String(),
		Consistent: r.Consistent(),
		Entries:    r.Entries,
		CheckedAt:  r.CheckedAt.Format(time.RFC3339),
	}
}
