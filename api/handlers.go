/*
handlers.go - HTTP API handlers for the register engine

PURPOSE:
  Exposes the register service via REST. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the service.

ENDPOINTS:
  Registers:
    GET    /api/registers                     List registers
    POST   /api/registers                     Create register
    GET    /api/registers/{id}                Snapshot
    DELETE /api/registers/{id}                Delete (closed, archived history only)
    POST   /api/registers/{id}/open           Open with acting cashier
    POST   /api/registers/{id}/close          Close

  Ledger:
    POST   /api/registers/{id}/transactions   Post a ledger entry
    GET    /api/registers/{id}/transactions   History (optional from/to)
    GET    /api/registers/{id}/balance        Balance as of a timestamp
    GET    /api/registers/{id}/reconcile      Drift check

PRINCIPALS:
  The acting principal arrives in the X-Principal header. Authentication
  is the surrounding application's job; the engine only maps principals
  to capabilities through its gate.

ERROR HANDLING:
  Errors are returned as JSON with an appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Gate denied (body names the missing capability)
  - 404: Register not found
  - 409: Conflict (already open, not open, has history, lost race)
  - 503: Storage failure (caller may retry with an idempotency key)
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tillpoint/register-engine/register"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *register.Service
}

// NewHandler creates a new handler around the register service.
func NewHandler(service *register.Service) *Handler {
	return &Handler{Service: service}
}

func principalFrom(r *http.Request) register.PrincipalID {
	return register.PrincipalID(r.Header.Get("X-Principal"))
}

// =============================================================================
// REGISTER HANDLERS
// =============================================================================

// ListRegisters returns all registers.
func (h *Handler) ListRegisters(w http.ResponseWriter, r *http.Request) {
	registers, err := h.Service.ListRegisters(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]RegisterDTO, len(registers))
	for i := range registers {
		dtos[i] = toRegisterDTO(&registers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRegister creates a new register.
func (h *Handler) CreateRegister(w http.ResponseWriter, r *http.Request) {
	var req CreateRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	opening := register.ZeroAmount()
	if req.OpeningBalance != "" {
		var err error
		opening, err = register.NewAmountFromString(req.OpeningBalance)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid opening_balance (use a decimal string)", err)
			return
		}
	}

	reg, err := h.Service.CreateRegister(r.Context(), principalFrom(r), req.Name, opening)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegisterDTO(reg))
}

// GetRegister returns the display snapshot of one register.
func (h *Handler) GetRegister(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	snap, err := h.Service.Snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// DeleteRegister removes a closed register.
// The archived=true query parameter confirms the history was exported.
func (h *Handler) DeleteRegister(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))
	archived := r.URL.Query().Get("archived") == "true"

	if err := h.Service.DeleteRegister(r.Context(), id, principalFrom(r), archived); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenRegister opens a register with the acting principal as cashier.
func (h *Handler) OpenRegister(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	reg, err := h.Service.OpenRegister(r.Context(), id, principalFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegisterDTO(reg))
}

// CloseRegister closes a register.
func (h *Handler) CloseRegister(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	reg, err := h.Service.CloseRegister(r.Context(), id, principalFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegisterDTO(reg))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// PostTransaction appends one ledger entry.
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	var req PostTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := register.NewAmountFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	tx, err := h.Service.PostTransaction(r.Context(), principalFrom(r), register.PostRequest{
		RegisterID:     id,
		Type:           register.TransactionType(req.Type),
		Amount:         amount,
		Reference:      req.Reference,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// GetHistory returns the register's ledger entries, optionally bounded by
// from/to query parameters (RFC3339).
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
		return
	}

	entries, err := h.Service.History(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(entries))
	for i := range entries {
		dtos[i] = toTransactionDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalanceAsOf replays the ledger up to the at query parameter
// (RFC3339, defaults to now).
func (h *Handler) GetBalanceAsOf(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	at := time.Now().UTC()
	if p, err := parseTimeParam(r, "at"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
		return
	} else if p != nil {
		at = *p
	}

	balance, err := h.Service.BalanceAsOf(r.Context(), id, at)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"register_id": string(id),
		"as_of":       at.Format(time.RFC3339Nano),
		"balance":     balance.String(),
	})
}

// Reconcile compares the cached balance against the ledger sum.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := register.RegisterID(chi.URLParam(r, "id"))

	report, err := h.Service.Reconcile(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case register.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, register.ErrPermissionDenied):
		status = http.StatusForbidden
	case register.IsConflict(err):
		status = http.StatusConflict
	case register.IsClientError(err):
		status = http.StatusBadRequest
	case errors.Is(err, register.ErrInfrastructure):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error(), nil)
}
