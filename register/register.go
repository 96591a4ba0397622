/*
register.go - The register entity and its state machine

PURPOSE:
  A Register is one physical or logical cash drawer. It cycles between
  CLOSED and OPEN; it caches the balance the ledger derives for it.

STATE MACHINE:
  created CLOSED ──open(cashier)──> OPEN ──close──> CLOSED ──delete──> gone

  - open is rejected when already open (no silent idempotency)
  - close is rejected when not open
  - delete is only valid from CLOSED, and only when the register's ledger
    is empty or explicitly archived (audit trail is never silently lost)

BALANCE:
  CurrentBalance is a cache of openingBalance + Σ(ledger entries). It is
  only ever written together with the entry that changed it, inside the
  same atomic scope. Reconciliation (ledger.go) detects drift.
*/
package register

import "time"

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusClosed Status = "closed"
	StatusOpen   Status = "open"
)

// =============================================================================
// REGISTER
// =============================================================================

type Register struct {
	ID             RegisterID
	Name           string
	Status         Status
	OpeningBalance Amount
	CurrentBalance Amount

	// Cashier is the principal responsible while the register is open.
	// Empty when closed.
	Cashier PrincipalID

	// Version supports optimistic concurrency in the store. Bumped on
	// every persisted mutation.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRegister builds a CLOSED register with the given opening balance.
// Validation of name/balance happens in the service before this is called.
func NewRegister(id RegisterID, name string, openingBalance Amount, now time.Time) Register {
	return Register{
		ID:             id,
		Name:           name,
		Status:         StatusClosed,
		OpeningBalance: openingBalance,
		CurrentBalance: openingBalance,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Open transitions CLOSED -> OPEN and assigns the cashier.
// Opening an already-open register is a conflict, not a no-op.
func (r *Register) Open(cashier PrincipalID, now time.Time) error {
	if r.Status == StatusOpen {
		return &ConflictError{RegisterID: r.ID, Reason: "already open"}
	}
	r.Status = StatusOpen
	r.Cashier = cashier
	r.UpdatedAt = now
	return nil
}

// Close transitions OPEN -> CLOSED and clears the cashier. The balance and
// ledger are untouched; counting the drawer against the expected balance is
// a reporting concern, not a lifecycle one.
func (r *Register) Close(now time.Time) error {
	if r.Status != StatusOpen {
		return &ConflictError{RegisterID: r.ID, Reason: "not open"}
	}
	r.Status = StatusClosed
	r.Cashier = ""
	r.UpdatedAt = now
	return nil
}

// Apply records the effect of a ledger entry on the cached balance.
func (r *Register) Apply(amount Amount, now time.Time) {
	r.CurrentBalance = r.CurrentBalance.Add(amount)
	r.UpdatedAt = now
}

// =============================================================================
// SNAPSHOT - Read-only view for display
// =============================================================================

type Snapshot struct {
	ID             RegisterID
	Name           string
	Status         Status
	Cashier        PrincipalID
	OpeningBalance Amount
	CurrentBalance Amount
}

func (r *Register) Snapshot() Snapshot {
	return Snapshot{
		ID:             r.ID,
		Name:           r.Name,
		Status:         r.Status,
		Cashier:        r.Cashier,
		OpeningBalance: r.OpeningBalance,
		CurrentBalance: r.CurrentBalance,
	}
}
