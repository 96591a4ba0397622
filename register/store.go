/*
store.go - Persistence interface for registers and ledger entries

PURPOSE:
  Defines the contract between the domain logic and the database. The
  ledger side is append-only: entries are inserted exactly once, never
  updated, never deleted. Register rows are updated under an optimistic
  version check so concurrent writers cannot clobber each other.

APPEND-ONLY CONTRACT:
  - AppendEntry(): the ONLY ledger write, and it commits the entry and the
    register's new cached balance in one atomic unit
  - no update or delete methods exist for entries
  - DeleteRegister removes only the register row; its entries are retained
    for audit

OPTIMISTIC CONCURRENCY:
  UpdateRegister and AppendEntry take the register as the caller loaded it
  and persist changes conditioned on the loaded Version. A lost race
  surfaces as ErrConcurrentModification; the stored Version is bumped on
  success.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (database/sql, WAL)
  - register/store: in-memory for tests and embedded use
*/
package register

import (
	"context"
	"time"
)

// Store persists registers and their append-only ledgers.
type Store interface {
	// CreateRegister inserts a new register. Returns ErrDuplicateName when
	// the name is taken.
	CreateRegister(ctx context.Context, reg Register) error

	// GetRegister returns the register or a *NotFoundError.
	GetRegister(ctx context.Context, id RegisterID) (*Register, error)

	// ListRegisters returns all registers ordered by name.
	ListRegisters(ctx context.Context) ([]Register, error)

	// UpdateRegister persists lifecycle fields (status, cashier) conditioned
	// on reg.Version matching the stored row. Bumps the stored version.
	UpdateRegister(ctx context.Context, reg Register) error

	// DeleteRegister removes the register row. Ledger entries survive.
	// The service enforces the closed/empty-or-archived preconditions.
	DeleteRegister(ctx context.Context, id RegisterID) error

	// AppendEntry atomically inserts the entry and persists reg's new
	// cached balance, conditioned on reg.Version. Either both are visible
	// afterwards or neither is. Assigns entry.Seq.
	// Returns ErrDuplicateIdempotencyKey when entry.IdempotencyKey has
	// already been committed.
	AppendEntry(ctx context.Context, reg Register, entry Transaction) error

	// CountEntries returns the number of ledger entries for a register.
	CountEntries(ctx context.Context, id RegisterID) (int, error)

	// LoadEntries returns all entries for a register ordered by CreatedAt
	// then Seq.
	LoadEntries(ctx context.Context, id RegisterID) ([]Transaction, error)

	// LoadEntriesRange returns entries with CreatedAt in [from, to],
	// same ordering.
	LoadEntriesRange(ctx context.Context, id RegisterID, from, to time.Time) ([]Transaction, error)
}
