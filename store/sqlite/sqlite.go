/*
Package sqlite provides a SQLite-backed implementation of register.Store.

PURPOSE:
  Production persistence for registers and their append-only ledgers. The
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Deleting a register removes only its row; history survives for audit

ATOMICITY:
  AppendEntry inserts the ledger entry and updates the register's cached
  balance inside one database transaction, conditioned on the register's
  version. No observer can see the balance without its entry or vice versa.

KEY TABLES:
  registers:    One row per cash drawer (status, cashier, cached balance,
                optimistic version)
  transactions: Immutable ledger. The AUTOINCREMENT seq column establishes
                total order when two entries share a timestamp.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/registers.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - register/store.go: interface definition
  - register/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tillpoint/register-engine/register"
)

// Store implements register.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps SQLite's writer semantics predictable
	// under concurrent appends.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
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
	CREATE TABLE IF NOT EXISTS registers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		cashier TEXT NOT NULL DEFAULT '',
		opening_balance TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only ledger. seq is the insertion sequence: the tie-break
	-- that makes per-register ordering total when timestamps collide.
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		register_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_by TEXT NOT NULL,
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_at_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_register
		ON transactions(register_id, created_at_ns, seq);
	CREATE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REGISTERS
// =============================================================================

func (s *Store) CreateRegister(ctx context.Context, reg register.Register) error {
	query := `
		INSERT INTO registers
		(id, name, status, cashier, opening_balance, current_balance, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		reg.ID,
		reg.Name,
		reg.Status,
		reg.Cashier,
		reg.OpeningBalance.String(),
		reg.CurrentBalance.String(),
		reg.Version,
		reg.CreatedAt.UTC().Format(time.RFC3339Nano),
		reg.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return register.ErrDuplicateName
		}
		return &register.InfrastructureError{Op: "create register", Err: err}
	}
	return nil
}

func (s *Store) GetRegister(ctx context.Context, id register.RegisterID) (*register.Register, error) {
	query := `
		SELECT id, name, status, cashier, opening_balance, current_balance, version, created_at, updated_at
		FROM registers
		WHERE id = ?
	`

	reg, err := scanRegister(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &register.NotFoundError{RegisterID: id}
	}
	if err != nil {
		return nil, &register.InfrastructureError{Op: "get register", Err: err}
	}
	return reg, nil
}

func (s *Store) ListRegisters(ctx context.Context) ([]register.Register, error) {
	query := `
		SELECT id, name, status, cashier, opening_balance, current_balance, version, created_at, updated_at
		FROM registers
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &register.InfrastructureError{Op: "list registers", Err: err}
	}
	defer rows.Close()

	var registers []register.Register
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, &register.InfrastructureError{Op: "list registers", Err: err}
		}
		registers = append(registers, *reg)
	}
	return registers, rows.Err()
}

// UpdateRegister persists lifecycle fields under the optimistic version
// check. The cached balance is only written through AppendEntry.
func (s *Store) UpdateRegister(ctx context.Context, reg register.Register) error {
	query := `
		UPDATE registers
		SET status = ?, cashier = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		reg.Status,
		reg.Cashier,
		reg.UpdatedAt.UTC().Format(time.RFC3339Nano),
		reg.ID,
		reg.Version,
	)
	if err != nil {
		return &register.InfrastructureError{Op: "update register", Err: err}
	}
	return s.checkAffected(ctx, res, reg.ID)
}

func (s *Store) DeleteRegister(ctx context.Context, id register.RegisterID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM registers WHERE id = ?", id)
	if err != nil {
		return &register.InfrastructureError{Op: "delete register", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &register.InfrastructureError{Op: "delete register", Err: err}
	}
	if n == 0 {
		return &register.NotFoundError{RegisterID: id}
	}
	return nil
}

// checkAffected distinguishes "row gone" from "version moved on".
func (s *Store) checkAffected(ctx context.Context, res sql.Result, id register.RegisterID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &register.InfrastructureError{Op: "update register", Err: err}
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM registers WHERE id = ?", id).Scan(&exists); err != nil {
			return &register.InfrastructureError{Op: "update register", Err: err}
		}
		if exists == 0 {
			return &register.NotFoundError{RegisterID: id}
		}
		return register.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

// AppendEntry writes the entry and the register's new cached balance in
// one database transaction.
func (s *Store) AppendEntry(ctx context.Context, reg register.Register, entry register.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &register.InfrastructureError{Op: "append entry", Err: err}
	}
	defer tx.Rollback()

	metadataJSON, _ := json.Marshal(entry.Metadata)

	insert := `
		INSERT INTO transactions
		(id, register_id, tx_type, amount, created_by, reference_id, idempotency_key, metadata_json, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insert,
		entry.ID,
		entry.RegisterID,
		entry.Type,
		entry.Amount.String(),
		entry.CreatedBy,
		nullString(entry.Reference),
		nullString(entry.IdempotencyKey),
		string(metadataJSON),
		entry.CreatedAt.UTC().UnixNano(),
	); err != nil {
		if isUniqueConstraintError(err) {
			return register.ErrDuplicateIdempotencyKey
		}
		return &register.InfrastructureError{Op: "append entry", Err: err}
	}

	update := `
		UPDATE registers
		SET current_balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := tx.ExecContext(ctx, update,
		reg.CurrentBalance.String(),
		reg.UpdatedAt.UTC().Format(time.RFC3339Nano),
		reg.ID,
		reg.Version,
	)
	if err != nil {
		return &register.InfrastructureError{Op: "append entry", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &register.InfrastructureError{Op: "append entry", Err: err}
	}
	if n == 0 {
		// Rolls back the insert: either both land or neither does.
		return register.ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return &register.InfrastructureError{Op: "append entry", Err: err}
	}
	return nil
}

func (s *Store) CountEntries(ctx context.Context, id register.RegisterID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE register_id = ?", id).Scan(&count)
	if err != nil {
		return 0, &register.InfrastructureError{Op: "count entries", Err: err}
	}
	return count, nil
}

func (s *Store) LoadEntries(ctx context.Context, id register.RegisterID) ([]register.Transaction, error) {
	query := `
		SELECT seq, id, register_id, tx_type, amount, created_by, reference_id, idempotency_key, metadata_json, created_at_ns
		FROM transactions
		WHERE register_id = ?
		ORDER BY created_at_ns ASC, seq ASC
	`
	return s.queryEntries(ctx, query, id)
}

func (s *Store) LoadEntriesRange(ctx context.Context, id register.RegisterID, from, to time.Time) ([]register.Transaction, error) {
	query := `
		SELECT seq, id, register_id, tx_type, amount, created_by, reference_id, idempotency_key, metadata_json, created_at_ns
		FROM transactions
		WHERE register_id = ?
		  AND created_at_ns >= ? AND created_at_ns <= ?
		ORDER BY created_at_ns ASC, seq ASC
	`
	return s.queryEntries(ctx, query, id, from.UTC().UnixNano(), to.UTC().UnixNano())
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]register.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &register.InfrastructureError{Op: "query entries", Err: err}
	}
	defer rows.Close()

	var entries []register.Transaction
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, &register.InfrastructureError{Op: "query entries", Err: err}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegister(row rowScanner) (*register.Register, error) {
	var (
		reg       register.Register
		opening   string
		current   string
		createdAt string
		updatedAt string
	)

	err := row.Scan(&reg.ID, &reg.Name, &reg.Status, &reg.Cashier,
		&opening, &current, &reg.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if reg.OpeningBalance, err = register.NewAmountFromString(opening); err != nil {
		return nil, fmt.Errorf("corrupt opening balance: %w", err)
	}
	if reg.CurrentBalance, err = register.NewAmountFromString(current); err != nil {
		return nil, fmt.Errorf("corrupt current balance: %w", err)
	}
	reg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	reg.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &reg, nil
}

func scanEntry(rows *sql.Rows) (register.Transaction, error) {
	var (
		entry          register.Transaction
		amount         string
		referenceID    sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdAtNS    int64
	)

	err := rows.Scan(&entry.Seq, &entry.ID, &entry.RegisterID, &entry.Type,
		&amount, &entry.CreatedBy, &referenceID, &idempotencyKey, &metadataJSON, &createdAtNS)
	if err != nil {
		return entry, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if entry.Amount, err = register.NewAmountFromString(amount); err != nil {
		return entry, fmt.Errorf("corrupt amount: %w", err)
	}
	entry.Reference = referenceID.String
	entry.IdempotencyKey = idempotencyKey.String
	entry.CreatedAt = time.Unix(0, createdAtNS).UTC()

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata)
	}

	return entry, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
