/*
service.go - Orchestration of register operations

PURPOSE:
  The Service is the only component allowed to flip register state or
  construct ledger entries. Every public operation follows the same shape:

      authorize -> validate -> mutate atomically -> return

  Callers (HTTP handlers, jobs) never touch the Register or the ledger
  directly.

LINEARIZATION:
  All mutating operations on one register run under a per-register mutex,
  so concurrent posts never recompute the balance from a stale read.
  Operations on different registers proceed in parallel. The store's
  optimistic version check is the second line of defense for deployments
  with multiple processes sharing one database.

TIMESTAMPS:
  The service stamps every entry with a per-register monotonically
  non-decreasing CreatedAt. Exact ties are ordered by the store-assigned
  insertion sequence.
*/
package register

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service wires the gate, the store and the ledger into the public
// operations of the engine.
type Service struct {
	store  Store
	gate   *Gate
	ledger *Ledger
	log    zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	locks      map[RegisterID]*sync.Mutex
	lastPosted map[RegisterID]time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger. Default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, gate *Gate, opts ...Option) *Service {
	s := &Service{
		store:      store,
		gate:       gate,
		ledger:     NewLedger(store),
		log:        zerolog.Nop(),
		now:        func() time.Time { return time.Now().UTC() },
		locks:      make(map[RegisterID]*sync.Mutex),
		lastPosted: make(map[RegisterID]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockFor returns the mutex serializing mutations on one register.
func (s *Service) lockFor(id RegisterID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// entryTime returns a CreatedAt that never goes backwards for a register.
// Must be called with the register's lock held.
func (s *Service) entryTime(id RegisterID) time.Time {
	t := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastPosted[id]; ok && t.Before(last) {
		t = last
	}
	s.lastPosted[id] = t
	return t
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// CreateRegister creates a new CLOSED register with the given opening
// balance (zero when opening is the zero Amount value is fine).
func (s *Service) CreateRegister(ctx context.Context, principal PrincipalID, name string, openingBalance Amount) (*Register, error) {
	if err := s.gate.Authorize(ctx, principal, CapRegisterCreate); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if openingBalance.IsNegative() {
		return nil, &ValidationError{Field: "openingBalance", Reason: "must not be negative"}
	}

	reg := NewRegister(RegisterID(uuid.NewString()), name, openingBalance, s.now())
	if err := s.store.CreateRegister(ctx, reg); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("register_id", string(reg.ID)).
		Str("name", reg.Name).
		Str("opening_balance", reg.OpeningBalance.String()).
		Msg("register created")
	return &reg, nil
}

// OpenRegister transitions a register to OPEN and assigns the principal
// as its cashier. Opening an already-open register is a conflict.
func (s *Service) OpenRegister(ctx context.Context, id RegisterID, principal PrincipalID) (*Register, error) {
	if err := s.gate.Authorize(ctx, principal, CapRegisterOpen); err != nil {
		return nil, err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.store.GetRegister(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := reg.Open(principal, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRegister(ctx, *reg); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("register_id", string(id)).
		Str("cashier", string(principal)).
		Msg("register opened")
	return reg, nil
}

// CloseRegister transitions a register back to CLOSED and clears the
// cashier. The balance and ledger are untouched.
func (s *Service) CloseRegister(ctx context.Context, id RegisterID, principal PrincipalID) (*Register, error) {
	if err := s.gate.Authorize(ctx, principal, CapRegisterClose); err != nil {
		return nil, err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.store.GetRegister(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := reg.Close(s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRegister(ctx, *reg); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("register_id", string(id)).
		Str("closed_by", string(principal)).
		Msg("register closed")
	return reg, nil
}

// DeleteRegister removes a CLOSED register. Any ledger history blocks the
// delete unless the caller confirms the history has been archived; entries
// themselves are retained either way.
func (s *Service) DeleteRegister(ctx context.Context, id RegisterID, principal PrincipalID, archived bool) error {
	if err := s.gate.Authorize(ctx, principal, CapRegisterDelete); err != nil {
		return err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.store.GetRegister(ctx, id)
	if err != nil {
		return err
	}
	if reg.Status != StatusClosed {
		return &ConflictError{RegisterID: id, Reason: "must be closed before deletion"}
	}
	count, err := s.store.CountEntries(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 && !archived {
		return &ConflictError{RegisterID: id, Reason: "has transaction history; archive before deleting"}
	}
	if err := s.store.DeleteRegister(ctx, id); err != nil {
		return err
	}

	s.log.Info().
		Str("register_id", string(id)).
		Str("deleted_by", string(principal)).
		Int("entries_retained", count).
		Msg("register deleted")
	return nil
}

// =============================================================================
// POSTING
// =============================================================================

// PostRequest carries the caller's intent for one ledger entry.
type PostRequest struct {
	RegisterID RegisterID
	Type       TransactionType
	Amount     Amount
	Reference  string
	Metadata   map[string]string

	// IdempotencyKey makes the post safe to retry. Optional.
	IdempotencyKey string
}

// PostTransaction appends one immutable entry to the register's ledger and
// updates the cached balance in the same atomic unit. The engine never
// retries on its own: a failed post is reported, not repeated.
func (s *Service) PostTransaction(ctx context.Context, principal PrincipalID, req PostRequest) (*Transaction, error) {
	if err := s.gate.Authorize(ctx, principal, CapTransactionPost); err != nil {
		return nil, err
	}
	if req.Type.IsCashOut() {
		if err := s.gate.Authorize(ctx, principal, CapCashOut); err != nil {
			return nil, err
		}
	}
	if err := ValidateSign(req.Type, req.Amount); err != nil {
		return nil, err
	}

	lock := s.lockFor(req.RegisterID)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.store.GetRegister(ctx, req.RegisterID)
	if err != nil {
		return nil, err
	}
	// Trade entries need an open drawer with a responsible cashier.
	// Float movements (deposit/withdrawal/adjustment) are back-office
	// operations and are valid against a closed register too.
	if (req.Type == TxSale || req.Type == TxRefund) && reg.Status != StatusOpen {
		return nil, &ConflictError{RegisterID: req.RegisterID, Reason: "not open"}
	}

	entry := Transaction{
		ID:             TransactionID(uuid.NewString()),
		RegisterID:     req.RegisterID,
		Type:           req.Type,
		Amount:         req.Amount,
		CreatedBy:      principal,
		Reference:      req.Reference,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.entryTime(req.RegisterID),
	}

	updated := *reg
	updated.Apply(entry.Amount, entry.CreatedAt)

	if err := s.store.AppendEntry(ctx, updated, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("register_id", string(req.RegisterID)).
		Str("tx_id", string(entry.ID)).
		Str("tx_type", string(entry.Type)).
		Str("amount", entry.Amount.String()).
		Str("balance", updated.CurrentBalance.String()).
		Msg("transaction posted")
	return &entry, nil
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns the display view of a register. May be slightly stale
// under concurrent posting but never shows a balance ahead of the ledger.
func (s *Service) Snapshot(ctx context.Context, id RegisterID) (Snapshot, error) {
	reg, err := s.store.GetRegister(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return reg.Snapshot(), nil
}

// ListRegisters returns all registers. Intentionally ungated: the listing
// is public within the application.
func (s *Service) ListRegisters(ctx context.Context) ([]Register, error) {
	return s.store.ListRegisters(ctx)
}

// History returns the register's entries, optionally bounded by [from, to].
func (s *Service) History(ctx context.Context, id RegisterID, from, to *time.Time) ([]Transaction, error) {
	return s.ledger.History(ctx, id, from, to)
}

// BalanceAsOf replays the ledger up to and including at.
func (s *Service) BalanceAsOf(ctx context.Context, id RegisterID, at time.Time) (Amount, error) {
	return s.ledger.BalanceAsOf(ctx, id, at)
}

// Reconcile checks the cached balance against the ledger. Drift is
// reported, never silently corrected. Runs under the register's lock so a
// post committing mid-read cannot fake a drift.
func (s *Service) Reconcile(ctx context.Context, id RegisterID) (ReconciliationReport, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	report, err := s.ledger.Reconcile(ctx, id, s.now())
	if err != nil {
		return ReconciliationReport{}, err
	}
	if !report.Consistent() {
		s.log.Warn().
			Str("register_id", string(id)).
			Str("cached", report.Cached.String()).
			Str("derived", report.Derived.String()).
			Str("drift", report.Drift.String()).
			Msg("balance drift detected")
	}
	return report, nil
}
