/*
ledger.go - Read side of the append-only transaction ledger

PURPOSE:
  The ledger is the source of truth for every register's balance. The
  entries themselves are written only through Store.AppendEntry (driven by
  the service); this file derives balances from them and detects drift
  between the cached balance and the replayed one.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted
  2. ORDERED: CreatedAt ascending, Seq breaks exact ties (total order)
  3. DERIVABLE: openingBalance + Σ(entries) reproduces CurrentBalance

DRIFT:
  A cached balance that disagrees with the replayed sum is a reportable
  anomaly. It is never silently auto-corrected - that would destroy the
  evidence an operator needs.
*/
package register

import (
	"context"
	"math"
	"time"
)

// Ledger derives balances and history from the store's entry log.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// History returns the register's entries ordered by CreatedAt then Seq.
// A nil bound leaves that side of the range open.
func (l *Ledger) History(ctx context.Context, id RegisterID, from, to *time.Time) ([]Transaction, error) {
	if _, err := l.store.GetRegister(ctx, id); err != nil {
		return nil, err
	}
	if from == nil && to == nil {
		return l.store.LoadEntries(ctx, id)
	}
	// Open bounds must survive a UnixNano round-trip in the SQL store, so
	// the sentinels sit exactly on the int64-nanosecond range.
	lo := time.Unix(0, math.MinInt64)
	hi := time.Unix(0, math.MaxInt64)
	if from != nil {
		lo = *from
	}
	if to != nil {
		hi = *to
	}
	return l.store.LoadEntriesRange(ctx, id, lo, hi)
}

// BalanceAsOf replays entries up to and including at, starting from the
// opening balance.
func (l *Ledger) BalanceAsOf(ctx context.Context, id RegisterID, at time.Time) (Amount, error) {
	reg, err := l.store.GetRegister(ctx, id)
	if err != nil {
		return Amount{}, err
	}
	entries, err := l.store.LoadEntries(ctx, id)
	if err != nil {
		return Amount{}, err
	}
	balance := reg.OpeningBalance
	for _, e := range entries {
		if e.CreatedAt.After(at) {
			break
		}
		balance = balance.Add(e.Amount)
	}
	return balance, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconciliationReport compares the cached balance against the ledger sum.
type ReconciliationReport struct {
	RegisterID RegisterID
	Cached     Amount
	Derived    Amount
	Drift      Amount
	Entries    int
	CheckedAt  time.Time
}

// Consistent reports whether cache and ledger agree.
func (r ReconciliationReport) Consistent() bool { return r.Drift.IsZero() }

// Reconcile recomputes the balance from the full ledger and reports any
// drift against the cached value. Detection only; never corrects.
func (l *Ledger) Reconcile(ctx context.Context, id RegisterID, now time.Time) (ReconciliationReport, error) {
	reg, err := l.store.GetRegister(ctx, id)
	if err != nil {
		return ReconciliationReport{}, err
	}
	entries, err := l.store.LoadEntries(ctx, id)
	if err != nil {
		return ReconciliationReport{}, err
	}
	derived := reg.OpeningBalance
	for _, e := range entries {
		derived = derived.Add(e.Amount)
	}
	return ReconciliationReport{
		RegisterID: id,
		Cached:     reg.CurrentBalance,
		Derived:    derived,
		Drift:      reg.CurrentBalance.Sub(derived),
		Entries:    len(entries),
		CheckedAt:  now,
	}, nil
}
