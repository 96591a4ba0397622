package register_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/register-engine/register"
	"github.com/tillpoint/register-engine/register/store"
)

// newService builds a service on the in-memory store with the usual
// principals: "cashier" (cashier role), "manager", and "admin".
func newService(t *testing.T, opts ...register.Option) *register.Service {
	t.Helper()

	directory := register.NewRoleDirectory()
	directory.Grant("cashier", register.RoleCashier)
	directory.Grant("manager", register.RoleManager)
	directory.Grant("admin", register.RoleAdmin)

	return register.NewService(store.NewMemory(), register.NewGate(directory), opts...)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestService_CreateRegister(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	reg, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("100"))
	require.NoError(t, err)

	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, "Till-1", reg.Name)
	assert.Equal(t, register.StatusClosed, reg.Status)
	assert.True(t, reg.CurrentBalance.Equal(register.MustAmount("100")))
}

func TestService_CreateRegister_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.CreateRegister(ctx, "manager", "   ", register.ZeroAmount())
	assert.ErrorIs(t, err, register.ErrValidation)

	_, err = svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("-5"))
	assert.ErrorIs(t, err, register.ErrValidation)
}

func TestService_CreateRegister_DuplicateName(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)

	_, err = svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	assert.ErrorIs(t, err, register.ErrDuplicateName)
}

func TestService_CreateRegister_CashierDenied(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.CreateRegister(ctx, "cashier", "Till-1", register.ZeroAmount())
	require.Error(t, err)
	assert.ErrorIs(t, err, register.ErrPermissionDenied)

	var perm *register.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, register.CapRegisterCreate, perm.Capability)
}

func TestService_OpenClose(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("100"))
	require.NoError(t, err)

	opened, err := svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)
	assert.Equal(t, register.StatusOpen, opened.Status)
	assert.Equal(t, register.PrincipalID("cashier"), opened.Cashier)

	// Double open loses.
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	assert.ErrorIs(t, err, register.ErrConflict)

	closed, err := svc.CloseRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)
	assert.Equal(t, register.StatusClosed, closed.Status)
	assert.Empty(t, closed.Cashier)

	// Close without open loses too.
	_, err = svc.CloseRegister(ctx, created.ID, "cashier")
	assert.ErrorIs(t, err, register.ErrConflict)
}

func TestService_OpenUnknownRegister(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.OpenRegister(ctx, "no-such-register", "cashier")
	assert.ErrorIs(t, err, register.ErrRegisterNotFound)
}

// =============================================================================
// THE TILL-1 SHIFT - full worked lifecycle
// =============================================================================

func TestService_FullShift(t *testing.T) {
	// GIVEN: A register created with a 100 float
	// WHEN: A shift runs: open, sell 50, refund 20, close
	// THEN: The balance is 130 at every step it should be, and the
	//       history replays in posting order

	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("100"))
	require.NoError(t, err)
	id := created.ID

	_, err = svc.OpenRegister(ctx, id, "cashier")
	require.NoError(t, err)

	sale, err := svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: id,
		Type:       register.TxSale,
		Amount:     register.MustAmount("50"),
		Reference:  "sale-1001",
	})
	require.NoError(t, err)
	assert.Equal(t, register.TxSale, sale.Type)

	snap, err := svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.CurrentBalance.Equal(register.MustAmount("150")))

	_, err = svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: id,
		Type:       register.TxRefund,
		Amount:     register.MustAmount("-20"),
		Reference:  "refund-1001",
	})
	require.NoError(t, err)

	snap, err = svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.CurrentBalance.Equal(register.MustAmount("130")))

	_, err = svc.CloseRegister(ctx, id, "cashier")
	require.NoError(t, err)

	history, err := svc.History(ctx, id, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, register.TxSale, history[0].Type)
	assert.True(t, history[0].Amount.Equal(register.MustAmount("50")))
	assert.Equal(t, register.TxRefund, history[1].Type)
	assert.True(t, history[1].Amount.Equal(register.MustAmount("-20")))

	// The cached balance still replays from the ledger.
	report, err := svc.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.True(t, report.Derived.Equal(register.MustAmount("130")))
}

// =============================================================================
// POSTING RULES
// =============================================================================

func TestService_PostToClosedRegister(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("100"))
	require.NoError(t, err)

	// Trade entries need an open drawer.
	_, err = svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: created.ID,
		Type:       register.TxSale,
		Amount:     register.MustAmount("50"),
	})
	assert.ErrorIs(t, err, register.ErrConflict)

	// Float movements do not.
	_, err = svc.PostTransaction(ctx, "manager", register.PostRequest{
		RegisterID: created.ID,
		Type:       register.TxDeposit,
		Amount:     register.MustAmount("200"),
	})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, snap.CurrentBalance.Equal(register.MustAmount("300")))
}

func TestService_PostSignViolation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)

	_, err = svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: created.ID,
		Type:       register.TxSale,
		Amount:     register.MustAmount("-50"),
	})
	assert.ErrorIs(t, err, register.ErrValidation)

	// A rejected post leaves no trace.
	history, err := svc.History(ctx, created.ID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_CashOutNeedsStricterCapability(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("500"))
	require.NoError(t, err)

	// Cashiers can post sales but not withdrawals.
	_, err = svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: created.ID,
		Type:       register.TxWithdrawal,
		Amount:     register.MustAmount("-100"),
	})
	require.Error(t, err)

	var perm *register.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, register.CapCashOut, perm.Capability)

	// Managers can.
	_, err = svc.PostTransaction(ctx, "manager", register.PostRequest{
		RegisterID: created.ID,
		Type:       register.TxWithdrawal,
		Amount:     register.MustAmount("-100"),
	})
	require.NoError(t, err)
}

func TestService_PostToUnknownRegister(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: "no-such-register",
		Type:       register.TxSale,
		Amount:     register.MustAmount("10"),
	})
	assert.ErrorIs(t, err, register.ErrRegisterNotFound)
}

func TestService_IdempotencyKeyRejectsReplay(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("100"))
	require.NoError(t, err)
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)

	req := register.PostRequest{
		RegisterID:     created.ID,
		Type:           register.TxSale,
		Amount:         register.MustAmount("50"),
		IdempotencyKey: "sale-1001-attempt",
	}

	_, err = svc.PostTransaction(ctx, "cashier", req)
	require.NoError(t, err)

	_, err = svc.PostTransaction(ctx, "cashier", req)
	assert.ErrorIs(t, err, register.ErrDuplicateIdempotencyKey)

	// The replay changed nothing.
	snap, err := svc.Snapshot(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, snap.CurrentBalance.Equal(register.MustAmount("150")))
}

// =============================================================================
// CONCURRENCY - parallel posts against one register
// =============================================================================

func TestService_ConcurrentPosts(t *testing.T) {
	// GIVEN: An open register with a zero float
	// WHEN: 50 goroutines each post a sale of 1 concurrently
	// THEN: The final balance equals the sequential sum and every entry
	//       landed exactly once, in a strictly ordered history

	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)

	const posts = 50
	var wg sync.WaitGroup
	errs := make(chan error, posts)

	for i := 0; i < posts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PostTransaction(ctx, "cashier", register.PostRequest{
				RegisterID: created.ID,
				Type:       register.TxSale,
				Amount:     register.MustAmount("1"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := svc.Snapshot(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, snap.CurrentBalance.Equal(register.NewAmountFromInt(posts)),
		"got %s, want %d", snap.CurrentBalance, posts)

	history, err := svc.History(ctx, created.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, posts)

	// No duplicates, timestamps never go backwards.
	seen := make(map[register.TransactionID]bool)
	for i, entry := range history {
		assert.False(t, seen[entry.ID], "duplicate entry %s", entry.ID)
		seen[entry.ID] = true
		if i > 0 {
			assert.False(t, entry.CreatedAt.Before(history[i-1].CreatedAt),
				"history out of order at %d", i)
		}
	}

	report, err := svc.Reconcile(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestService_ReconcileDuringPosting_NoPhantomDrift(t *testing.T) {
	// GIVEN: A register receiving a stream of posts
	// WHEN: Reconciliation runs concurrently with the posting
	// THEN: Every report is consistent; a post landing between the
	//       reconcile reads must not fake a drift

	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)

	const posts = 30
	postErrs := make(chan error, posts)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < posts; i++ {
			_, err := svc.PostTransaction(ctx, "cashier", register.PostRequest{
				RegisterID: created.ID,
				Type:       register.TxSale,
				Amount:     register.MustAmount("1"),
			})
			postErrs <- err
		}
	}()

	for i := 0; i < posts; i++ {
		report, err := svc.Reconcile(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, report.Consistent(),
			"cached %s vs derived %s over %d entries",
			report.Cached, report.Derived, report.Entries)
	}
	wg.Wait()
	close(postErrs)
	for err := range postErrs {
		require.NoError(t, err)
	}

	final, err := svc.Reconcile(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, final.Consistent())
	assert.True(t, final.Derived.Equal(register.NewAmountFromInt(posts)))
}

// =============================================================================
// DELETION
// =============================================================================

func TestService_DeleteRegister(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)

	// Only admins delete.
	err = svc.DeleteRegister(ctx, created.ID, "manager", false)
	assert.ErrorIs(t, err, register.ErrPermissionDenied)

	require.NoError(t, svc.DeleteRegister(ctx, created.ID, "admin", false))

	_, err = svc.Snapshot(ctx, created.ID)
	assert.ErrorIs(t, err, register.ErrRegisterNotFound)
}

func TestService_DeleteOpenRegister_Conflict(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)

	err = svc.DeleteRegister(ctx, created.ID, "admin", false)
	assert.ErrorIs(t, err, register.ErrConflict)
}

func TestService_DeleteWithHistory(t *testing.T) {
	// GIVEN: A closed register that processed transactions
	// WHEN: Deleting without confirming the archive, then with it
	// THEN: The first attempt conflicts; the second removes the register
	//       but the ledger entries survive for audit

	ctx := context.Background()
	mem := store.NewMemory()

	directory := register.NewRoleDirectory()
	directory.Grant("manager", register.RoleManager)
	directory.Grant("cashier", register.RoleCashier)
	directory.Grant("admin", register.RoleAdmin)
	svc := register.NewService(mem, register.NewGate(directory))

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.MustAmount("100"))
	require.NoError(t, err)
	_, err = svc.OpenRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)
	_, err = svc.PostTransaction(ctx, "cashier", register.PostRequest{
		RegisterID: created.ID,
		Type:       register.TxSale,
		Amount:     register.MustAmount("50"),
	})
	require.NoError(t, err)
	_, err = svc.CloseRegister(ctx, created.ID, "cashier")
	require.NoError(t, err)

	err = svc.DeleteRegister(ctx, created.ID, "admin", false)
	require.Error(t, err)
	var conflict *register.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Reason, "archive")

	require.NoError(t, svc.DeleteRegister(ctx, created.ID, "admin", true))

	// Entries outlive the register row.
	entries, err := mem.LoadEntries(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// CLOCK BEHAVIOR
// =============================================================================

func TestService_EntryTimeNeverGoesBackwards(t *testing.T) {
	// A wall clock stepping backwards (NTP) must not reorder the ledger.

	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC), // clock stepped back
		time.Date(2026, 3, 1, 12, 0, 20, 0, time.UTC),
	}
	idx := 0
	clock := func() time.Time {
		t := times[idx%len(times)]
		idx++
		return t
	}

	svc := newService(t, register.WithClock(clock))

	created, err := svc.CreateRegister(ctx, "manager", "Till-1", register.ZeroAmount())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.PostTransaction(ctx, "manager", register.PostRequest{
			RegisterID: created.ID,
			Type:       register.TxDeposit,
			Amount:     register.MustAmount("1"),
		})
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, created.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}
}
