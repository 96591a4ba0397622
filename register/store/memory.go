// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tillpoint/register-engine/register"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	registers   map[register.RegisterID]register.Register
	entries     map[register.RegisterID][]register.Transaction
	idempotency map[string]bool
	nextSeq     int64
}

func NewMemory() *Memory {
	return &Memory{
		registers:   make(map[register.RegisterID]register.Register),
		entries:     make(map[register.RegisterID][]register.Transaction),
		idempotency: make(map[string]bool),
	}
}

func (m *Memory) CreateRegister(_ context.Context, reg register.Register) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.registers {
		if existing.Name == reg.Name {
			return register.ErrDuplicateName
		}
	}
	m.registers[reg.ID] = reg
	return nil
}

func (m *Memory) GetRegister(_ context.Context, id register.RegisterID) (*register.Register, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.registers[id]
	if !ok {
		return nil, &register.NotFoundError{RegisterID: id}
	}
	out := reg
	return &out, nil
}

func (m *Memory) ListRegisters(_ context.Context) ([]register.Register, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]register.Register, 0, len(m.registers))
	for _, reg := range m.registers {
		result = append(result, reg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateRegister persists lifecycle fields only, mirroring the SQL
// implementation: the cached balance is written solely via AppendEntry.
func (m *Memory) UpdateRegister(_ context.Context, reg register.Register) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.registers[reg.ID]
	if !ok {
		return &register.NotFoundError{RegisterID: reg.ID}
	}
	if stored.Version != reg.Version {
		return register.ErrConcurrentModification
	}
	stored.Status = reg.Status
	stored.Cashier = reg.Cashier
	stored.UpdatedAt = reg.UpdatedAt
	stored.Version++
	m.registers[reg.ID] = stored
	return nil
}

func (m *Memory) DeleteRegister(_ context.Context, id register.RegisterID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registers[id]; !ok {
		return &register.NotFoundError{RegisterID: id}
	}
	// Entries are retained for audit.
	delete(m.registers, id)
	return nil
}

// AppendEntry inserts the entry and the updated register state as one unit.
func (m *Memory) AppendEntry(_ context.Context, reg register.Register, entry register.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.registers[reg.ID]
	if !ok {
		return &register.NotFoundError{RegisterID: reg.ID}
	}
	if stored.Version != reg.Version {
		return register.ErrConcurrentModification
	}
	if entry.IdempotencyKey != "" && m.idempotency[entry.IdempotencyKey] {
		return register.ErrDuplicateIdempotencyKey
	}

	m.nextSeq++
	entry.Seq = m.nextSeq
	m.entries[entry.RegisterID] = append(m.entries[entry.RegisterID], entry)
	if entry.IdempotencyKey != "" {
		m.idempotency[entry.IdempotencyKey] = true
	}

	stored.CurrentBalance = reg.CurrentBalance
	stored.UpdatedAt = reg.UpdatedAt
	stored.Version++
	m.registers[reg.ID] = stored
	return nil
}

func (m *Memory) CountEntries(_ context.Context, id register.RegisterID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[id]), nil
}

func (m *Memory) LoadEntries(_ context.Context, id register.RegisterID) ([]register.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]register.Transaction, len(m.entries[id]))
	copy(result, m.entries[id])
	sortEntries(result)
	return result, nil
}

func (m *Memory) LoadEntriesRange(_ context.Context, id register.RegisterID, from, to time.Time) ([]register.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []register.Transaction
	for _, e := range m.entries[id] {
		if !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			result = append(result, e)
		}
	}
	sortEntries(result)
	return result, nil
}

// sortEntries orders by CreatedAt, then Seq for exact-timestamp ties.
func sortEntries(entries []register.Transaction) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
