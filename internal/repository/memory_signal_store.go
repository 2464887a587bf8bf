package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

// MemorySignalStore keeps the live signal book in process memory. Signals are
// short-lived working state; durable history flows through the audit trail
// and the executed-signal archive instead. All reads return copies so callers
// mutate freely and commit explicitly via Update/UpdateBatch.
type MemorySignalStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Signal
	archive *ExecutedArchive
	now     func() time.Time
}

// NewMemorySignalStore creates an empty store. archive may be nil.
func NewMemorySignalStore(archive *ExecutedArchive) *MemorySignalStore {
	return &MemorySignalStore{
		byID:    make(map[string]*models.Signal),
		archive: archive,
		now:     time.Now,
	}
}

func (m *MemorySignalStore) Create(ctx context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = cloneSignal(s)
	return nil
}

func (m *MemorySignalStore) Get(ctx context.Context, id string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, drepo.ErrSignalNotFound
	}
	return cloneSignal(s), nil
}

func (m *MemorySignalStore) Update(ctx context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(ctx, s)
}

func (m *MemorySignalStore) UpdateBatch(ctx context.Context, sigs []*models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sigs {
		if _, ok := m.byID[s.ID]; !ok {
			return drepo.ErrSignalNotFound
		}
	}
	for _, s := range sigs {
		if err := m.updateLocked(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemorySignalStore) updateLocked(ctx context.Context, s *models.Signal) error {
	if _, ok := m.byID[s.ID]; !ok {
		return drepo.ErrSignalNotFound
	}
	m.byID[s.ID] = cloneSignal(s)
	if m.archive != nil && s.Status == models.SignalStatusExecuted {
		m.archive.Put(ctx, s)
	}
	return nil
}

func (m *MemorySignalStore) FindLive(ctx context.Context, accountID, symbol string) (*models.Signal, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.byID {
		if s.AccountID == accountID && s.Symbol == symbol && s.IsLive(now) {
			return cloneSignal(s), nil
		}
	}
	return nil, drepo.ErrSignalNotFound
}

func (m *MemorySignalStore) ListByStatus(ctx context.Context, accountID string, statuses ...models.SignalStatus) ([]*models.Signal, error) {
	want := make(map[models.SignalStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	m.mu.RLock()
	var out []*models.Signal
	for _, s := range m.byID {
		if s.AccountID == accountID && want[s.Status] {
			out = append(out, cloneSignal(s))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemorySignalStore) ListExecutedSince(ctx context.Context, accountID string, since time.Time) ([]*models.Signal, error) {
	m.mu.RLock()
	var out []*models.Signal
	for _, s := range m.byID {
		if s.AccountID == accountID && s.Status == models.SignalStatusExecuted && !s.UpdatedAt.Before(since) {
			out = append(out, cloneSignal(s))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// PruneTerminal drops terminal signals older than the retention cutoff and
// returns the number removed. Executed signals already sit in the archive.
func (m *MemorySignalStore) PruneTerminal(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.byID {
		if s.Status.IsTerminal() && s.UpdatedAt.Before(cutoff) {
			delete(m.byID, id)
			removed++
		}
	}
	return removed
}

func cloneSignal(s *models.Signal) *models.Signal {
	c := *s
	if s.FactorScores != nil {
		c.FactorScores = make(map[string]float64, len(s.FactorScores))
		for k, v := range s.FactorScores {
			c.FactorScores[k] = v
		}
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
