package auditlog

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"bastion/internal/audit/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore keeps the chain in memory, ordered by ChainIndex.
type InMemoryStore struct {
	mu      sync.RWMutex
	logs    []*models.AuditLog
	byID    map[string]int
	byIndex map[int64]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]int),
		byIndex: make(map[int64]int),
	}
}

func (s *InMemoryStore) Append(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byIndex[log.ChainIndex]; taken {
		return fmt.Errorf("chain index %d: %w", log.ChainIndex, sentinel.ErrConflict)
	}
	if _, taken := s.byID[log.ID]; taken {
		return fmt.Errorf("audit log %s: %w", log.ID, sentinel.ErrConflict)
	}
	pos, _ := slices.BinarySearchFunc(s.logs, log.ChainIndex, func(l *models.AuditLog, idx int64) int {
		return cmp.Compare(l.ChainIndex, idx)
	})
	s.logs = slices.Insert(s.logs, pos, clone(log))
	s.reindex()
	return nil
}

func (s *InMemoryStore) reindex() {
	for i, l := range s.logs {
		s.byID[l.ID] = i
		s.byIndex[l.ChainIndex] = i
	}
}

func (s *InMemoryStore) Tail(_ context.Context) (*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.logs) == 0 {
		return nil, fmt.Errorf("audit chain is empty: %w", sentinel.ErrNotFound)
	}
	return clone(s.logs[len(s.logs)-1]), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("audit log not found: %w", sentinel.ErrNotFound)
	}
	return clone(s.logs[i]), nil
}

// Search returns matching records, newest first.
func (s *InMemoryStore) Search(_ context.Context, q models.Query) ([]*models.AuditLog, error) {
	q = q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuditLog
	for _, l := range s.logs {
		if q.Matches(l) {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b *models.AuditLog) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ChainIndex, a.ChainIndex)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i, l := range out {
		out[i] = clone(l)
	}
	return out, nil
}

// Range returns up to limit records with ChainIndex >= from, in chain order.
func (s *InMemoryStore) Range(_ context.Context, from int64, limit int) ([]*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start, _ := slices.BinarySearchFunc(s.logs, from, func(l *models.AuditLog, idx int64) int {
		return cmp.Compare(l.ChainIndex, idx)
	})
	end := min(start+limit, len(s.logs))
	out := make([]*models.AuditLog, 0, end-start)
	for _, l := range s.logs[start:end] {
		out = append(out, clone(l))
	}
	return out, nil
}

// Archive marks unarchived records selected by sel and older than before.
func (s *InMemoryStore) Archive(_ context.Context, sel models.Selector, before, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.logs {
		if l.Archived || !l.Timestamp.Before(before) {
			continue
		}
		if !slices.Contains(sel.EventTypes, l.EventType) {
			continue
		}
		if len(sel.Severities) > 0 && !slices.Contains(sel.Severities, l.Severity) {
			continue
		}
		l.Archived = true
		l.ArchivedAt = at
		n++
	}
	return n, nil
}

func clone(l *models.AuditLog) *models.AuditLog {
	cp := *l
	cp.Details = maps.Clone(l.Details)
	return &cp
}
