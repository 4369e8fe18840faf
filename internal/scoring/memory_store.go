package scoring

import (
	"context"
	"sort"
	"sync"

	"github.com/arjunrm/scamshield/internal/pagination"
)

// MemoryStore is an in-memory Store for tests and single-node dev runs.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]*RiskAssessment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assessments: make(map[string]*RiskAssessment)}
}

func (m *MemoryStore) Save(ctx context.Context, a *RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.assessments[a.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*RiskAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*RiskAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*RiskAssessment
	for _, a := range m.assessments {
		if a.UserID != userID {
			continue
		}
		if before != nil && !olderThan(a, before) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// olderThan reports whether a sorts strictly after the cursor position
// in (created_at DESC, id DESC) order.
func olderThan(a *RiskAssessment, c *pagination.Cursor) bool {
	if !a.CreatedAt.Equal(c.CreatedAt) {
		return a.CreatedAt.Before(c.CreatedAt)
	}
	return a.ID < c.ID
}

func (m *MemoryStore) CountByTier(ctx context.Context) (map[Tier]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Tier]int)
	for _, a := range m.assessments {
		counts[a.Tier]++
	}
	return counts, nil
}
