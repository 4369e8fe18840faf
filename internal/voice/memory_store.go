package voice

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node dev runs.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Fingerprint
	byHash map[string]*Fingerprint
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory voiceprint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Fingerprint),
		byHash: make(map[string]*Fingerprint),
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, fp *Fingerprint) (*Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byHash[fp.Hash]; ok {
		existing.SampleCount++
		existing.UpdatedAt = time.Now().UTC()
		if fp.IsScammer {
			existing.IsScammer = true
		}
		cp := *existing
		return &cp, nil
	}

	cp := *fp
	m.byID[fp.ID] = &cp
	m.byHash[fp.Hash] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *fp
	return &cp, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Fingerprint
	for _, fp := range m.byID {
		if fp.UserID == userID {
			cp := *fp
			out = append(out, &cp)
		}
	}
	return sortAndCap(out, limit), nil
}

func (m *MemoryStore) ListScammers(ctx context.Context, limit int) ([]*Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Fingerprint
	for _, fp := range m.byID {
		if fp.IsScammer {
			cp := *fp
			out = append(out, &cp)
		}
	}
	return sortAndCap(out, limit), nil
}

func (m *MemoryStore) All(ctx context.Context, limit int) ([]*Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Fingerprint
	for _, fp := range m.byID {
		cp := *fp
		out = append(out, &cp)
	}
	return sortAndCap(out, limit), nil
}

func (m *MemoryStore) SetScammer(ctx context.Context, id string, isScammer bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	fp.IsScammer = isScammer
	fp.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byHash, fp.Hash)
	return nil
}

func sortAndCap(out []*Fingerprint, limit int) []*Fingerprint {
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
