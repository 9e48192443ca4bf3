package job

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store. It uses maps guarded
// by an RWMutex; the mutex held across read-modify-write in UpdateJob gives
// the per-job linearizability the reconciler requires.
// Suitable for development and testing; use SQLiteStore in production.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	clips map[string]*Clip
	order []string // job ids in insertion order
}

// NewMemoryStore creates a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		clips: make(map[string]*Clip),
	}
}

// CreateJob persists a job. Stores a clone to avoid external mutations.
func (s *MemoryStore) CreateJob(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	s.order = append(s.order, j.ID)
	return nil
}

// GetJob retrieves a job by id scoped to the owner. Returns a clone.
func (s *MemoryStore) GetJob(_ context.Context, id, ownerID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListJobs returns the owner's jobs, newest first.
func (s *MemoryStore) ListJobs(_ context.Context, ownerID string) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Job, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		if j, ok := s.jobs[s.order[i]]; ok && j.OwnerID == ownerID {
			result = append(result, j.Clone())
		}
	}
	return result, nil
}

// UpdateJob atomically applies a partial update under the store lock.
// Updates against terminal jobs are ignored and the stored row returned.
func (s *MemoryStore) UpdateJob(_ context.Context, id, ownerID string, upd JobUpdate) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, ErrJobNotFound
	}
	updated, applied := applyUpdate(j, upd)
	if applied {
		s.jobs[id] = updated
	}
	return updated.Clone(), nil
}

// CreateClip persists a clip record.
func (s *MemoryStore) CreateClip(_ context.Context, c *Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[c.ID] = c.Clone()
	return nil
}

// ListClips returns the owner's clips, newest first.
func (s *MemoryStore) ListClips(_ context.Context, ownerID string) ([]*Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Clip, 0)
	for _, c := range s.clips {
		if c.OwnerID == ownerID {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return result, nil
}
