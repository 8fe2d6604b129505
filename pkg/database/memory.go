package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/models"
)

// MemoryStore is an in-memory JobStore used by tests and the "memory" store
// mode. Jobs are deep-copied on the way in and out so callers never share
// entity pointers with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *MemoryStore) Save(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Name == job.Name {
			return ErrDuplicateName
		}
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return copyJob(job), nil
}

func (s *MemoryStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DueForScheduling(ctx context.Context) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Job
	for _, job := range s.jobs {
		if !job.Active {
			continue
		}
		if job.Status == models.JobStatusPending || job.IsRecurring() {
			due = append(due, copyJob(job))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].StartTime.Before(due[j].StartTime)
	})
	return due, nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*models.Job, error) {
	s.mu.RLock()
	all := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, copyJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if filter.OrderDir != OrderAsc {
			a, b = b, a
		}
		if jobLess(a, b, filter.OrderBy) {
			return true
		}
		if jobLess(b, a, filter.OrderBy) {
			return false
		}
		// Ties fall back to id so page order is deterministic.
		return a.ID.String() < b.ID.String()
	})

	offset := filter.Offset()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + filter.Limit()
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.jobs)), nil
}

func jobLess(a, b *models.Job, orderBy string) bool {
	switch orderBy {
	case "name":
		return strings.Compare(a.Name, b.Name) < 0
	case "status":
		return strings.Compare(string(a.Status), string(b.Status)) < 0
	case "start_time":
		return a.StartTime.Before(b.StartTime)
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func copyJob(job *models.Job) *models.Job {
	clone := *job
	if job.Config != nil {
		clone.Config = append([]byte(nil), job.Config...)
	}
	return &clone
}
