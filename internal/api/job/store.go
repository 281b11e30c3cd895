package job

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/tpsl/internal/api/response"
	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Done reports whether the job reached a terminal state.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is an asynchronous backtest run.
type Job struct {
	ID        string                `json:"id"`
	Strategy  string                `json:"strategy"`
	Symbol    string                `json:"symbol"`
	Status    Status                `json:"status"`
	Result    *backtest.Result      `json:"result,omitempty"`
	ReportID  string                `json:"report_id,omitempty"`
	Error     *response.ErrorDetail `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Store keeps jobs in memory. Finished jobs expire after ttl; when the store
// is full the oldest finished job is evicted. Pending and running jobs are
// never evicted, so a store full of them refuses new jobs.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string // insertion order for eviction
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a pending job and returns a copy of it. It fails with
// ErrJobsFull when every slot holds an unfinished job.
func (s *Store) Create(strategy, symbol string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	for len(s.order) >= s.maxSize {
		if !s.evictFinishedLocked() {
			return Job{}, core.WrapError(core.ErrJobsFull,
				fmt.Errorf("%d jobs pending or running", len(s.order)))
		}
	}

	now := s.now()
	j := &Job{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		Symbol:    symbol,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	return *j, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok || s.expired(j) {
		return Job{}, core.WrapError(core.ErrJobNotFound, fmt.Errorf("job %s", id))
	}
	return *j, nil
}

// Update modifies a job in place under the store lock.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return core.WrapError(core.ErrJobNotFound, fmt.Errorf("job %s", id))
	}

	fn(j)
	j.UpdatedAt = s.now()
	return nil
}

// List returns live jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !s.expired(j) {
			result = append(result, *j)
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return result
}

// Active counts jobs that are pending or running.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if !j.Status.Done() {
			n++
		}
	}
	return n
}

func (s *Store) expired(j *Job) bool {
	return s.ttl > 0 && j.Status.Done() && s.now().Sub(j.UpdatedAt) > s.ttl
}

func (s *Store) expireLocked() {
	kept := s.order[:0]
	for _, id := range s.order {
		if j := s.jobs[id]; j != nil && s.expired(j) {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// evictFinishedLocked drops the oldest finished job
func (s *Store) evictFinishedLocked() bool {
	for i, id := range s.order {
		if j := s.jobs[id]; j != nil && j.Status.Done() {
			delete(s.jobs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}
