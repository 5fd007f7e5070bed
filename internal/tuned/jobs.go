// Package tuned runs searches as background jobs behind an HTTP API.
package tuned

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// JobStatus is the lifecycle of a search job, separate from the search's own status
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobStopped   JobStatus = "stopped"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobStopped || s == JobFailed
}

// JobInput is what a client submits
type JobInput struct {
	SearchYAML     string `json:"search_yaml"`
	EvaluatorURL   string `json:"evaluator_url,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackSecret string `json:"-"`
}

// Job is a snapshot of one search job
type Job struct {
	ID        string               `json:"id"`
	Status    JobStatus            `json:"status"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	StartedAt time.Time            `json:"started_at,omitzero"`
	EndedAt   time.Time            `json:"ended_at,omitzero"`
	Input     JobInput             `json:"input"`
	Result    *models.SearchResult `json:"result,omitempty"`
}

type jobEntry struct {
	job       Job
	collector *progress.Collector
}

// JobStore keeps jobs in memory
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*jobEntry)}
}

// Create registers a pending job. An empty id is generated.
func (s *JobStore) Create(id string, input JobInput) (Job, error) {
	if id == "" {
		id = utils.GenerateSearchID()
	}
	if err := utils.ValidateID(id); err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}
	e := &jobEntry{
		job: Job{
			ID:        id,
			Status:    JobPending,
			CreatedAt: time.Now().UTC(),
			Input:     input,
		},
		collector: progress.NewCollector(),
	}
	s.jobs[id] = e
	return e.job, nil
}

func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// Progress returns the job's progress collector
func (s *JobStore) Progress(id string) (*progress.Collector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return e.collector, true
}

// List returns jobs newest first. An empty status matches every job.
func (s *JobStore) List(limit, offset int, status JobStatus) []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		if status == "" || e.job.Status == status {
			out = append(out, e.job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(out) {
		return []Job{}
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SetStatus moves a job to status. Terminal jobs do not change.
func (s *JobStore) SetStatus(id string, status JobStatus, errMsg string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if e.job.Status.Terminal() {
		return e.job, fmt.Errorf("%w: %s", ErrJobTerminal, id)
	}
	e.job.Status = status
	if errMsg != "" {
		e.job.Error = errMsg
	}
	now := time.Now().UTC()
	switch {
	case status == JobRunning && e.job.StartedAt.IsZero():
		e.job.StartedAt = now
	case status.Terminal():
		e.job.EndedAt = now
	}
	return e.job, nil
}

// Finish records the result and the terminal status in one step
func (s *JobStore) Finish(id string, status JobStatus, result *models.SearchResult, errMsg string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	e.job.Result = result
	e.job.Status = status
	e.job.Error = errMsg
	e.job.EndedAt = time.Now().UTC()
	return e.job, nil
}
