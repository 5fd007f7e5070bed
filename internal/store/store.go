// Package store persists search results so a later search can resume from
// their observations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

var ErrNotFound = errors.New("search result not found")

// ResultStore saves and loads search results by ID
type ResultStore interface {
	Save(ctx context.Context, result *models.SearchResult) error
	Load(ctx context.Context, id string) (*models.SearchResult, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

func checkResult(result *models.SearchResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	return utils.ValidateID(result.ID)
}

// MemoryStore keeps results in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*models.SearchResult
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*models.SearchResult)}
}

func (s *MemoryStore) Save(_ context.Context, result *models.SearchResult) error {
	if err := checkResult(result); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ID] = cloneResult(result)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneResult(r), nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.results, id)
	return nil
}

func cloneResult(r *models.SearchResult) *models.SearchResult {
	out := *r
	out.History = append([]models.Observation(nil), r.History...)
	if r.Best != nil {
		best := *r.Best
		out.Best = &best
	}
	return &out
}
