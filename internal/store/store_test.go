package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

func sampleResult(t *testing.T, id string, started time.Time) *models.SearchResult {
	t.Helper()
	cfg, err := params.NewConfiguration(
		[]string{"penalty", "activation"},
		[]params.Value{params.NumValue(0.001), params.LevelValue("relu")},
	)
	require.NoError(t, err)
	best := models.Observation{Config: cfg, Mean: 0.8659, StdErr: 0.004, Iteration: 3}
	return &models.SearchResult{
		ID:         id,
		Status:     models.StatusStoppedBudget,
		Direction:  models.Maximize,
		Best:       &best,
		History:    []models.Observation{{Config: cfg, Mean: 0.8639, StdErr: 0.005}, best},
		Iterations: 3,
		StartedAt:  started,
		EndedAt:    started.Add(time.Minute),
	}
}

// exerciseStore runs the behaviour every ResultStore must share
func exerciseStore(t *testing.T, s ResultStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	first := sampleResult(t, "search-a", now)
	second := sampleResult(t, "search-b", now.Add(time.Second))
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx, "search-a")
	require.NoError(t, err)
	assert.Equal(t, first.Status, got.Status)
	assert.Equal(t, first.Iterations, got.Iterations)
	require.NotNil(t, got.Best)
	assert.Equal(t, 0.8659, got.Best.Mean)
	assert.True(t, got.Best.Config.Equal(first.Best.Config))
	assert.Len(t, got.History, 2)
	assert.True(t, got.StartedAt.Equal(first.StartedAt))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"search-a", "search-b"}, ids)

	// overwrite keeps a single entry
	first.Iterations = 9
	require.NoError(t, s.Save(ctx, first))
	got, err = s.Load(ctx, "search-a")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Iterations)
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, s.Delete(ctx, "search-a"))
	require.ErrorIs(t, s.Delete(ctx, "search-a"), ErrNotFound)
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"search-b"}, ids)

	assert.Error(t, s.Save(ctx, nil))
	assert.Error(t, s.Save(ctx, sampleResult(t, "../escape", now)))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := sampleResult(t, "search-a", time.Now())
	require.NoError(t, s.Save(ctx, r))

	r.History[0].Mean = -1
	r.Best.Mean = -1

	got, err := s.Load(ctx, "search-a")
	require.NoError(t, err)
	assert.Equal(t, 0.8639, got.History[0].Mean)
	assert.Equal(t, 0.8659, got.Best.Mean)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "results"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	ids, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	_, err = s.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	prefix := "tune-test-" + time.Now().Format("150405.000000")
	s, err := NewRedisStore(url, prefix, 0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))

	exerciseStore(t, s)
	require.NoError(t, s.Delete(context.Background(), "search-b"))
}

func TestNewRedisStoreInvalidURL(t *testing.T) {
	_, err := NewRedisStore("not a url", "", 0)
	assert.Error(t, err)
}
