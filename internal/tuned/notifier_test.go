package tuned

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

func finishedJob(callbackURL string) Job {
	best := models.Observation{Mean: 0.8659, Iteration: 3}
	return Job{
		ID:        "search-1",
		Status:    JobCompleted,
		CreatedAt: time.Now().UTC(),
		EndedAt:   time.Now().UTC(),
		Input:     JobInput{CallbackURL: callbackURL, CallbackSecret: "s3cret"},
		Result: &models.SearchResult{
			ID:         "search-1",
			Status:     models.StatusStoppedNoImprovement,
			Best:       &best,
			History:    []models.Observation{best},
			Iterations: 12,
		},
	}
}

func fastNotifier() *Notifier {
	return NewNotifier().WithBackoff(utils.ConstantBackoff{Delay: time.Millisecond})
}

func TestNotifierSendsPayload(t *testing.T) {
	var got NotificationPayload
	var secret, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get(SecretHeader)
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := fastNotifier().Send(context.Background(), finishedJob(srv.URL+"/hooks/{search_id}")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if secret != "s3cret" {
		t.Fatalf("expected secret header, got %q", secret)
	}
	if path != "/hooks/search-1" {
		t.Fatalf("expected templated path, got %q", path)
	}
	if got.SearchID != "search-1" || got.Status != JobCompleted || got.SearchStatus != models.StatusStoppedNoImprovement {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Best == nil || got.Best.Mean != 0.8659 || got.Iterations != 12 || got.Observations != 1 {
		t.Fatalf("unexpected result fields: %+v", got)
	}
}

func TestNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := fastNotifier().Send(context.Background(), finishedJob(srv.URL)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNotifierGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := fastNotifier().Send(context.Background(), finishedJob(srv.URL)); err == nil {
		t.Fatal("expected error after retries")
	}
	if calls.Load() != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls.Load())
	}
}

func TestNotifyAsync(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := fastNotifier()
	n.Notify(finishedJob(srv.URL))
	n.Notify(finishedJob(""))
	n.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one callback, got %d", calls.Load())
	}
}

func TestExecutorNotifiesOnCompletion(t *testing.T) {
	received := make(chan NotificationPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p NotificationPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
	}))
	defer srv.Close()

	n := fastNotifier()
	jobs, exec, _ := newTestExecutor(t, evaluator.Func(bowl), WithNotifier(n))

	if _, err := jobs.Create("search-1", JobInput{SearchYAML: testSearchYAML, CallbackURL: srv.URL}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("search-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec.Wait()
	n.Wait()

	select {
	case p := <-received:
		if p.Status != JobCompleted || p.Best == nil {
			t.Fatalf("unexpected payload: %+v", p)
		}
	default:
		t.Fatal("expected a completion callback")
	}
}
