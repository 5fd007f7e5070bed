//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/internal/search"
	"github.com/GoSim-25-26J-441/tune-core/internal/store"
	"github.com/GoSim-25-26J-441/tune-core/internal/tuned"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

const testSearchYAML = `
direction: maximize
strategy: bayesian
max_iterations: 5
seed: 7
initial:
  size: 4
bayes:
  pool_size: 200
evaluator:
  type: http
  url: http://placeholder.invalid/
  retries: 1
parameters:
  - name: x
    type: double
    range: [0, 1]
  - name: activation
    type: categorical
    levels: [relu, elu]
`

func objective(_ context.Context, cfg params.Configuration) (models.Estimate, error) {
	dx := cfg.Float("x") - 0.4
	mean := 0.9 - dx*dx
	if cfg.Level("activation") == "elu" {
		mean -= 0.05
	}
	return models.Estimate{Mean: mean, StdErr: 0.005}, nil
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("POST %s returned %d: %v", url, resp.StatusCode, out)
	}
	return out
}

func waitForSearch(t *testing.T, base, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/v1/searches/" + id)
		if err != nil {
			t.Fatalf("GET search: %v", err)
		}
		var body map[string]any
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		search := body["search"].(map[string]any)
		switch search["status"] {
		case "completed", "stopped", "failed":
			return search
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("search %s did not finish", id)
	return nil
}

func TestIntegration_DaemonSearchOverHTTP(t *testing.T) {
	evalSrv := httptest.NewServer(evaluator.Handler(evaluator.Func(objective)))
	defer evalSrv.Close()

	callbacks := make(chan tuned.NotificationPayload, 4)
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p tuned.NotificationPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		callbacks <- p
	}))
	defer hookSrv.Close()

	results, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	jobs := tuned.NewJobStore()
	notifier := tuned.NewNotifier().WithBackoff(utils.ConstantBackoff{Delay: 10 * time.Millisecond})
	exec := tuned.NewExecutor(jobs,
		tuned.WithResultStore(results),
		tuned.WithNotifier(notifier),
		tuned.WithLogger(logger.Discard()),
	)
	daemon := httptest.NewServer(tuned.NewHTTPServer(jobs, exec, nil).Handler())
	defer daemon.Close()

	postJSON(t, daemon.URL+"/v1/searches", map[string]any{
		"search_id":     "first",
		"search_yaml":   testSearchYAML,
		"evaluator_url": evalSrv.URL,
		"callback_url":  hookSrv.URL + "/done/{search_id}",
	})
	first := waitForSearch(t, daemon.URL, "first")
	if first["status"] != "completed" || first["search_status"] != string(models.StatusStoppedBudget) {
		t.Fatalf("unexpected first search: %v", first)
	}
	if hist := first["result"].(map[string]any)["history"].([]any); len(hist) != 9 {
		t.Fatalf("expected 9 observations, got %d", len(hist))
	}

	notifier.Wait()
	select {
	case p := <-callbacks:
		if p.SearchID != "first" || p.Best == nil {
			t.Fatalf("unexpected callback: %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected completion callback")
	}

	resumeYAML := strings.Replace(testSearchYAML, "  size: 4", "  resume: first", 1)
	postJSON(t, daemon.URL+"/v1/searches", map[string]any{
		"search_id":     "second",
		"search_yaml":   resumeYAML,
		"evaluator_url": evalSrv.URL,
	})
	second := waitForSearch(t, daemon.URL, "second")
	if second["status"] != "completed" {
		t.Fatalf("unexpected second search: %v", second)
	}
	if hist := second["result"].(map[string]any)["history"].([]any); len(hist) != 9+5 {
		t.Fatalf("expected prior history plus 5 iterations, got %d", len(hist))
	}
	if best := second["best"].(map[string]any)["mean"].(float64); best < first["best"].(map[string]any)["mean"].(float64) {
		t.Fatalf("resumed best %v is worse than the prior best", best)
	}

	ids, err := results.List(context.Background())
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected 2 stored results, got %v (%v)", ids, err)
	}
}

func TestIntegration_AnnealingOverGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	evaluator.RegisterEvaluatorService(srv, evaluator.Func(objective))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	ev, conn, err := evaluator.DialGRPC(lis.Addr().String(), 1)
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	defer conn.Close()

	space, err := params.NewSpace(
		params.Double("x", 0, 1),
		params.Categorical("activation", "relu", "elu"),
	)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	opts := search.DefaultOptions()
	opts.Strategy = search.StrategyAnnealing
	opts.MaxIterations = 20
	opts.NoImprove = 20
	opts.InitialSize = 3
	opts.Seed = 11
	opts.Logger = logger.Discard()

	s, err := search.New(space, ev, opts)
	if err != nil {
		t.Fatalf("search.New: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != models.StatusStoppedBudget || len(result.History) != 23 {
		t.Fatalf("unexpected result: %s with %d observations", result.Status, len(result.History))
	}
	if result.Failures != 0 {
		t.Fatalf("expected no failures over gRPC, got %d", result.Failures)
	}
}
