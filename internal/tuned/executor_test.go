package tuned

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/internal/store"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

func TestExecutorRunsJobToCompletion(t *testing.T) {
	results := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	metrics, err := progress.NewMetricsSink(reg)
	if err != nil {
		t.Fatalf("NewMetricsSink: %v", err)
	}
	jobs, exec, fakes := newTestExecutor(t, evaluator.Func(bowl), WithResultStore(results), WithMetrics(metrics))

	if _, err := jobs.Create("search-1", JobInput{SearchYAML: testSearchYAML}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	started, err := exec.Start("search-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != JobRunning {
		t.Fatalf("expected running, got %s", started.Status)
	}
	exec.Wait()

	job, _ := jobs.Get("search-1")
	if job.Status != JobCompleted || job.Result == nil {
		t.Fatalf("expected completed job with result, got %+v", job)
	}
	if job.Result.Status != models.StatusStoppedBudget || job.Result.Iterations != 4 {
		t.Fatalf("unexpected result: %s after %d iterations", job.Result.Status, job.Result.Iterations)
	}
	if fakes.released.Load() != 1 {
		t.Fatalf("expected evaluator to be released once, got %d", fakes.released.Load())
	}

	collector, _ := jobs.Progress("search-1")
	if collector.Len() != 3+4 {
		t.Fatalf("expected 7 progress records, got %d", collector.Len())
	}

	saved, err := results.Load(context.Background(), "search-1")
	if err != nil {
		t.Fatalf("expected result to be saved: %v", err)
	}
	if len(saved.History) != len(job.Result.History) {
		t.Fatalf("saved history mismatch: %d vs %d", len(saved.History), len(job.Result.History))
	}

	n, err := testutil.GatherAndCount(reg, progress.MetricIterations)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n == 0 {
		t.Fatal("expected iteration metrics to be recorded")
	}
}

func TestExecutorStopReturnsPartialResult(t *testing.T) {
	g := newGate(5)
	jobs, exec, _ := newTestExecutor(t, g)

	if _, err := jobs.Create("search-1", JobInput{SearchYAML: testSearchYAML}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("search-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-g.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("search never reached the gated evaluation")
	}
	if _, err := exec.Stop("search-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(g.release)
	exec.Wait()

	job, _ := jobs.Get("search-1")
	if job.Status != JobStopped {
		t.Fatalf("expected stopped, got %s", job.Status)
	}
	r := job.Result
	if r == nil || r.Status != models.StatusStoppedInterrupted {
		t.Fatalf("expected interrupted partial result, got %+v", r)
	}
	// 3 initial, 2 free iterations, and the one in flight when stopped
	if len(r.History) != 6 || r.Best == nil {
		t.Fatalf("expected 6 observations with a best, got %d", len(r.History))
	}
}

func TestExecutorStartErrors(t *testing.T) {
	jobs, exec, _ := newTestExecutor(t, evaluator.Func(bowl))

	if _, err := exec.Start("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	if _, err := jobs.Create("bad-yaml", JobInput{SearchYAML: "direction: sideways"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("bad-yaml"); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
	job, _ := jobs.Get("bad-yaml")
	if job.Status != JobFailed || job.Error == "" {
		t.Fatalf("expected failed job with error, got %+v", job)
	}
	if _, err := exec.Start("bad-yaml"); !errors.Is(err, ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal on restart, got %v", err)
	}

	noEval := strings.Replace(testSearchYAML, "evaluator:\n  type: http\n  url: http://evaluator.invalid/v1/evaluate\n", "", 1)
	if _, err := jobs.Create("no-eval", JobInput{SearchYAML: noEval}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("no-eval"); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob without an evaluator, got %v", err)
	}

	resume := strings.Replace(testSearchYAML, "  size: 3", "  resume: earlier", 1)
	if _, err := jobs.Create("resume-no-store", JobInput{SearchYAML: resume}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("resume-no-store"); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob when resuming without a store, got %v", err)
	}
}

func TestExecutorEvaluatorURLOverride(t *testing.T) {
	jobs, exec, fakes := newTestExecutor(t, evaluator.Func(bowl))
	if _, err := jobs.Create("search-1", JobInput{SearchYAML: testSearchYAML, EvaluatorURL: "http://override/v1/evaluate"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("search-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec.Wait()
	if got := fakes.lastURL.Load(); got != "http://override/v1/evaluate" {
		t.Fatalf("expected overridden URL, got %v", got)
	}
}

func TestExecutorResumesFromStoredResult(t *testing.T) {
	results := store.NewMemoryStore()
	jobs, exec, _ := newTestExecutor(t, evaluator.Func(bowl), WithResultStore(results))

	if _, err := jobs.Create("first", JobInput{SearchYAML: testSearchYAML}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("first"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec.Wait()
	first, _ := jobs.Get("first")

	resume := strings.Replace(testSearchYAML, "  size: 3", "  resume: first", 1)
	if _, err := jobs.Create("second", JobInput{SearchYAML: resume}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("second"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec.Wait()

	second, _ := jobs.Get("second")
	if second.Status != JobCompleted {
		t.Fatalf("expected completed, got %s (%s)", second.Status, second.Error)
	}
	want := len(first.Result.History) + 4
	if len(second.Result.History) != want {
		t.Fatalf("expected %d observations after resuming, got %d", want, len(second.Result.History))
	}
	if second.Result.Best.Mean < first.Result.Best.Mean {
		t.Fatal("resumed search lost the prior best")
	}
}

func TestExecutorStopPendingAndShutdown(t *testing.T) {
	g := newGate(0)
	jobs, exec, _ := newTestExecutor(t, g)

	if _, err := jobs.Create("pending", JobInput{SearchYAML: testSearchYAML}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	job, err := exec.Stop("pending")
	if err != nil || job.Status != JobStopped {
		t.Fatalf("expected pending job to stop at once, got %s (%v)", job.Status, err)
	}
	if _, err := exec.Stop("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	if _, err := jobs.Create("running", JobInput{SearchYAML: testSearchYAML}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("running"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-g.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := exec.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected shutdown to wait for the evaluation in flight, got %v", err)
	}
	close(g.release)
	if err := exec.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// the gated initial evaluation finished, but the initial design was interrupted
	job = waitForStatus(t, jobs, "running", JobStopped)
	if job.Result == nil || job.Result.Status != models.StatusStoppedInterrupted {
		t.Fatalf("expected interrupted result, got %+v", job.Result)
	}
}

func TestExecutorForgetsMetricsOfFinishedJobs(t *testing.T) {
	tests := []struct {
		name      string
		retention time.Duration
	}{
		{"immediately", 0},
		{"after retention", 20 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			metrics, err := progress.NewMetricsSink(reg)
			if err != nil {
				t.Fatalf("NewMetricsSink: %v", err)
			}
			jobs, exec, _ := newTestExecutor(t, evaluator.Func(bowl), WithMetrics(metrics), WithMetricsRetention(tt.retention))
			if _, err := jobs.Create("search-1", JobInput{SearchYAML: testSearchYAML}); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := exec.Start("search-1"); err != nil {
				t.Fatalf("Start: %v", err)
			}
			exec.Wait()

			deadline := time.Now().Add(5 * time.Second)
			for {
				n, err := testutil.GatherAndCount(reg, progress.MetricIterations, progress.MetricBest)
				if err != nil {
					t.Fatalf("GatherAndCount: %v", err)
				}
				if n == 0 {
					return
				}
				if time.Now().After(deadline) {
					t.Fatalf("expected series of the finished job to be dropped, %d remain", n)
				}
				time.Sleep(10 * time.Millisecond)
			}
		})
	}
}

func TestExecutorStopRightAfterStartIsNeverLost(t *testing.T) {
	const n = 20
	g := newGate(0)
	jobs, exec, _ := newTestExecutor(t, g)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := "search-" + strconv.Itoa(i)
		if _, err := jobs.Create(id, JobInput{SearchYAML: testSearchYAML}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := exec.Start(id); err != nil {
				t.Errorf("Start %s: %v", id, err)
			}
		}()
		// stop as soon as the running status is visible, possibly before Start returns
		go func() {
			defer wg.Done()
			for {
				job, _ := jobs.Get(id)
				if job.Status == JobRunning || job.Status.Terminal() {
					break
				}
				runtime.Gosched()
			}
			if _, err := exec.Stop(id); err != nil {
				t.Errorf("Stop %s: %v", id, err)
			}
		}()
	}
	wg.Wait()
	close(g.release)
	exec.Wait()

	for i := 0; i < n; i++ {
		job, _ := jobs.Get("search-" + strconv.Itoa(i))
		if job.Status != JobStopped {
			t.Fatalf("job %d: expected %s, got %s", i, JobStopped, job.Status)
		}
	}
}

func TestExecutorLogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	jobs, exec, _ := newTestExecutor(t, evaluator.Func(bowl), WithLogger(logger.NewText("info", &buf)))

	if _, err := jobs.Create("search-1", JobInput{SearchYAML: testSearchYAML}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("search-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	exec.Wait()

	out := buf.String()
	for _, want := range []string{"search job started", "search job finished", "search_id=search-1", "seed=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in executor log:\n%s", want, out)
		}
	}
}
