package tuned

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

type HTTPServer struct {
	mux      *http.ServeMux
	jobs     *JobStore
	Executor *Executor
}

// NewHTTPServer wires the API. A nil gatherer leaves /metrics unregistered.
func NewHTTPServer(jobs *JobStore, executor *Executor, gatherer prometheus.Gatherer) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		jobs:     jobs,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/searches", s.handleSearches)
	s.mux.HandleFunc("/v1/searches/", s.handleSearchByID)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSearches handles /v1/searches
func (s *HTTPServer) handleSearches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSearch(w, r)
	case http.MethodGet:
		s.handleListSearches(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSearchByID handles /v1/searches/{id}, {id}:stop, {id}/progress and {id}/progress/stream
func (s *HTTPServer) handleSearchByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/searches/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "search ID is required")
		return
	}

	route := func(suffix, method string, h func(http.ResponseWriter, *http.Request, string)) bool {
		if !strings.HasSuffix(path, suffix) {
			return false
		}
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return true
		}
		h(w, r, strings.TrimSuffix(path, suffix))
		return true
	}

	switch {
	case route(":stop", http.MethodPost, s.handleStopSearch):
	case route("/progress/stream", http.MethodGet, s.handleProgressStream):
	case route("/progress", http.MethodGet, s.handleProgress):
	case route("", http.MethodGet, s.handleGetSearch):
	}
}

type createSearchRequest struct {
	SearchID       string `json:"search_id,omitempty"`
	SearchYAML     string `json:"search_yaml"`
	EvaluatorURL   string `json:"evaluator_url,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackSecret string `json:"callback_secret,omitempty"`
}

// handleCreateSearch handles POST /v1/searches. The job starts right away.
func (s *HTTPServer) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.SearchYAML) == "" {
		s.writeError(w, http.StatusBadRequest, "search_yaml is required")
		return
	}

	job, err := s.jobs.Create(req.SearchID, JobInput{
		SearchYAML:     req.SearchYAML,
		EvaluatorURL:   req.EvaluatorURL,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	started, err := s.Executor.Start(job.ID)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	logger.Info("search created (HTTP)", "search_id", job.ID)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"search": jobToJSON(started, false),
	})
}

// handleListSearches handles GET /v1/searches?limit=&offset=&status=
func (s *HTTPServer) handleListSearches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if parsed, err := strconv.Atoi(q.Get("limit")); err == nil && parsed > 0 {
		limit = min(parsed, 1000)
	}
	offset := 0
	if parsed, err := strconv.Atoi(q.Get("offset")); err == nil && parsed >= 0 {
		offset = parsed
	}

	jobs := s.jobs.List(limit, offset, JobStatus(strings.ToLower(q.Get("status"))))
	out := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobToJSON(job, false))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"searches": out,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(jobs),
		},
	})
}

// handleGetSearch handles GET /v1/searches/{id}
func (s *HTTPServer) handleGetSearch(w http.ResponseWriter, _ *http.Request, id string) {
	job, ok := s.jobs.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "search not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"search": jobToJSON(job, true),
	})
}

// handleStopSearch handles POST /v1/searches/{id}:stop
func (s *HTTPServer) handleStopSearch(w http.ResponseWriter, _ *http.Request, id string) {
	job, err := s.Executor.Stop(id)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	logger.Info("search stop requested (HTTP)", "search_id", id)
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"search": jobToJSON(job, false),
	})
}

// handleProgress handles GET /v1/searches/{id}/progress?offset=
func (s *HTTPServer) handleProgress(w http.ResponseWriter, r *http.Request, id string) {
	collector, ok := s.jobs.Progress(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "search not found")
		return
	}
	offset := 0
	if parsed, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && parsed >= 0 {
		offset = parsed
	}
	records := collector.Records(offset)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"search_id": id,
		"offset":    offset,
		"records":   records,
		"next":      offset + len(records),
	})
}

// handleProgressStream handles GET /v1/searches/{id}/progress/stream (SSE)
func (s *HTTPServer) handleProgressStream(w http.ResponseWriter, r *http.Request, id string) {
	job, ok := s.jobs.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "search not found")
		return
	}
	collector, _ := s.jobs.Progress(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	interval := 500 * time.Millisecond
	if ms, err := strconv.ParseInt(r.URL.Query().Get("interval_ms"), 10, 64); err == nil && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}

	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	previous := job.Status
	s.sendSSEEvent(w, "status_change", map[string]any{"status": job.Status})
	flush()

	sent := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		// records first so a finished job still delivers its tail
		for _, rec := range collector.Records(sent) {
			s.sendSSEEvent(w, "progress", rec)
			sent++
		}

		job, ok = s.jobs.Get(id)
		if !ok {
			s.sendSSEEvent(w, "error", map[string]any{"error": "search not found"})
			flush()
			return
		}
		if job.Status != previous {
			s.sendSSEEvent(w, "status_change", map[string]any{"status": job.Status})
			previous = job.Status
		}
		if job.Status.Terminal() {
			if tail := collector.Records(sent); len(tail) > 0 {
				for _, rec := range tail {
					s.sendSSEEvent(w, "progress", rec)
				}
			}
			s.sendSSEEvent(w, "complete", jobToJSON(job, false))
			flush()
			return
		}
		flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sendSSEEvent writes one event. Streams are best-effort so errors are only logged.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + eventType + "\ndata: " + string(payload) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobExists):
		return http.StatusConflict
	case errors.Is(err, ErrJobTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidJob):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

// jobToJSON renders a job. The full result (with history) is only included when asked.
func jobToJSON(job Job, withResult bool) map[string]any {
	out := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"created_at": job.CreatedAt.Format(time.RFC3339Nano),
	}
	if !job.StartedAt.IsZero() {
		out["started_at"] = job.StartedAt.Format(time.RFC3339Nano)
	}
	if !job.EndedAt.IsZero() {
		out["ended_at"] = job.EndedAt.Format(time.RFC3339Nano)
	}
	if job.Error != "" {
		out["error"] = job.Error
	}
	if r := job.Result; r != nil {
		out["search_status"] = r.Status
		out["iterations"] = r.Iterations
		if r.Best != nil {
			out["best"] = bestToJSON(r.Best)
		}
		if withResult {
			out["result"] = r
		}
	}
	return out
}

func bestToJSON(o *models.Observation) map[string]any {
	return map[string]any{
		"configuration": o.Config,
		"mean":          o.Mean,
		"std_err":       o.StdErr,
		"iteration":     o.Iteration,
	}
}
