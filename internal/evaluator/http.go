package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// EvaluateRequest is the JSON body posted to a remote evaluator
type EvaluateRequest struct {
	Configuration params.Configuration `json:"configuration"`
}

// EvaluateResponse is the JSON body a remote evaluator answers with. Mean is
// required on success.
type EvaluateResponse struct {
	Mean   *float64 `json:"mean,omitempty"`
	StdErr float64  `json:"std_err"`
	Error  string   `json:"error,omitempty"`
}

// HTTP posts configurations to a remote evaluator endpoint
type HTTP struct {
	url       string
	client    *http.Client
	retries   int
	backoff   utils.BackoffStrategy
	limiter   *rate.Limiter
	headers   map[string]string
	userAgent string
}

// HTTPOption customizes an HTTP evaluator
type HTTPOption func(*HTTP)

// WithTimeout bounds each request. Zero means no client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) { h.client.Timeout = d }
}

// WithRetries sets how many times a failed request is retried
func WithRetries(n int) HTTPOption {
	return func(h *HTTP) { h.retries = n }
}

// WithBackoff replaces the retry backoff
func WithBackoff(b utils.BackoffStrategy) HTTPOption {
	return func(h *HTTP) { h.backoff = b }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) HTTPOption {
	return func(h *HTTP) {
		if perSec > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithHeaders adds headers to every request
func WithHeaders(headers map[string]string) HTTPOption {
	return func(h *HTTP) {
		for k, v := range headers {
			h.headers[k] = v
		}
	}
}

// WithHTTPClient swaps the underlying client, keeping any timeout already set on it
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// NewHTTP creates an evaluator that posts to url
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:       url,
		client:    &http.Client{},
		backoff:   utils.NewExponentialBackoff(500*time.Millisecond, 30*time.Second, 2, true),
		headers:   map[string]string{},
		userAgent: "tune-core/1.0",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	body, err := json.Marshal(EvaluateRequest{Configuration: cfg})
	if err != nil {
		return models.Estimate{}, fmt.Errorf("failed to marshal evaluate request: %w", err)
	}

	var est models.Estimate
	attempt := 0
	err = utils.Retry(ctx, h.retries+1, h.backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			logger.Debug("retrying evaluation", "url", h.url, "attempt", attempt)
		}
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return utils.Permanent(err)
			}
		}
		e, err := h.post(ctx, body)
		if err != nil {
			return err
		}
		est = e
		return nil
	})
	if err != nil {
		return models.Estimate{}, fmt.Errorf("evaluate %s: %w", cfg.Key(), err)
	}
	return est, nil
}

func (h *HTTP) post(ctx context.Context, body []byte) (models.Estimate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return models.Estimate{}, utils.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return models.Estimate{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Estimate{}, fmt.Errorf("failed to read response: %w", err)
	}

	var out EvaluateResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(string(data), 200)
		}
		err := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, msg)
		// client errors will not succeed on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return models.Estimate{}, utils.Permanent(err)
		}
		return models.Estimate{}, err
	}
	if decodeErr != nil {
		return models.Estimate{}, utils.Permanent(fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if out.Error != "" {
		return models.Estimate{}, utils.Permanent(fmt.Errorf("evaluator error: %s", out.Error))
	}
	if out.Mean == nil {
		return models.Estimate{}, utils.Permanent(fmt.Errorf("%w: response has no mean", ErrInvalidEstimate))
	}
	est := models.Estimate{Mean: *out.Mean, StdErr: out.StdErr}
	if err := Validate(est); err != nil {
		return models.Estimate{}, utils.Permanent(err)
	}
	return est, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Handler serves an Evaluator over HTTP with the same JSON contract the HTTP
// client speaks
func Handler(ev Evaluator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, EvaluateResponse{Error: "method not allowed"})
			return
		}
		var req EvaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, EvaluateResponse{Error: "invalid json: " + err.Error()})
			return
		}
		est, err := ev.Evaluate(r.Context(), req.Configuration)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, EvaluateResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, EvaluateResponse{Mean: &est.Mean, StdErr: est.StdErr})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
