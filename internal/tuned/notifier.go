package tuned

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// SecretHeader carries the job's callback secret
const SecretHeader = "X-Tune-Callback-Secret"

// NotificationPayload is the JSON body posted to a job's callback URL
type NotificationPayload struct {
	SearchID     string              `json:"search_id"`
	Status       JobStatus           `json:"status"`
	SearchStatus models.SearchStatus `json:"search_status,omitempty"`
	Error        string              `json:"error,omitempty"`
	Best         *models.Observation `json:"best,omitempty"`
	Iterations   int                 `json:"iterations"`
	Observations int                 `json:"observations"`
	FailureStop  bool                `json:"failure_stop,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    time.Time           `json:"started_at,omitzero"`
	EndedAt      time.Time           `json:"ended_at,omitzero"`
	Timestamp    int64               `json:"timestamp"` // unix ms when sent
}

// Notifier posts job completion callbacks
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with three retries and exponential backoff from 1s
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 30*time.Second, 2, false),
	}
}

// WithBackoff replaces the retry backoff and returns the notifier
func (n *Notifier) WithBackoff(b utils.BackoffStrategy) *Notifier {
	n.backoff = b
	return n
}

// Notify posts the job's callback in the background. Jobs without a callback URL are ignored.
func (n *Notifier) Notify(job Job) {
	if job.Input.CallbackURL == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Send(context.Background(), job); err != nil {
			logger.Error("failed to send notification after retries",
				"callback_url", job.Input.CallbackURL,
				"search_id", job.ID,
				"status", job.Status,
				"max_retries", n.maxRetries,
				"error", err)
		}
	}()
}

// Wait blocks until background notifications are done
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Send posts synchronously, retrying transport errors and non-2xx answers
func (n *Notifier) Send(ctx context.Context, job Job) error {
	url := strings.ReplaceAll(job.Input.CallbackURL, "{search_id}", job.ID)
	body, err := json.Marshal(buildPayload(job))
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	attempt := 0
	err = utils.Retry(ctx, n.maxRetries+1, n.backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			logger.Debug("retrying notification", "callback_url", url, "search_id", job.ID, "attempt", attempt)
		}
		return n.post(ctx, url, job.Input.CallbackSecret, body)
	})
	if err != nil {
		return err
	}
	logger.Info("notification sent successfully", "search_id", job.ID, "status", job.Status)
	return nil
}

func (n *Notifier) post(ctx context.Context, url, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return utils.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tune-core/1.0")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := string(data)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	logger.Warn("notification returned non-2xx status", "callback_url", url, "status_code", resp.StatusCode, "response_body", msg)
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

func buildPayload(job Job) NotificationPayload {
	p := NotificationPayload{
		SearchID:  job.ID,
		Status:    job.Status,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		StartedAt: job.StartedAt,
		EndedAt:   job.EndedAt,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if r := job.Result; r != nil {
		p.SearchStatus = r.Status
		p.Best = r.Best
		p.Iterations = r.Iterations
		p.Observations = len(r.History)
		p.FailureStop = r.FailureStop
	}
	return p
}
