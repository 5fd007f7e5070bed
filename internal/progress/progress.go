// Package progress delivers the per-iteration progress records of a search
// to logging, metrics and in-process consumers. Sinks never influence the
// search; they are a side channel.
package progress

import (
	"log/slog"
	"sync"

	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

// Sink receives progress records in iteration order. Record must not block
// for long; the search calls it synchronously between iterations.
type Sink interface {
	Record(rec models.ProgressRecord)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(models.ProgressRecord)

func (f SinkFunc) Record(rec models.ProgressRecord) { f(rec) }

// Discard drops every record
var Discard Sink = SinkFunc(func(models.ProgressRecord) {})

// Multi fans records out to several sinks. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Record(rec models.ProgressRecord) {
	for _, s := range m {
		s.Record(rec)
	}
}

// LogSink writes one structured log line per record
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(rec models.ProgressRecord) {
	l := s.Logger
	if l == nil {
		l = logger.Default
	}
	args := []any{
		"iteration", rec.Iteration,
		"decision", rec.Decision,
		"configuration", rec.Config.Key(),
	}
	if rec.Decision == models.DecisionFailed {
		l.Warn("evaluation failed", append(args, "error", rec.Error)...)
		return
	}
	if rec.Decision == models.DecisionRestart {
		l.Info("restarting from best configuration", append(args, "best", rec.Best)...)
		return
	}
	args = append(args, "mean", rec.Mean, "std_err", rec.StdErr, "best", rec.Best)
	if rec.Degraded {
		args = append(args, "degraded", true)
	}
	l.Info("search progress", args...)
}

// ChannelSink forwards records to a channel without blocking. Records are
// dropped when the channel is full.
type ChannelSink struct {
	ch      chan<- models.ProgressRecord
	mu      sync.Mutex
	dropped int
}

// NewChannelSink creates a sink feeding ch
func NewChannelSink(ch chan<- models.ProgressRecord) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Record(rec models.ProgressRecord) {
	select {
	case s.ch <- rec:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns how many records did not fit in the channel
func (s *ChannelSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Collector keeps every record in memory
type Collector struct {
	mu      sync.RWMutex
	records []models.ProgressRecord
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Record(rec models.ProgressRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Records returns a copy of the records, optionally starting at offset
func (c *Collector) Records(offset int) []models.ProgressRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(c.records) {
		return []models.ProgressRecord{}
	}
	out := make([]models.ProgressRecord, len(c.records)-offset)
	copy(out, c.records[offset:])
	return out
}

// Len returns the number of records collected
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Decisions returns the decision of every record, in order
func (c *Collector) Decisions() []models.Decision {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Decision, len(c.records))
	for i, r := range c.records {
		out[i] = r.Decision
	}
	return out
}
