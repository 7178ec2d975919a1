package actuator

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/observability"
)

// DefaultApplyTimeout bounds a single sink call.
const DefaultApplyTimeout = 5 * time.Second

// SinkStatus is the last known state of one sink.
type SinkStatus struct {
	Name          string     `json:"name"`
	Connected     bool       `json:"connected"`
	LastAppliedAt *time.Time `json:"lastAppliedAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// Fanout applies settings to every sink concurrently. Sink failures are logged and
// counted; they never reach the caller.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	clock   clock.Clock
	logger  *zap.Logger

	mu     sync.Mutex
	status map[string]SinkStatus
}

// NewFanout builds a Fanout over sinks.
func NewFanout(sinks []Sink, timeout time.Duration, clk clock.Clock, logger *zap.Logger) *Fanout {
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	status := make(map[string]SinkStatus, len(sinks))
	for _, s := range sinks {
		status[s.Name()] = SinkStatus{Name: s.Name()}
	}
	return &Fanout{sinks: sinks, timeout: timeout, clock: clk, logger: logger, status: status}
}

// Dispatch applies settings to all sinks and returns once each has finished or timed out.
func (f *Fanout) Dispatch(ctx context.Context, settings domain.ActuationSettings) {
	var wg sync.WaitGroup
	for _, sink := range f.sinks {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()
			f.apply(ctx, sink, settings)
		}(sink)
	}
	wg.Wait()
}

func (f *Fanout) apply(ctx context.Context, sink Sink, settings domain.ActuationSettings) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err := sink.Apply(ctx, settings)

	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status[sink.Name()]
	st.Name = sink.Name()
	if err != nil {
		st.LastError = err.Error()
		observability.RecordSinkError(sink.Name())
		f.logger.Warn("actuator sink failed", zap.String("sink", sink.Name()), zap.Error(err))
	} else {
		now := f.clock.Now()
		st.LastAppliedAt = &now
		st.LastError = ""
	}
	f.status[sink.Name()] = st
}

// Status reports every sink, sorted by name.
func (f *Fanout) Status() []SinkStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]SinkStatus, 0, len(f.sinks))
	for _, sink := range f.sinks {
		st := f.status[sink.Name()]
		if c, ok := sink.(connectivity); ok {
			st.Connected = c.Connected()
		} else {
			st.Connected = st.LastError == ""
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close releases every sink that holds resources.
func (f *Fanout) Close() error {
	var errs []error
	for _, sink := range f.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
