package mavlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// DefaultReceiveTimeout bounds each blocking receive, and therefore how long
// Stop waits for the receive loop to notice.
const DefaultReceiveTimeout = time.Second

// ListenerState is the lifecycle state of the Listener.
type ListenerState string

// Listener states.
const (
	StateIdle      ListenerState = "idle"
	StateListening ListenerState = "listening"
)

// Upserter stores decoded records. Implemented by *telemetry.Cache.
type Upserter interface {
	Upsert(rec telemetry.Record) error
}

// ListenerConfig holds configuration for a Listener.
type ListenerConfig struct {
	// Open creates the transport source. Default: OpenUDPSource.
	Open SourceOpener

	// Cache receives every known record.
	Cache Upserter

	// ReceiveTimeout bounds each receive. Default: DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	// Metrics receives listener counters. Optional.
	Metrics MetricsRecorder

	// OnStateChange is called after every transition, outside any lock.
	// err is non-nil when the session ended on a receive failure.
	OnStateChange func(state ListenerState, err error)
}

// ListenerStatus is a point-in-time view of the Listener.
type ListenerStatus struct {
	State     ListenerState `json:"state"`
	Address   string        `json:"address"`
	Port      int           `json:"port"`
	LastError string        `json:"last_error,omitempty"`
	Received  uint64        `json:"records_received"`
	Discarded uint64        `json:"records_discarded"`
}

// Listener receives records from a Source on a background goroutine and
// writes the latest value per type into the cache.
//
// At most one receive session runs at a time. A receive failure other than
// a timeout ends the session and the Listener returns to idle; it does not
// retry on its own.
type Listener struct {
	open          SourceOpener
	cache         Upserter
	timeout       time.Duration
	metrics       MetricsRecorder
	onStateChange func(ListenerState, error)

	mu      sync.Mutex
	state   ListenerState
	address string
	port    int
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}

	received  atomic.Uint64
	discarded atomic.Uint64

	logSink
}

// NewListener creates an idle Listener.
func NewListener(cfg ListenerConfig) *Listener {
	l := &Listener{
		open:          cfg.Open,
		cache:         cfg.Cache,
		timeout:       cfg.ReceiveTimeout,
		metrics:       cfg.Metrics,
		onStateChange: cfg.OnStateChange,
		state:         StateIdle,
	}
	if l.open == nil {
		l.open = OpenUDPSource
	}
	if l.timeout <= 0 {
		l.timeout = DefaultReceiveTimeout
	}
	if l.metrics == nil {
		l.metrics = noopMetrics{}
	}
	return l
}

// Start opens the transport on address:port and begins receiving.
//
// Calling Start while a session is running is a no-op. If the endpoint
// cannot be opened the Listener stays idle and the error wraps
// ErrListenFailed.
func (l *Listener) Start(address string, port int) error {
	started, err := l.start(address, port)
	if err != nil {
		l.logError("listener start failed", err, "address", address, "port", port)
		return err
	}
	if !started {
		return nil
	}

	l.metrics.SetListening(true)
	l.logInfo("listener started", "address", address, "port", port)
	l.notify(StateListening, nil)
	return nil
}

func (l *Listener) start(address string, port int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateListening {
		return false, nil
	}

	src, err := l.open(address, port)
	if err != nil {
		l.lastErr = err
		return false, fmt.Errorf("%w: %w", ErrListenFailed, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.state = StateListening
	l.address = address
	l.port = port
	l.lastErr = nil
	l.cancel = cancel
	l.done = done

	go l.run(ctx, src, done)
	return true, nil
}

// Stop ends the current session and waits for the receive loop to exit,
// which takes at most one receive timeout. Stop on an idle Listener is a
// no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastError returns the error that ended the previous session, or the
// failure of the last Start. It is cleared when a session starts.
func (l *Listener) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Status returns a snapshot of state, endpoint and counters.
func (l *Listener) Status() ListenerStatus {
	l.mu.Lock()
	st := ListenerStatus{
		State:   l.state,
		Address: l.address,
		Port:    l.port,
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	l.mu.Unlock()

	st.Received = l.received.Load()
	st.Discarded = l.discarded.Load()
	return st
}

// run is the receive loop. It owns src and closes it on exit.
func (l *Listener) run(ctx context.Context, src Source, done chan struct{}) {
	var runErr error

	defer func() {
		if err := src.Close(); err != nil {
			l.logWarn("closing source", "error", err)
		}

		l.mu.Lock()
		l.state = StateIdle
		l.lastErr = runErr
		l.cancel = nil
		l.done = nil
		l.mu.Unlock()

		l.metrics.SetListening(false)
		if runErr != nil {
			l.logError("listener stopped on receive failure", runErr)
		} else {
			l.logInfo("listener stopped")
		}
		l.notify(StateIdle, runErr)
		close(done)
	}()

	for ctx.Err() == nil {
		rec, err := src.Next(ctx, l.timeout)
		switch {
		case err == nil:
			l.handle(rec)
		case errors.Is(err, ErrReceiveTimeout):
			// Nothing arrived; loop to re-check the stop signal.
		case ctx.Err() != nil:
			return
		default:
			l.metrics.RecordListenerError()
			runErr = err
			return
		}
	}
}

// handle discards the unknown category and caches everything else in its
// printable form.
func (l *Listener) handle(rec telemetry.Record) {
	if rec.IsUnknown() {
		l.discarded.Add(1)
		l.metrics.RecordDiscarded()
		l.logDebug("discarded unknown record", "type", rec.Type)
		return
	}

	if err := l.cache.Upsert(rec.Printable()); err != nil {
		l.logWarn("cache upsert failed", "type", rec.Type, "error", err)
		return
	}
	l.received.Add(1)
	l.metrics.RecordReceived(rec.Type)
}

func (l *Listener) notify(state ListenerState, err error) {
	if l.onStateChange != nil {
		l.onStateChange(state, err)
	}
}
