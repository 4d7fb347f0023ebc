package mavlink

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// ============================================================================
// Fake Source
// ============================================================================

type sourceResult struct {
	rec telemetry.Record
	err error
}

// fakeSource replays queued results. When the queue is empty it behaves
// like an idle transport and times out.
type fakeSource struct {
	results   chan sourceResult
	closed    atomic.Bool
	ignoreCtx bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{results: make(chan sourceResult, 64)}
}

func (s *fakeSource) push(rec telemetry.Record) {
	s.results <- sourceResult{rec: rec}
}

func (s *fakeSource) fail(err error) {
	s.results <- sourceResult{err: err}
}

func (s *fakeSource) Next(ctx context.Context, timeout time.Duration) (telemetry.Record, error) {
	if s.ignoreCtx {
		select {
		case r := <-s.results:
			return r.rec, r.err
		case <-time.After(timeout):
			return telemetry.Record{}, ErrReceiveTimeout
		}
	}

	select {
	case <-ctx.Done():
		return telemetry.Record{}, ctx.Err()
	case r := <-s.results:
		return r.rec, r.err
	case <-time.After(timeout):
		return telemetry.Record{}, ErrReceiveTimeout
	}
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// opener returns a SourceOpener handing out src and counting calls.
func opener(src Source, calls *atomic.Int32) SourceOpener {
	return func(string, int) (Source, error) {
		if calls != nil {
			calls.Add(1)
		}
		return src, nil
	}
}

// ============================================================================
// Fake Broker
// ============================================================================

type publishCall struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// fakeBroker records publishes. failOn lets a test fail selected payloads.
type fakeBroker struct {
	mu        sync.Mutex
	calls     []publishCall
	connected bool
	closed    bool
	failOn    func(payload string) error
	panicOn   string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	failOn, panicOn := b.failOn, b.panicOn
	b.mu.Unlock()

	if panicOn != "" && strings.Contains(string(payload), panicOn) {
		panic("broker exploded")
	}
	if failOn != nil {
		if err := failOn(string(payload)); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.calls = append(b.calls, publishCall{Topic: topic, Payload: string(payload), QoS: qos, Retained: retained})
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && !b.closed
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *fakeBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBroker) published() []publishCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// ============================================================================
// Fake EventSink
// ============================================================================

type sinkEvent struct {
	Channel string
	Payload any
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *fakeSink) Broadcast(channel string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, sinkEvent{Channel: channel, Payload: payload})
	s.mu.Unlock()
}

func (s *fakeSink) byChannel(channel string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, e := range s.events {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Fake Metrics
// ============================================================================

// fakeMetrics records the cache gauge; the other hooks are no-ops.
type fakeMetrics struct {
	noopMetrics
	cacheEntries atomic.Int64
	cacheSets    atomic.Int64
}

func (m *fakeMetrics) SetCacheEntries(n int) {
	m.cacheEntries.Store(int64(n))
	m.cacheSets.Add(1)
}

// ============================================================================
// Helpers
// ============================================================================

var errBrokerDown = errors.New("broker down")

// rec builds a record with integer fields in the given order.
func rec(msgType string, kv ...any) telemetry.Record {
	fields := make([]telemetry.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		name := kv[i].(string)
		var v telemetry.Value
		switch x := kv[i+1].(type) {
		case int:
			v = telemetry.Int(int64(x))
		case string:
			v = telemetry.String(x)
		case []byte:
			v = telemetry.Bytes(x)
		case float64:
			v = telemetry.Float(x)
		}
		fields = append(fields, telemetry.Field{Name: name, Value: v})
	}
	return telemetry.NewRecord(msgType, fields...)
}
