package mavlink

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

const (
	testTimeout = 50 * time.Millisecond
	waitFor     = 2 * time.Second
	pollEvery   = 5 * time.Millisecond
)

func newTestListener(src Source, cache *telemetry.Cache, onState func(ListenerState, error)) *Listener {
	return NewListener(ListenerConfig{
		Open:           opener(src, nil),
		Cache:          cache,
		ReceiveTimeout: testTimeout,
		OnStateChange:  onState,
	})
}

func TestListener_CachesLatestPerType(t *testing.T) {
	src := newFakeSource()
	cache := telemetry.NewCache()
	l := newTestListener(src, cache, nil)

	require.NoError(t, l.Start("127.0.0.1", 14550))
	defer l.Stop()

	src.push(rec("HEARTBEAT", "custom_mode", 1))
	src.push(rec("ATTITUDE", "roll", 2))
	src.push(rec("HEARTBEAT", "custom_mode", 3))

	require.Eventually(t, func() bool { return l.Status().Received == 3 }, waitFor, pollEvery)

	assert.Equal(t, 2, cache.Len())
	hb, ok := cache.Get("HEARTBEAT")
	require.True(t, ok)
	v, _ := hb.Latest.Get("custom_mode")
	n, _ := v.AsInt()
	assert.Equal(t, int64(3), n)
	assert.Equal(t, uint64(2), hb.Count)
}

func TestListener_DiscardsUnknownCategory(t *testing.T) {
	src := newFakeSource()
	cache := telemetry.NewCache()
	l := newTestListener(src, cache, nil)

	require.NoError(t, l.Start("127.0.0.1", 14550))
	defer l.Stop()

	src.push(rec("UNKNOWN_4242"))
	src.push(rec("HEARTBEAT", "custom_mode", 1))

	require.Eventually(t, func() bool { return l.Status().Received == 1 }, waitFor, pollEvery)

	assert.Equal(t, uint64(1), l.Status().Discarded)
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("UNKNOWN_4242")
	assert.False(t, ok)
	assert.Equal(t, StateListening, l.State())
}

func TestListener_StoresPrintableForm(t *testing.T) {
	src := newFakeSource()
	cache := telemetry.NewCache()
	l := newTestListener(src, cache, nil)

	require.NoError(t, l.Start("127.0.0.1", 14550))
	defer l.Stop()

	src.push(rec("BLOB", "data", []byte{0xde, 0xad}))

	require.Eventually(t, func() bool { return cache.Len() == 1 }, waitFor, pollEvery)

	entry, _ := cache.Get("BLOB")
	v, ok := entry.Latest.Get("data")
	require.True(t, ok)
	s, isString := v.AsString()
	require.True(t, isString)
	assert.Equal(t, "dead", s)
}

func TestListener_FailStopOnDecodeError(t *testing.T) {
	src := newFakeSource()
	cache := telemetry.NewCache()

	var mu sync.Mutex
	var states []ListenerState
	var lastErr error
	l := newTestListener(src, cache, func(s ListenerState, err error) {
		mu.Lock()
		states = append(states, s)
		if err != nil {
			lastErr = err
		}
		mu.Unlock()
	})

	require.NoError(t, l.Start("127.0.0.1", 14550))
	src.push(rec("HEARTBEAT", "custom_mode", 1))
	src.fail(ErrDecodeFailed)

	require.Eventually(t, func() bool { return l.State() == StateIdle }, waitFor, pollEvery)

	st := l.Status()
	assert.Contains(t, st.LastError, "decode failed")
	assert.ErrorIs(t, l.LastError(), ErrDecodeFailed)
	assert.True(t, src.closed.Load(), "source should be closed after fail-stop")
	assert.Equal(t, 1, cache.Len(), "records before the failure stay cached")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ListenerState{StateListening, StateIdle}, states)
	assert.True(t, errors.Is(lastErr, ErrDecodeFailed))
}

func TestListener_TimeoutIsNotFailure(t *testing.T) {
	src := newFakeSource()
	l := newTestListener(src, telemetry.NewCache(), nil)

	require.NoError(t, l.Start("127.0.0.1", 14550))
	defer l.Stop()

	time.Sleep(3 * testTimeout)
	assert.Equal(t, StateListening, l.State())
	assert.Empty(t, l.Status().LastError)
}

func TestListener_StopWithinOneTimeout(t *testing.T) {
	src := newFakeSource()
	src.ignoreCtx = true
	l := newTestListener(src, telemetry.NewCache(), nil)

	require.NoError(t, l.Start("127.0.0.1", 14550))

	start := time.Now()
	l.Stop()
	elapsed := time.Since(start)

	assert.Equal(t, StateIdle, l.State())
	assert.Less(t, elapsed, 4*testTimeout)
	assert.True(t, src.closed.Load())
}

func TestListener_StartWhileListeningIsNoop(t *testing.T) {
	src := newFakeSource()
	var calls atomic.Int32
	l := NewListener(ListenerConfig{
		Open:           opener(src, &calls),
		Cache:          telemetry.NewCache(),
		ReceiveTimeout: testTimeout,
	})

	require.NoError(t, l.Start("127.0.0.1", 14550))
	defer l.Stop()
	require.NoError(t, l.Start("127.0.0.1", 14551))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 14550, l.Status().Port)
}

func TestListener_OpenFailureStaysIdle(t *testing.T) {
	bindErr := errors.New("address in use")
	l := NewListener(ListenerConfig{
		Open: func(string, int) (Source, error) {
			return nil, bindErr
		},
		Cache: telemetry.NewCache(),
	})

	err := l.Start("127.0.0.1", 14550)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListenFailed)
	assert.ErrorIs(t, err, bindErr)
	assert.Equal(t, StateIdle, l.State())
	assert.Equal(t, "address in use", l.Status().LastError)
	assert.ErrorIs(t, l.LastError(), bindErr)
}

func TestListener_RestartAfterStop(t *testing.T) {
	var calls atomic.Int32
	l := NewListener(ListenerConfig{
		Open: func(string, int) (Source, error) {
			calls.Add(1)
			return newFakeSource(), nil
		},
		Cache:          telemetry.NewCache(),
		ReceiveTimeout: testTimeout,
	})

	require.NoError(t, l.Start("127.0.0.1", 14550))
	l.Stop()
	require.NoError(t, l.Start("127.0.0.1", 14550))
	defer l.Stop()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateListening, l.State())
	assert.NoError(t, l.LastError())
}

func TestListener_StopWhenIdle(t *testing.T) {
	l := NewListener(ListenerConfig{Cache: telemetry.NewCache()})
	l.Stop()
	assert.Equal(t, StateIdle, l.State())
}
