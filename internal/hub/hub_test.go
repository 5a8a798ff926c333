package hub

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) deliver(msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(msg))
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestBroadcast_FansOutToEverySubscriber(t *testing.T) {
	h := New(zerolog.Nop())

	recorders := make([]*recorder, 3)
	for i := range recorders {
		recorders[i] = &recorder{}
		h.Subscribe(recorders[i].deliver)
	}
	require.Equal(t, 3, h.Len())

	h.Broadcast([]byte("one"))
	h.Broadcast([]byte("two"))

	for _, r := range recorders {
		assert.Equal(t, []string{"one", "two"}, r.received())
	}
	assert.Equal(t, uint64(2), h.Broadcasts())
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	h := New(zerolog.Nop())
	assert.NotPanics(t, func() { h.Broadcast([]byte("nobody")) })
	assert.Equal(t, 0, h.Len())
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	h := New(zerolog.Nop())
	kept, removed := &recorder{}, &recorder{}
	h.Subscribe(kept.deliver)
	unsubscribe := h.Subscribe(removed.deliver)

	h.Broadcast([]byte("before"))
	unsubscribe()
	unsubscribe()
	h.Broadcast([]byte("after"))

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, []string{"before", "after"}, kept.received())
	assert.Equal(t, []string{"before"}, removed.received())
}

func TestBroadcast_SnapshotExcludesLateSubscribers(t *testing.T) {
	h := New(zerolog.Nop())
	late := &recorder{}

	var once sync.Once
	h.Subscribe(func(msg []byte) {
		once.Do(func() { h.Subscribe(late.deliver) })
	})

	h.Broadcast([]byte("first"))
	h.Broadcast([]byte("second"))

	assert.Equal(t, []string{"second"}, late.received())
}

func TestBroadcast_UnsubscribeDuringBroadcast(t *testing.T) {
	h := New(zerolog.Nop())
	victim := &recorder{}
	var unsubscribeVictim func()

	h.Subscribe(func(msg []byte) { unsubscribeVictim() })
	unsubscribeVictim = h.Subscribe(victim.deliver)

	// Depending on iteration order the victim may or may not see the first
	// message, but never anything after it has been removed.
	h.Broadcast([]byte("first"))
	h.Broadcast([]byte("second"))

	assert.NotContains(t, victim.received(), "second")
	assert.Equal(t, 1, h.Len())
}

func TestBroadcast_PanickingSubscriberIsIsolated(t *testing.T) {
	h := New(zerolog.Nop())
	healthy := &recorder{}

	h.Subscribe(func([]byte) { panic("broken stream") })
	h.Subscribe(healthy.deliver)

	assert.NotPanics(t, func() {
		h.Broadcast([]byte("a"))
		h.Broadcast([]byte("b"))
	})
	assert.Equal(t, []string{"a", "b"}, healthy.received())
	assert.Equal(t, 2, h.Len())
}

func TestStats(t *testing.T) {
	h := New(zerolog.Nop())
	unsubscribe := h.Subscribe(func([]byte) {},
		WithID("stream-1"),
		WithClientInfo(ClientInfo{RemoteAddr: "127.0.0.1:5000", UserAgent: "inspector/1.0"}),
	)
	h.Subscribe(func([]byte) {})
	h.Broadcast([]byte("x"))

	stats := h.Stats()
	assert.Equal(t, 2, stats.Subscribers)
	assert.Equal(t, uint64(1), stats.Broadcasts)
	require.Len(t, stats.Streams, 2)

	var found bool
	for _, s := range stats.Streams {
		assert.Equal(t, uint64(1), s.Delivered)
		assert.NotEmpty(t, s.ID)
		if s.ID == "stream-1" {
			found = true
			assert.Equal(t, "inspector/1.0", s.ClientInfo.UserAgent)
		}
	}
	assert.True(t, found)

	unsubscribe()
	assert.Equal(t, 1, h.Stats().Subscribers)
}

func TestHub_ConcurrentSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := New(zerolog.Nop())

	var (
		wg        sync.WaitGroup
		afterStop atomic.Int64
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var stopped atomic.Bool
			unsubscribe := h.Subscribe(func([]byte) {
				if stopped.Load() {
					afterStop.Add(1)
				}
			})
			for j := 0; j < 10; j++ {
				h.Broadcast([]byte("tick"))
			}
			unsubscribe()
			stopped.Store(true)
			for j := 0; j < 10; j++ {
				h.Broadcast([]byte("tock"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), afterStop.Load())
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, uint64(400), h.Broadcasts())
}
