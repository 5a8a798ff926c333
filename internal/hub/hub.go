// Package hub fans outbound messages out to every live stream subscriber.
package hub

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ClientInfo contains information about the client behind a subscriber.
type ClientInfo struct {
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// SubscriberInfo describes one live subscriber.
type SubscriberInfo struct {
	ID          string     `json:"id"`
	ClientInfo  ClientInfo `json:"client_info"`
	ConnectedAt time.Time  `json:"connected_at"`
	Delivered   uint64     `json:"delivered"`
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Subscribers int              `json:"subscribers"`
	Broadcasts  uint64           `json:"broadcasts"`
	Streams     []SubscriberInfo `json:"streams"`
}

// Option configures a subscriber.
type Option func(*subscriber)

// WithID sets the subscriber id. A random id is used otherwise.
func WithID(id string) Option {
	return func(s *subscriber) {
		if id != "" {
			s.id = id
		}
	}
}

// WithClientInfo attaches client details reported by Stats.
func WithClientInfo(info ClientInfo) Option {
	return func(s *subscriber) {
		s.client = info
	}
}

type subscriber struct {
	id          string
	client      ClientInfo
	connectedAt time.Time
	deliver     func([]byte)

	// mu serializes deliveries with removal; active is false once removed.
	mu        sync.Mutex
	active    bool
	delivered uint64

	once sync.Once
}

// Hub holds the set of live subscribers. The zero value is not usable; call New.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	broadcasts  atomic.Uint64
	logger      zerolog.Logger
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers deliver and returns the function that removes it.
// Calling the returned function more than once is a no-op, and once it has
// returned deliver is never called again. deliver must not call its own
// unsubscribe function.
func (h *Hub) Subscribe(deliver func([]byte), opts ...Option) (unsubscribe func()) {
	s := &subscriber{
		id:          uuid.NewString(),
		connectedAt: time.Now(),
		deliver:     deliver,
		active:      true,
	}
	for _, opt := range opts {
		opt(s)
	}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug().
		Str("subscriber_id", s.id).
		Str("remote_addr", s.client.RemoteAddr).
		Int("subscribers", count).
		Msg("Subscriber added")

	return func() { h.remove(s) }
}

func (h *Hub) remove(s *subscriber) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.subscribers, s)
		count := len(h.subscribers)
		h.mu.Unlock()

		// Wait out an in-flight delivery, then block any later one.
		s.mu.Lock()
		s.active = false
		delivered := s.delivered
		s.mu.Unlock()

		h.logger.Debug().
			Str("subscriber_id", s.id).
			Uint64("delivered", delivered).
			Dur("connected_for", time.Since(s.connectedAt)).
			Int("subscribers", count).
			Msg("Subscriber removed")
	})
}

// Broadcast delivers msg to every subscriber registered when it is called.
// A subscriber whose callback panics is logged and skipped. Subscribers share
// msg and must not modify it.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	snapshot := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	h.broadcasts.Add(1)

	for _, s := range snapshot {
		h.deliver(s, msg)
	}
}

func (h *Hub) deliver(s *subscriber, msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			h.logger.Error().
				Str("subscriber_id", s.id).
				Interface("panic", p).
				Msg("Subscriber delivery panicked")
		}
	}()

	s.deliver(msg)
	s.delivered++
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcasts returns the number of Broadcast calls so far.
func (h *Hub) Broadcasts() uint64 {
	return h.broadcasts.Load()
}

// Stats returns the live subscribers ordered by connection time.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	snapshot := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	streams := make([]SubscriberInfo, 0, len(snapshot))
	for _, s := range snapshot {
		s.mu.Lock()
		streams = append(streams, SubscriberInfo{
			ID:          s.id,
			ClientInfo:  s.client,
			ConnectedAt: s.connectedAt,
			Delivered:   s.delivered,
		})
		s.mu.Unlock()
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].ConnectedAt.Before(streams[j].ConnectedAt)
	})

	return Stats{
		Subscribers: len(streams),
		Broadcasts:  h.broadcasts.Load(),
		Streams:     streams,
	}
}
