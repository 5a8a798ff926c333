// Package redisrelay links hubs in separate processes through a Redis pub/sub
// channel, so a stream attached to any instance sees every instance's
// responses.
package redisrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is used when Config.Channel is empty.
const DefaultChannel = "mcp:broadcast"

const publishTimeout = 2 * time.Second

// Broadcaster is the local fan-out the relay feeds.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Config contains configuration options for the relay.
type Config struct {
	// Client is the Redis client to use. It is not closed by the relay.
	Client redis.UniversalClient
	// Channel is the pub/sub channel shared by all instances.
	Channel string
	// Origin identifies this instance. A random id is used if empty.
	Origin string
}

type envelope struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

func encodeEnvelope(origin string, msg []byte) ([]byte, error) {
	if !json.Valid(msg) {
		return nil, errors.New("relay payload is not valid JSON")
	}
	return json.Marshal(envelope{Origin: origin, Data: msg})
}

func decodeEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return envelope{}, err
	}
	if env.Origin == "" || len(env.Data) == 0 {
		return envelope{}, errors.New("relay envelope is missing origin or data")
	}
	return env, nil
}

// Relay wraps a local Broadcaster. Local broadcasts are also published to
// Redis, and messages published by other instances are rebroadcast locally.
type Relay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	local   Broadcaster
	logger  zerolog.Logger
}

// New creates a relay in front of local.
func New(config Config, local Broadcaster, logger zerolog.Logger) *Relay {
	channel := config.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	origin := config.Origin
	if origin == "" {
		origin = uuid.NewString()
	}

	return &Relay{
		client:  config.Client,
		channel: channel,
		origin:  origin,
		local:   local,
		logger: logger.With().
			Str("component", "redis_relay").
			Str("channel", channel).
			Str("origin", origin).
			Logger(),
	}
}

// Origin returns the id this relay stamps on published messages.
func (r *Relay) Origin() string {
	return r.origin
}

// Broadcast delivers msg to local subscribers and then publishes it for the
// other instances. A publish failure is logged; local delivery is unaffected.
func (r *Relay) Broadcast(msg []byte) {
	r.local.Broadcast(msg)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.Publish(ctx, msg); err != nil {
		r.logger.Warn().
			Err(err).
			Msg("Failed to publish broadcast")
	}
}

// Publish sends msg to the shared channel without delivering it locally.
func (r *Relay) Publish(ctx context.Context, msg []byte) error {
	payload, err := encodeEnvelope(r.origin, msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", r.channel, err)
	}
	return nil
}

// Run subscribes to the shared channel and rebroadcasts messages from other
// origins until ctx is canceled. It returns nil on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to channel %s: %w", r.channel, err)
	}

	r.logger.Info().Msg("Relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Msg("Dropping malformed relay message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.local.Broadcast(env.Data)
}
