package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mihastele/social-space-harry/pkg/log"
)

const eventBuffer = 100

// RedisPubSub publishes and consumes Events over Redis channels. One Redis
// subscription is held per channel; subscribing again replaces it.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

var _ PubSub = (*RedisPubSub)(nil)

// NewRedisPubSub wraps an existing client. Close does not close the client;
// its owner does.
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		subs:   make(map[string]*redis.PubSub),
	}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of events published on channel. The Redis
// subscription is confirmed before Subscribe returns, so nothing published
// afterwards is missed. The returned channel closes when ctx ends or the
// subscription is dropped.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	r.mu.Lock()
	if old, ok := r.subs[channel]; ok {
		old.Close()
	}
	r.subs[channel] = sub
	r.mu.Unlock()

	events := make(chan *Event, eventBuffer)
	go r.forward(ctx, channel, sub, events)
	return events, nil
}

func (r *RedisPubSub) Unsubscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	sub, ok := r.subs[channel]
	delete(r.subs, channel)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Close()
}

// Close drops every subscription.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redis.PubSub)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// forward decodes Redis messages into events. Undecodable payloads and
// events arriving while out is full are dropped.
func (r *RedisPubSub) forward(ctx context.Context, channel string, sub *redis.PubSub, out chan<- *Event) {
	defer close(out)

	l := log.L().With().Str("channel", channel).Logger()
	in := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}

			select {
			case out <- &event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Str("event_type", event.Type).Msg("subscriber lagging, event dropped")
			}
		}
	}
}
