package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihastele/social-space-harry/internal/config"
	"github.com/mihastele/social-space-harry/pkg/log"
	"github.com/mihastele/social-space-harry/pkg/pubsub"
)

const queueSize = 1024

type transition struct {
	userID string
	online bool
}

// RedisMirror projects the in-memory registry into Redis: one key per online
// user, refreshed on a heartbeat, plus an event on each transition. It is
// read by out-of-process collaborators and is never consulted for routing.
type RedisMirror struct {
	client            *redis.Client
	publisher         pubsub.Publisher
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration

	queue chan transition

	managedKeys map[string]struct{}
	mu          sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Mirror = (*RedisMirror)(nil)

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(cfg config.RedisConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisMirrorWithClient(client, cfg), nil
}

// NewRedisMirrorWithClient uses an existing client; Close closes it.
func NewRedisMirrorWithClient(client *redis.Client, cfg config.RedisConfig) *RedisMirror {
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = 30 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.KeyTTL / 3
	}
	return &RedisMirror{
		client:            client,
		publisher:         pubsub.NewRedisPubSub(client),
		prefix:            cfg.Prefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		queue:             make(chan transition, queueSize),
		managedKeys:       make(map[string]struct{}),
	}
}

func (r *RedisMirror) keyFor(userID string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, userID)
}

func (r *RedisMirror) Online(userID string) {
	r.enqueue(transition{userID: userID, online: true})
}

func (r *RedisMirror) Offline(userID string) {
	r.enqueue(transition{userID: userID, online: false})
}

func (r *RedisMirror) enqueue(t transition) {
	select {
	case r.queue <- t:
	default:
		l := log.L()
		l.Warn().Str(log.FieldUserID, t.userID).Bool("online", t.online).Msg("presence mirror queue full, dropping transition")
	}
}

// IsOnline reports whether userID has a live presence key.
func (r *RedisMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.keyFor(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to lookup presence: %w", err)
	}
	return n > 0, nil
}

// Start launches the transition writer and the TTL heartbeat.
func (r *RedisMirror) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go r.writeLoop(ctx)
	go r.heartbeatLoop(ctx)

	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("presence mirror started")
	return nil
}

func (r *RedisMirror) writeLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.queue:
			if err := r.apply(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
				l := log.L()
				l.Error().Err(err).Str(log.FieldUserID, t.userID).Msg("failed to mirror presence")
			}
		}
	}
}

func (r *RedisMirror) apply(ctx context.Context, t transition) error {
	key := r.keyFor(t.userID)
	eventType := pubsub.EventUserOffline

	if t.online {
		eventType = pubsub.EventUserOnline
		if err := r.client.Set(ctx, key, "1", r.keyTTL).Err(); err != nil {
			return err
		}
		r.mu.Lock()
		r.managedKeys[key] = struct{}{}
		r.mu.Unlock()
	} else {
		r.mu.Lock()
		delete(r.managedKeys, key)
		r.mu.Unlock()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return err
		}
	}

	ev, err := pubsub.NewEvent(eventType, t.userID, nil)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, pubsub.ChannelPresence, ev)
}

func (r *RedisMirror) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisMirror) refreshKeys(ctx context.Context) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		if err := r.client.Expire(ctx, key, r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Str("key", key).Err(err).Msg("failed to refresh presence key")
		}
	}
}

// Close stops the loops and closes the Redis client. Keys are left to expire.
func (r *RedisMirror) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.client.Close()
}
