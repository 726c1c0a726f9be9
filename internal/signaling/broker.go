package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Broker routes frames to the connection holding a peer identifier,
// wherever that connection lives.
type Broker interface {
	// Subscribe delivers frames addressed to id until cancel is called.
	Subscribe(ctx context.Context, id string, deliver func([]byte)) (cancel func(), err error)
	// Publish reports false when no connection holds id.
	Publish(ctx context.Context, id string, frame []byte) (bool, error)
	Close() error
}

// LocalBroker routes between connections of a single instance.
type LocalBroker struct {
	mu   sync.RWMutex
	subs map[string]func([]byte)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]func([]byte))}
}

func (b *LocalBroker) Subscribe(_ context.Context, id string, deliver func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; exists {
		return nil, fmt.Errorf("peer %s already subscribed", id)
	}
	b.subs[id] = deliver
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}

func (b *LocalBroker) Publish(_ context.Context, id string, frame []byte) (bool, error) {
	b.mu.RLock()
	deliver, ok := b.subs[id]
	b.mu.RUnlock()

	if !ok {
		return false, nil
	}
	deliver(frame)
	return true, nil
}

func (b *LocalBroker) Close() error {
	return nil
}

// RedisBroker routes through redis pub/sub so that peers connected to
// different instances can reach each other.
type RedisBroker struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

func NewRedisBroker(ctx context.Context, addr string, logger *logrus.Logger) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisBroker{rdb: rdb, logger: logger}, nil
}

func channelFor(id string) string {
	return "connectsphere:signal:" + id
}

func (b *RedisBroker) Subscribe(ctx context.Context, id string, deliver func([]byte)) (func(), error) {
	pubsub := b.rdb.Subscribe(ctx, channelFor(id))
	// Wait for the subscription to be confirmed so that Publish right after
	// Subscribe counts this receiver.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing for %s: %w", id, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			deliver([]byte(msg.Payload))
		}
		b.logger.Debugf("Redis subscription for %s ended", id)
	}()

	return func() { _ = pubsub.Close() }, nil
}

func (b *RedisBroker) Publish(ctx context.Context, id string, frame []byte) (bool, error) {
	receivers, err := b.rdb.Publish(ctx, channelFor(id), frame).Result()
	if err != nil {
		return false, fmt.Errorf("publishing to %s: %w", id, err)
	}
	return receivers > 0, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
