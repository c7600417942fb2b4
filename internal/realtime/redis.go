package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier subscribes to pub/sub channels that upstream writers publish
// to after committing a change.
type RedisNotifier struct {
	client   *redis.Client
	bindings Bindings
	logger   *slog.Logger
}

func NewRedisNotifier(client *redis.Client, bindings Bindings, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{client: client, bindings: bindings, logger: logger}
}

func (n *RedisNotifier) Name() string { return string(OriginRedis) }

// Run blocks until the subscription is confirmed, so a publish after Run has
// started emitting is never missed. go-redis reconnects and resubscribes on
// its own.
func (n *RedisNotifier) Run(ctx context.Context, out chan<- Signal) error {
	if n.client == nil {
		return fmt.Errorf("realtime: redis notifier has no client")
	}

	pubsub := n.client.Subscribe(ctx, n.bindings.Names()...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("realtime: redis subscribe: %w", err)
	}
	n.logger.InfoContext(ctx, "subscribed to change channels", "channels", n.bindings.Names())

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			table, bound := n.bindings[msg.Channel]
			if !bound {
				continue
			}
			if !emit(ctx, out, NewSignal(OriginRedis, table)) {
				return nil
			}
		}
	}
}
