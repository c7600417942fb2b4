package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaNotifier consumes CDC topics. Any message on a bound topic is treated
// as a coarse change of that topic's table.
type KafkaNotifier struct {
	reader   messageReader
	bindings Bindings
	logger   *slog.Logger
	// RetryDelay is the pause after a failed read.
	RetryDelay time.Duration
}

func NewKafkaNotifier(brokers []string, groupID string, bindings Bindings, logger *slog.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("realtime: kafka notifier requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("realtime: kafka notifier requires group id")
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("realtime: kafka notifier requires at least one topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		GroupTopics:    bindings.Names(),
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 500 * time.Millisecond,
	})
	return newKafkaNotifier(reader, bindings, logger), nil
}

func newKafkaNotifier(reader messageReader, bindings Bindings, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{reader: reader, bindings: bindings, logger: logger, RetryDelay: time.Second}
}

func (n *KafkaNotifier) Name() string { return string(OriginKafka) }

func (n *KafkaNotifier) Run(ctx context.Context, out chan<- Signal) error {
	defer n.reader.Close()

	for {
		msg, err := n.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			n.logger.WarnContext(ctx, "kafka read failed", "error", err)
			if !sleep(ctx, n.RetryDelay) {
				return nil
			}
			continue
		}

		table, ok := n.bindings[msg.Topic]
		if !ok {
			continue
		}
		if !emit(ctx, out, NewSignal(OriginKafka, table)) {
			return nil
		}
	}
}
