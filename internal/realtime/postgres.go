package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultReconnectDelay = 2 * time.Second

// PostgresNotifier takes one connection out of the pool and keeps it in
// LISTEN mode on every bound channel. Database triggers are expected to NOTIFY on insert, update and
// delete; the payload is ignored.
type PostgresNotifier struct {
	pool           *pgxpool.Pool
	bindings       Bindings
	logger         *slog.Logger
	ReconnectDelay time.Duration
}

func NewPostgresNotifier(pool *pgxpool.Pool, bindings Bindings, logger *slog.Logger) *PostgresNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresNotifier{
		pool:           pool,
		bindings:       bindings,
		logger:         logger,
		ReconnectDelay: defaultReconnectDelay,
	}
}

func (n *PostgresNotifier) Name() string { return string(OriginPostgres) }

func (n *PostgresNotifier) Run(ctx context.Context, out chan<- Signal) error {
	if n.pool == nil {
		return fmt.Errorf("realtime: postgres notifier has no pool")
	}

	first := true
	for {
		err := n.listen(ctx, out, !first)
		if ctx.Err() != nil {
			return nil
		}
		first = false
		n.logger.WarnContext(ctx, "listen connection lost, reconnecting",
			"error", err, "delay_ms", n.ReconnectDelay.Milliseconds())
		if !sleep(ctx, n.ReconnectDelay) {
			return nil
		}
	}
}

func (n *PostgresNotifier) listen(ctx context.Context, out chan<- Signal, resync bool) error {
	pooled, err := n.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	// LISTEN registrations live as long as the session; the connection is
	// closed on exit and never goes back to the pool.
	conn := pooled.Hijack()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for channel := range n.bindings {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
	}
	n.logger.InfoContext(ctx, "listening for table changes", "channels", n.bindings.Names())

	// notifications sent while disconnected are lost
	if resync && !emit(ctx, out, NewSignal(OriginPostgres, "")) {
		return ctx.Err()
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		table, ok := n.bindings[notification.Channel]
		if !ok {
			continue
		}
		if !emit(ctx, out, NewSignal(OriginPostgres, table)) {
			return ctx.Err()
		}
	}
}
