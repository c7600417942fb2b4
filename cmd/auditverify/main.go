package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/chargeback-desk/pkg/audit"
)

// auditverify reads every dashboard access chain from Redis and exits
// non-zero when one has been edited, truncated in the middle or reordered.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := getenv("REDIS_ADDR", "localhost:6379")
	base := getenv("AUDIT_KEY", "audit:dashboard")

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	keys, err := audit.ChainKeys(ctx, client, base)
	if err != nil {
		logger.Error("failed to list audit chains", "base", base, "error", err)
		os.Exit(1)
	}

	broken := 0
	for _, key := range keys {
		entries, err := audit.NewRedisSink(client, key).Entries(ctx)
		if err != nil {
			logger.Error("failed to read audit chain", "key", key, "error", err)
			os.Exit(1)
		}

		if !audit.VerifyChain(entries) {
			logger.Error("audit chain broken", "key", key, "entries", len(entries))
			broken++
			continue
		}

		attrs := []any{"key", key, "entries", len(entries)}
		if n := len(entries); n > 0 {
			attrs = append(attrs, "first_sequence", entries[0].Sequence, "last_hash", entries[n-1].Hash)
		}
		logger.Info("audit chain verified", attrs...)
	}

	if broken > 0 {
		os.Exit(2)
	}
	logger.Info("audit verification complete", "base", base, "chains", len(keys))
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
