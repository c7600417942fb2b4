package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// InstanceKey names the list of one process instance under a shared base key.
func InstanceKey(base, instance string) string {
	return base + ":" + instance
}

// ChainKeys lists every instance chain stored under base, sorted.
func ChainKeys(ctx context.Context, client *redis.Client, base string) ([]string, error) {
	var keys []string
	iter := client.Scan(ctx, 0, base+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", base, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// RedisSink appends entries to a Redis list, oldest first. A list holds the
// chain of exactly one ChainLogger; processes sharing a Redis each write
// under their own InstanceKey.
type RedisSink struct {
	client *redis.Client
	key    string
}

func NewRedisSink(client *redis.Client, key string) *RedisSink {
	if key == "" {
		key = "audit:dashboard"
	}
	return &RedisSink{client: client, key: key}
}

func (s *RedisSink) Key() string { return s.key }

func (s *RedisSink) Write(ctx context.Context, entry *LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.key, raw).Err()
}

// Entries reads the whole stored chain.
func (s *RedisSink) Entries(ctx context.Context) ([]*LogEntry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*LogEntry, 0, len(raw))
	for i, item := range raw {
		var e LogEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("audit: decode entry %d: %w", i, err)
		}
		out = append(out, &e)
	}
	return out, nil
}
