// Package realtime turns table change notifications into invalidation signals
// and runs a full dashboard refresh for each one.
package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/chargeback-desk/internal/store"
)

// Origin names where a signal came from.
type Origin string

const (
	OriginInitial  Origin = "initial"
	OriginManual   Origin = "manual"
	OriginPostgres Origin = "postgres"
	OriginRedis    Origin = "redis"
	OriginKafka    Origin = "kafka"
)

// Signal says "something in Table changed, refetch everything". It carries
// no row data. Table is empty for initial loads and for resyncs after a
// notifier reconnects.
type Signal struct {
	ID         string      `json:"id"`
	Table      store.Table `json:"table,omitempty"`
	Origin     Origin      `json:"origin"`
	ReceivedAt time.Time   `json:"received_at"`
}

func NewSignal(origin Origin, table store.Table) Signal {
	return Signal{
		ID:         uuid.NewString(),
		Table:      table,
		Origin:     origin,
		ReceivedAt: time.Now().UTC(),
	}
}

// Notifier emits signals until ctx is done. Run returns nil on cancellation
// and an error only when it cannot start at all.
type Notifier interface {
	Name() string
	Run(ctx context.Context, out chan<- Signal) error
}

// DefaultTables are the tables whose changes trigger a reload.
var DefaultTables = []store.Table{store.TableDisputes, store.TableRepresentments, store.TableDecisions}

// Bindings maps a channel or topic name to the table it reports on.
type Bindings map[string]store.Table

// ParseBindings reads entries of the form "channel=table" or a bare table
// name, which binds a channel of the same name.
func ParseBindings(entries []string) (Bindings, error) {
	known := map[store.Table]bool{
		store.TableDisputes:       true,
		store.TableTransactions:   true,
		store.TableRepresentments: true,
		store.TableActions:        true,
		store.TableDecisions:      true,
	}

	out := Bindings{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, table, found := strings.Cut(entry, "=")
		if !found {
			table = name
		}
		name, table = strings.TrimSpace(name), strings.TrimSpace(table)
		if name == "" {
			return nil, fmt.Errorf("realtime: empty channel in %q", entry)
		}
		if !known[store.Table(table)] {
			return nil, fmt.Errorf("realtime: unknown table %q in %q", table, entry)
		}
		out[name] = store.Table(table)
	}
	if len(out) == 0 {
		for _, t := range DefaultTables {
			out[string(t)] = t
		}
	}
	return out, nil
}

// Names returns the bound channel names.
func (b Bindings) Names() []string {
	out := make([]string, 0, len(b))
	for name := range b {
		out = append(out, name)
	}
	return out
}

func emit(ctx context.Context, out chan<- Signal, sig Signal) bool {
	select {
	case out <- sig:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d or until ctx is done, reporting whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
