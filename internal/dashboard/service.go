// Package dashboard holds the published dispute snapshot and answers view
// queries against it.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/chargeback-desk/internal/disputes"
	"github.com/example/chargeback-desk/internal/realtime"
	"github.com/example/chargeback-desk/internal/store"
)

var (
	ErrNotLoaded       = errors.New("dashboard: no snapshot loaded yet")
	ErrDisputeNotFound = errors.New("dashboard: dispute not found")
)

type Loader interface {
	Load(ctx context.Context) (*store.LoadResult, error)
}

// Snapshot is an immutable published load. Generation increases with every
// publish, so a snapshot that finished loading later always has the higher
// generation even if its reads started earlier. Generation is local to the
// process; ID is unique across processes and names the snapshot in shared
// caches.
type Snapshot struct {
	ID         string
	Generation uint64
	LoadedAt   time.Time
	Trigger    realtime.Signal
	Aggregates []disputes.Aggregate
	LoadErrors map[string]string

	byID map[string]int
}

func (s *Snapshot) find(id string) (disputes.Aggregate, bool) {
	i, ok := s.byID[id]
	if !ok {
		return disputes.Aggregate{}, false
	}
	return s.Aggregates[i], true
}

type Service struct {
	loader     Loader
	cache      ViewCache
	logger     *slog.Logger
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewService wires a loader and an optional view cache.
func NewService(loader Loader, cache ViewCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = noCache{}
	}
	return &Service{loader: loader, cache: cache, logger: logger}
}

// Refresh runs a full load and publishes the result. Concurrent refreshes
// each run to completion; the last to publish wins.
func (s *Service) Refresh(ctx context.Context, trigger realtime.Signal) error {
	result, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("dashboard: refresh: %w", err)
	}

	snap := &Snapshot{
		ID:         uuid.NewString(),
		LoadedAt:   result.LoadedAt,
		Trigger:    trigger,
		Aggregates: result.Aggregates,
		byID:       make(map[string]int, len(result.Aggregates)),
	}
	for i, agg := range result.Aggregates {
		snap.byID[agg.ID] = i
	}
	if result.Degraded() {
		snap.LoadErrors = make(map[string]string, len(result.SourceErrors))
		for table, err := range result.SourceErrors {
			snap.LoadErrors[string(table)] = err.Error()
		}
	}

	snap.Generation = s.generation.Add(1)
	s.current.Store(snap)

	s.logger.InfoContext(ctx, "snapshot published",
		"generation", snap.Generation,
		"snapshot_id", snap.ID,
		"trigger_id", trigger.ID,
		"origin", string(trigger.Origin),
		"table", string(trigger.Table),
		"disputes", len(snap.Aggregates),
		"degraded", result.Degraded(),
	)
	return nil
}

// Snapshot returns the current published snapshot.
func (s *Service) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}
