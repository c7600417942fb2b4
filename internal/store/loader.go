package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/chargeback-desk/internal/disputes"
)

// LoadResult is one consistent-enough snapshot of every dispute on the
// dashboard. SourceErrors lists related tables that could not be read; those
// sources were treated as empty.
type LoadResult struct {
	Aggregates   []disputes.Aggregate
	SourceErrors map[Table]error
	LoadedAt     time.Time
}

func (r *LoadResult) Degraded() bool {
	return len(r.SourceErrors) > 0
}

// Loader runs the Row Joiner against a Source.
type Loader struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

func NewLoader(source Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger, now: time.Now}
}

// Load reads disputes, then the four related tables as concurrent independent
// reads. There is no consistency guarantee across the reads. A failed related
// read degrades to an empty source; only a failed dispute read fails the load.
func (l *Loader) Load(ctx context.Context) (*LoadResult, error) {
	if l.source == nil {
		return nil, ErrNoSource
	}

	rows, err := l.source.ListDisputes(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list disputes: %w", err)
	}

	ids := disputeIDs(rows)
	txIDs := transactionIDs(rows)

	var (
		transactions   []disputes.Transaction
		representments []disputes.RepresentmentRecord
		actions        []disputes.ChargebackAction
		decisions      []disputes.DisputeDecision
		txErr, repErr  error
		actErr, decErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		transactions, txErr = l.source.TransactionsByID(ctx, txIDs)
		return txErr
	})
	g.Go(func() error {
		representments, repErr = l.source.RepresentmentsByTransaction(ctx, txIDs)
		return repErr
	})
	g.Go(func() error {
		actions, actErr = l.source.ActionsByDispute(ctx, ids)
		return actErr
	})
	g.Go(func() error {
		decisions, decErr = l.source.DecisionsByDispute(ctx, ids)
		return decErr
	})
	// Wait reports only the first failure; each source keeps its own error.
	result := &LoadResult{SourceErrors: map[Table]error{}, LoadedAt: l.now()}
	if err := g.Wait(); err != nil {
		for table, err := range map[Table]error{
			TableTransactions:   txErr,
			TableRepresentments: repErr,
			TableActions:        actErr,
			TableDecisions:      decErr,
		} {
			if err == nil {
				continue
			}
			result.SourceErrors[table] = err
			l.logger.WarnContext(ctx, "source fetch failed, treating as empty", "table", string(table), "error", err)
		}
	}
	if txErr != nil {
		transactions = nil
	}
	if repErr != nil {
		representments = nil
	}
	if actErr != nil {
		actions = nil
	}
	if decErr != nil {
		decisions = nil
	}

	result.Aggregates = Join(rows, transactions, representments, actions, decisions)
	return result, nil
}
