package store

import (
	"context"
	"errors"

	"github.com/example/chargeback-desk/internal/disputes"
)

// Table names the storage tables the dashboard reads.
type Table string

const (
	TableDisputes       Table = "disputes"
	TableTransactions   Table = "transactions"
	TableRepresentments Table = "chargeback_representment_static"
	TableActions        Table = "chargeback_actions"
	TableDecisions      Table = "dispute_decisions"
)

var ErrNoSource = errors.New("store: no row source configured")

// Source returns row snapshots keyed by the join columns. Implementations
// return rows in storage order and must tolerate an empty id list.
type Source interface {
	// ListDisputes returns disputes that already have a transaction selected.
	ListDisputes(ctx context.Context) ([]disputes.Dispute, error)
	TransactionsByID(ctx context.Context, ids []string) ([]disputes.Transaction, error)
	RepresentmentsByTransaction(ctx context.Context, transactionIDs []string) ([]disputes.RepresentmentRecord, error)
	ActionsByDispute(ctx context.Context, disputeIDs []string) ([]disputes.ChargebackAction, error)
	DecisionsByDispute(ctx context.Context, disputeIDs []string) ([]disputes.DisputeDecision, error)
}

// Join attaches related rows to each dispute. Representments keep storage
// order per transaction, so the first one returned stays authoritative.
func Join(
	rows []disputes.Dispute,
	transactions []disputes.Transaction,
	representments []disputes.RepresentmentRecord,
	actions []disputes.ChargebackAction,
	decisions []disputes.DisputeDecision,
) []disputes.Aggregate {
	txByID := make(map[string]*disputes.Transaction, len(transactions))
	for i := range transactions {
		tx := &transactions[i]
		if _, seen := txByID[tx.ID]; !seen {
			txByID[tx.ID] = tx
		}
	}

	repsByTx := make(map[string][]disputes.RepresentmentRecord)
	for _, r := range representments {
		repsByTx[r.TransactionID] = append(repsByTx[r.TransactionID], r)
	}
	actionsByDispute := make(map[string][]disputes.ChargebackAction)
	for _, a := range actions {
		actionsByDispute[a.DisputeID] = append(actionsByDispute[a.DisputeID], a)
	}
	decisionsByDispute := make(map[string][]disputes.DisputeDecision)
	for _, d := range decisions {
		decisionsByDispute[d.DisputeID] = append(decisionsByDispute[d.DisputeID], d)
	}

	out := make([]disputes.Aggregate, 0, len(rows))
	for _, d := range rows {
		agg := disputes.Aggregate{
			Dispute:           d,
			ChargebackActions: actionsByDispute[d.ID],
			Decisions:         decisionsByDispute[d.ID],
		}
		if d.TransactionID != nil {
			if tx, ok := txByID[*d.TransactionID]; ok {
				txCopy := *tx
				agg.Transaction = &txCopy
			}
			agg.Representments = repsByTx[*d.TransactionID]
		}
		out = append(out, agg)
	}
	return out
}

func disputeIDs(rows []disputes.Dispute) []string {
	out := make([]string, 0, len(rows))
	for _, d := range rows {
		out = append(out, d.ID)
	}
	return out
}

func transactionIDs(rows []disputes.Dispute) []string {
	seen := make(map[string]bool, len(rows))
	out := make([]string, 0, len(rows))
	for _, d := range rows {
		if d.TransactionID == nil || *d.TransactionID == "" || seen[*d.TransactionID] {
			continue
		}
		seen[*d.TransactionID] = true
		out = append(out, *d.TransactionID)
	}
	return out
}
