package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/chargeback-desk/internal/disputes"
)

const defaultQueryTimeout = 5 * time.Second

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads dashboard rows from the primary Postgres database.
type PostgresSource struct {
	db           querier
	QueryTimeout time.Duration
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{db: pool, QueryTimeout: defaultQueryTimeout}
}

func (s *PostgresSource) timeout() time.Duration {
	if s.QueryTimeout <= 0 {
		return defaultQueryTimeout
	}
	return s.QueryTimeout
}

func collect[T any](ctx context.Context, s *PostgresSource, table Table, fn pgx.RowToFunc[T], query string, args ...any) ([]T, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	rows, err := s.db.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", table, err)
	}
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", table, err)
	}
	return out, nil
}

func (s *PostgresSource) ListDisputes(ctx context.Context) ([]disputes.Dispute, error) {
	return collect(ctx, s, TableDisputes, func(row pgx.CollectableRow) (disputes.Dispute, error) {
		var (
			d           disputes.Dispute
			status      string
			eligibility *string
			reasons     []byte
			documents   []byte
		)
		err := row.Scan(
			&d.ID, &status, &eligibility, &reasons, &d.ReasonLabel, &d.CustomReason, &documents,
			&d.CreatedAt, &d.UpdatedAt, &d.TransactionID, &d.CustomerID, &d.ConversationID,
		)
		d.Status = disputes.Status(status)
		d.EligibilityStatus = eligibilityStatus(eligibility)
		d.EligibilityReasons = decodeStrings(reasons)
		d.Documents = decodeDocuments(documents)
		return d, err
	}, `
		SELECT
			id::text,
			status,
			eligibility_status,
			eligibility_reasons,
			reason_label,
			custom_reason,
			documents,
			created_at,
			updated_at,
			transaction_id::text,
			COALESCE(customer_id::text, ''),
			COALESCE(conversation_id::text, '')
		FROM disputes
		WHERE transaction_id IS NOT NULL
		ORDER BY created_at DESC
	`)
}

func (s *PostgresSource) TransactionsByID(ctx context.Context, ids []string) ([]disputes.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return collect(ctx, s, TableTransactions, func(row pgx.CollectableRow) (disputes.Transaction, error) {
		var (
			t      disputes.Transaction
			refund decimal.NullDecimal
		)
		err := row.Scan(
			&t.ID, &t.CustomerID, &t.MerchantName, &t.AcquirerName,
			&t.MerchantCategoryCode, &t.MerchantID, &t.ReferenceNumber, &t.Tid,
			&t.Amount, &refund, &t.Currency, &t.TransactionTime,
			&t.Settled, &t.RefundReceived, &t.SecuredIndication, &t.IsWalletTransaction,
			&t.NeedsAttention, &t.DisputeStatus, &t.TemporaryCreditProvided,
		)
		t.RefundAmount = nullDecimal(refund)
		return t, err
	}, `
		SELECT
			id::text,
			COALESCE(customer_id::text, ''),
			COALESCE(merchant_name, ''),
			COALESCE(acquirer_name, ''),
			merchant_category_code::bigint,
			merchant_id::bigint,
			reference_number::text,
			tid::bigint,
			COALESCE(amount, 0),
			refund_amount,
			COALESCE(currency, ''),
			transaction_time,
			COALESCE(settled, false),
			COALESCE(refund_received, false),
			COALESCE(secured_indication, 0)::int,
			COALESCE(is_wallet_transaction, false),
			COALESCE(needs_attention, false),
			dispute_status,
			COALESCE(temporary_credit_provided, false)
		FROM transactions
		WHERE id::text = ANY($1)
	`, ids)
}

// RepresentmentsByTransaction deliberately has no ORDER BY: the first row
// storage returns per transaction is the authoritative one.
func (s *PostgresSource) RepresentmentsByTransaction(ctx context.Context, transactionIDs []string) ([]disputes.RepresentmentRecord, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	return collect(ctx, s, TableRepresentments, func(row pgx.CollectableRow) (disputes.RepresentmentRecord, error) {
		var (
			r      disputes.RepresentmentRecord
			status string
		)
		err := row.Scan(&r.ID, &r.TransactionID, &status, &r.UpdatedAt)
		r.Status = disputes.RepresentmentStatus(status)
		return r, err
	}, `
		SELECT id::text, transaction_id::text, COALESCE(representment_status, ''), updated_at
		FROM chargeback_representment_static
		WHERE transaction_id::text = ANY($1)
	`, transactionIDs)
}

func (s *PostgresSource) ActionsByDispute(ctx context.Context, disputeIDs []string) ([]disputes.ChargebackAction, error) {
	if len(disputeIDs) == 0 {
		return nil, nil
	}
	return collect(ctx, s, TableActions, func(row pgx.CollectableRow) (disputes.ChargebackAction, error) {
		var a disputes.ChargebackAction
		err := row.Scan(
			&a.ID, &a.DisputeID, &a.ChargebackFiled, &a.AwaitingMerchantRefund,
			&a.RequiresManualReview, &a.TemporaryCreditIssued, &a.CreatedAt, &a.UpdatedAt,
		)
		return a, err
	}, `
		SELECT
			id::text,
			dispute_id::text,
			COALESCE(chargeback_filed, false),
			COALESCE(awaiting_merchant_refund, false),
			COALESCE(requires_manual_review, false),
			COALESCE(temporary_credit_issued, false),
			created_at,
			updated_at
		FROM chargeback_actions
		WHERE dispute_id::text = ANY($1)
		ORDER BY created_at
	`, disputeIDs)
}

func (s *PostgresSource) DecisionsByDispute(ctx context.Context, disputeIDs []string) ([]disputes.DisputeDecision, error) {
	if len(disputeIDs) == 0 {
		return nil, nil
	}
	return collect(ctx, s, TableDecisions, func(row pgx.CollectableRow) (disputes.DisputeDecision, error) {
		var (
			d        disputes.DisputeDecision
			decision string
		)
		err := row.Scan(&d.ID, &d.DisputeID, &decision, &d.CreatedAt)
		d.Decision = disputes.DecisionKind(decision)
		return d, err
	}, `
		SELECT id::text, dispute_id::text, COALESCE(decision, ''), created_at
		FROM dispute_decisions
		WHERE dispute_id::text = ANY($1)
		ORDER BY created_at
	`, disputeIDs)
}
