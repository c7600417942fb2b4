package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/chargeback-desk/internal/disputes"
)

// SQLiteSchema creates the dashboard tables for local and embedded runs.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS disputes (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	eligibility_status TEXT,
	eligibility_reasons TEXT,
	reason_label TEXT,
	custom_reason TEXT,
	documents TEXT,
	created_at TIMESTAMP,
	updated_at TIMESTAMP,
	transaction_id TEXT,
	customer_id TEXT,
	conversation_id TEXT
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	customer_id TEXT,
	merchant_name TEXT,
	acquirer_name TEXT,
	merchant_category_code INTEGER,
	merchant_id INTEGER,
	reference_number TEXT,
	tid INTEGER,
	amount TEXT NOT NULL DEFAULT '0',
	refund_amount TEXT,
	currency TEXT,
	transaction_time TIMESTAMP,
	settled INTEGER NOT NULL DEFAULT 0,
	refund_received INTEGER NOT NULL DEFAULT 0,
	secured_indication INTEGER NOT NULL DEFAULT 0,
	is_wallet_transaction INTEGER NOT NULL DEFAULT 0,
	needs_attention INTEGER NOT NULL DEFAULT 0,
	dispute_status TEXT,
	temporary_credit_provided INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chargeback_representment_static (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	representment_status TEXT NOT NULL,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chargeback_actions (
	id TEXT PRIMARY KEY,
	dispute_id TEXT NOT NULL,
	chargeback_filed INTEGER NOT NULL DEFAULT 0,
	awaiting_merchant_refund INTEGER NOT NULL DEFAULT 0,
	requires_manual_review INTEGER NOT NULL DEFAULT 0,
	temporary_credit_issued INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dispute_decisions (
	id TEXT PRIMARY KEY,
	dispute_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	created_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_disputes_transaction_id ON disputes(transaction_id);
CREATE INDEX IF NOT EXISTS idx_representments_transaction_id ON chargeback_representment_static(transaction_id);
CREATE INDEX IF NOT EXISTS idx_actions_dispute_id ON chargeback_actions(dispute_id);
CREATE INDEX IF NOT EXISTS idx_decisions_dispute_id ON dispute_decisions(dispute_id);
`

// maxInParams keeps IN lists under SQLite's host parameter limit.
const maxInParams = 500

// SQLSource reads dashboard rows through database/sql. It targets SQLite
// (github.com/mattn/go-sqlite3) and uses ? placeholders.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Migrate applies SQLiteSchema.
func (s *SQLSource) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > maxInParams {
		out = append(out, ids[:maxInParams])
		ids = ids[maxInParams:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// queryIn runs query once per chunk of ids, substituting the IN list for %s.
func queryIn[T any](ctx context.Context, db *sql.DB, table Table, query string, ids []string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	var out []T
	for _, chunk := range chunks(ids) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := db.QueryContext(ctx, fmt.Sprintf(query, placeholders(len(chunk))), args...)
		if err != nil {
			return nil, fmt.Errorf("store: query %s: %w", table, err)
		}
		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan %s: %w", table, err)
			}
			out = append(out, item)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("store: iterate %s: %w", table, err)
		}
	}
	return out, nil
}

func (s *SQLSource) ListDisputes(ctx context.Context) ([]disputes.Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, eligibility_status, eligibility_reasons, reason_label, custom_reason,
			documents, created_at, updated_at, transaction_id,
			COALESCE(customer_id, ''), COALESCE(conversation_id, '')
		FROM disputes
		WHERE transaction_id IS NOT NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", TableDisputes, err)
	}
	defer rows.Close()

	var out []disputes.Dispute
	for rows.Next() {
		var (
			d                               disputes.Dispute
			status                          string
			eligibility, reasons, documents sql.NullString
			reasonLabel, customReason, txID sql.NullString
			createdAt, updatedAt            sql.NullTime
		)
		if err := rows.Scan(&d.ID, &status, &eligibility, &reasons, &reasonLabel, &customReason,
			&documents, &createdAt, &updatedAt, &txID, &d.CustomerID, &d.ConversationID); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", TableDisputes, err)
		}
		d.Status = disputes.Status(status)
		d.EligibilityStatus = eligibilityStatus(nullString(eligibility))
		d.EligibilityReasons = decodeStrings([]byte(reasons.String))
		d.ReasonLabel = nullString(reasonLabel)
		d.CustomReason = nullString(customReason)
		d.Documents = decodeDocuments([]byte(documents.String))
		d.CreatedAt = nullTime(createdAt)
		d.UpdatedAt = nullTime(updatedAt)
		d.TransactionID = nullString(txID)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate %s: %w", TableDisputes, err)
	}
	return out, nil
}

func (s *SQLSource) TransactionsByID(ctx context.Context, ids []string) ([]disputes.Transaction, error) {
	return queryIn(ctx, s.db, TableTransactions, `
		SELECT id, COALESCE(customer_id, ''), COALESCE(merchant_name, ''), COALESCE(acquirer_name, ''),
			merchant_category_code, merchant_id, reference_number, tid,
			amount, refund_amount, COALESCE(currency, ''), transaction_time,
			settled, refund_received, secured_indication, is_wallet_transaction,
			needs_attention, dispute_status, temporary_credit_provided
		FROM transactions
		WHERE id IN (%s)
	`, ids, func(rows *sql.Rows) (disputes.Transaction, error) {
		var (
			t               disputes.Transaction
			mcc, mid, tid   sql.NullInt64
			ref, network    sql.NullString
			refund          decimal.NullDecimal
			transactionTime sql.NullTime
		)
		err := rows.Scan(&t.ID, &t.CustomerID, &t.MerchantName, &t.AcquirerName,
			&mcc, &mid, &ref, &tid,
			&t.Amount, &refund, &t.Currency, &transactionTime,
			&t.Settled, &t.RefundReceived, &t.SecuredIndication, &t.IsWalletTransaction,
			&t.NeedsAttention, &network, &t.TemporaryCreditProvided)
		t.MerchantCategoryCode = nullInt(mcc)
		t.MerchantID = nullInt(mid)
		t.Tid = nullInt(tid)
		t.ReferenceNumber = nullString(ref)
		t.RefundAmount = nullDecimal(refund)
		t.TransactionTime = nullTime(transactionTime)
		t.DisputeStatus = nullString(network)
		return t, err
	})
}

func (s *SQLSource) RepresentmentsByTransaction(ctx context.Context, transactionIDs []string) ([]disputes.RepresentmentRecord, error) {
	return queryIn(ctx, s.db, TableRepresentments, `
		SELECT id, transaction_id, representment_status, updated_at
		FROM chargeback_representment_static
		WHERE transaction_id IN (%s)
	`, transactionIDs, func(rows *sql.Rows) (disputes.RepresentmentRecord, error) {
		var (
			r         disputes.RepresentmentRecord
			status    string
			updatedAt sql.NullTime
		)
		err := rows.Scan(&r.ID, &r.TransactionID, &status, &updatedAt)
		r.Status = disputes.RepresentmentStatus(status)
		r.UpdatedAt = nullTime(updatedAt)
		return r, err
	})
}

func (s *SQLSource) ActionsByDispute(ctx context.Context, disputeIDs []string) ([]disputes.ChargebackAction, error) {
	return queryIn(ctx, s.db, TableActions, `
		SELECT id, dispute_id, chargeback_filed, awaiting_merchant_refund, requires_manual_review,
			temporary_credit_issued, created_at, updated_at
		FROM chargeback_actions
		WHERE dispute_id IN (%s)
		ORDER BY created_at
	`, disputeIDs, func(rows *sql.Rows) (disputes.ChargebackAction, error) {
		var (
			a                    disputes.ChargebackAction
			createdAt, updatedAt sql.NullTime
		)
		err := rows.Scan(&a.ID, &a.DisputeID, &a.ChargebackFiled, &a.AwaitingMerchantRefund,
			&a.RequiresManualReview, &a.TemporaryCreditIssued, &createdAt, &updatedAt)
		a.CreatedAt = nullTime(createdAt)
		a.UpdatedAt = nullTime(updatedAt)
		return a, err
	})
}

func (s *SQLSource) DecisionsByDispute(ctx context.Context, disputeIDs []string) ([]disputes.DisputeDecision, error) {
	return queryIn(ctx, s.db, TableDecisions, `
		SELECT id, dispute_id, decision, created_at
		FROM dispute_decisions
		WHERE dispute_id IN (%s)
		ORDER BY created_at
	`, disputeIDs, func(rows *sql.Rows) (disputes.DisputeDecision, error) {
		var (
			d         disputes.DisputeDecision
			decision  string
			createdAt sql.NullTime
		)
		err := rows.Scan(&d.ID, &d.DisputeID, &decision, &createdAt)
		d.Decision = disputes.DecisionKind(decision)
		d.CreatedAt = nullTime(createdAt)
		return d, err
	})
}
