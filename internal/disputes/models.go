package disputes

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the primary lifecycle field of a dispute
type Status string

const (
	StatusStarted                Status = "started"
	StatusInProgress             Status = "in_progress"
	StatusUnderReview            Status = "under_review"
	StatusRequiresAction         Status = "requires_action"
	StatusPendingManualReview    Status = "pending_manual_review"
	StatusAwaitingSettlement     Status = "awaiting_settlement"
	StatusAwaitingInvestigation  Status = "awaiting_investigation"
	StatusCompleted              Status = "completed"
	StatusApproved               Status = "approved"
	StatusClosedWon              Status = "closed_won"
	StatusClosedLost             Status = "closed_lost"
	StatusRejected               Status = "rejected"
	StatusVoid                   Status = "void"
	StatusCancelled              Status = "cancelled"
	StatusExpired                Status = "expired"
	StatusDone                   Status = "done"
	StatusIneligible             Status = "ineligible"
	StatusRepresentmentContested Status = "representment_contested"
	StatusWriteOffApproved       Status = "write_off_approved"
)

// AllStatuses lists every status the wizard and back office can write.
func AllStatuses() []Status {
	return []Status{
		StatusStarted, StatusInProgress, StatusUnderReview, StatusRequiresAction,
		StatusPendingManualReview, StatusAwaitingSettlement, StatusAwaitingInvestigation,
		StatusCompleted, StatusApproved, StatusClosedWon, StatusClosedLost,
		StatusRejected, StatusVoid, StatusCancelled, StatusExpired, StatusDone,
		StatusIneligible, StatusRepresentmentContested, StatusWriteOffApproved,
	}
}

type EligibilityStatus string

const (
	EligibilityEligible   EligibilityStatus = "ELIGIBLE"
	EligibilityIneligible EligibilityStatus = "INELIGIBLE"
)

// RepresentmentStatus is the merchant response state recorded by the acquirer feed
type RepresentmentStatus string

const (
	RepresentmentPending              RepresentmentStatus = "pending"
	RepresentmentAwaitingCustomerInfo RepresentmentStatus = "awaiting_customer_info"
	RepresentmentAcceptedByBank       RepresentmentStatus = "accepted_by_bank"
	RepresentmentRejectedByBank       RepresentmentStatus = "rejected_by_bank"
	RepresentmentNone                 RepresentmentStatus = "no_representment"
)

// Card network dispute states carried on the transaction row.
const (
	NetworkEvidenceSubmitted = "evidence_submitted"
	NetworkClosedWon         = "closed_won"
	NetworkClosedLost        = "closed_lost"
	NetworkMerchantWon       = "merchant_won"
)

type DecisionKind string

const DecisionApproveWriteOff DecisionKind = "APPROVE_WRITEOFF"

// Document is the metadata stored for an uploaded file. Older rows store bare
// file names instead of objects; both decode into a Document.
type Document struct {
	Name        string     `json:"name"`
	Path        string     `json:"path,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Size        int64      `json:"size,omitempty"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*d = Document{Name: name}
		return nil
	}

	type plain Document
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*d = Document(p)
	return nil
}

// Dispute mirrors a row of the disputes table.
type Dispute struct {
	ID                 string             `json:"id"`
	Status             Status             `json:"status"`
	EligibilityStatus  *EligibilityStatus `json:"eligibility_status"`
	EligibilityReasons []string           `json:"eligibility_reasons"`
	ReasonLabel        *string            `json:"reason_label"`
	CustomReason       *string            `json:"custom_reason"`
	Documents          []Document         `json:"documents"`
	CreatedAt          *time.Time         `json:"created_at"`
	UpdatedAt          *time.Time         `json:"updated_at"`
	TransactionID      *string            `json:"transaction_id"`
	CustomerID         string             `json:"customer_id"`
	ConversationID     string             `json:"conversation_id"`
}

// Transaction is the banking fact a dispute is raised against. It is read-only here.
type Transaction struct {
	ID                      string           `json:"id"`
	CustomerID              string           `json:"customer_id"`
	MerchantName            string           `json:"merchant_name"`
	AcquirerName            string           `json:"acquirer_name"`
	MerchantCategoryCode    *int64           `json:"merchant_category_code"`
	MerchantID              *int64           `json:"merchant_id"`
	ReferenceNumber         *string          `json:"reference_number"`
	Tid                     *int64           `json:"tid"`
	Amount                  decimal.Decimal  `json:"amount"`
	RefundAmount            *decimal.Decimal `json:"refund_amount"`
	Currency                string           `json:"currency"`
	TransactionTime         *time.Time       `json:"transaction_time"`
	Settled                 bool             `json:"settled"`
	RefundReceived          bool             `json:"refund_received"`
	SecuredIndication       int              `json:"secured_indication"`
	IsWalletTransaction     bool             `json:"is_wallet_transaction"`
	NeedsAttention          bool             `json:"needs_attention"`
	DisputeStatus           *string          `json:"dispute_status"`
	TemporaryCreditProvided bool             `json:"temporary_credit_provided"`
}

type RepresentmentRecord struct {
	ID            string              `json:"id"`
	TransactionID string              `json:"transaction_id"`
	Status        RepresentmentStatus `json:"representment_status"`
	UpdatedAt     *time.Time          `json:"updated_at"`
}

// ChargebackAction is one entry of the append-only action log. A single entry
// may set several flags.
type ChargebackAction struct {
	ID                     string     `json:"id"`
	DisputeID              string     `json:"dispute_id"`
	ChargebackFiled        bool       `json:"chargeback_filed"`
	AwaitingMerchantRefund bool       `json:"awaiting_merchant_refund"`
	RequiresManualReview   bool       `json:"requires_manual_review"`
	TemporaryCreditIssued  bool       `json:"temporary_credit_issued"`
	CreatedAt              *time.Time `json:"created_at"`
	UpdatedAt              *time.Time `json:"updated_at"`
}

// Timestamp is updated_at when present, else created_at.
func (c ChargebackAction) Timestamp() *time.Time {
	if c.UpdatedAt != nil {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

type DisputeDecision struct {
	ID        string       `json:"id"`
	DisputeID string       `json:"dispute_id"`
	Decision  DecisionKind `json:"decision"`
	CreatedAt *time.Time   `json:"created_at"`
}

// Aggregate is a dispute joined with every related source. It is rebuilt on
// every load and never written back.
type Aggregate struct {
	Dispute
	Transaction       *Transaction          `json:"transaction"`
	Representments    []RepresentmentRecord `json:"representments"`
	ChargebackActions []ChargebackAction    `json:"chargeback_actions"`
	Decisions         []DisputeDecision     `json:"decisions"`
}

// Representment returns the authoritative representment record: the first one
// storage returned.
func (a Aggregate) Representment() *RepresentmentRecord {
	if len(a.Representments) == 0 {
		return nil
	}
	return &a.Representments[0]
}

func (a Aggregate) RepresentmentStatus() RepresentmentStatus {
	if r := a.Representment(); r != nil {
		return r.Status
	}
	return ""
}

// HasWriteOff reports whether any decision approved a write-off.
func (a Aggregate) HasWriteOff() bool {
	for _, d := range a.Decisions {
		if d.Decision == DecisionApproveWriteOff {
			return true
		}
	}
	return false
}

// LatestDecision picks the decision with the greatest created_at. Undated
// decisions lose to dated ones; ties go to the later entry.
func (a Aggregate) LatestDecision() *DisputeDecision {
	var latest *DisputeDecision
	for i := range a.Decisions {
		d := &a.Decisions[i]
		switch {
		case latest == nil:
			latest = d
		case d.CreatedAt == nil:
			if latest.CreatedAt == nil {
				latest = d
			}
		case latest.CreatedAt == nil || !d.CreatedAt.Before(*latest.CreatedAt):
			latest = d
		}
	}
	return latest
}

func (a Aggregate) networkStatus() string {
	if a.Transaction == nil || a.Transaction.DisputeStatus == nil {
		return ""
	}
	return *a.Transaction.DisputeStatus
}
