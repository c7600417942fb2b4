package disputes

import (
	"fmt"
	"strings"
)

const (
	LabelReceived           = "Dispute received"
	LabelSecured            = "Transaction verified as 3-D Secure"
	LabelNotSecured         = "Transaction was not 3-D Secure authenticated"
	LabelEligible           = "Dispute is eligible for chargeback"
	LabelIneligible         = "Dispute is not eligible for chargeback"
	LabelTempCredit         = "Temporary credit issued"
	LabelAwaitingRefund     = "Awaiting merchant refund"
	LabelManualReview       = "Sent for manual review"
	LabelFiled              = "Chargeback filed with card network"
	LabelRepPending         = "Merchant Representment Received"
	LabelRepAwaitingInfo    = "Awaiting additional information from customer"
	LabelRepRejected        = "Merchant representment rejected by bank"
	LabelRepNone            = "Merchant did not contest the chargeback"
	LabelEvidenceReviewed   = "Merchant evidence reviewed"
	LabelChargebackRecalled = "Chargeback recalled"
	LabelCreditReversed     = "Temporary credit has been reversed"
	LabelWriteOff           = "Write-off approved"
)

var representmentLabels = map[RepresentmentStatus]string{
	RepresentmentPending:              LabelRepPending,
	RepresentmentAwaitingCustomerInfo: LabelRepAwaitingInfo,
	RepresentmentRejectedByBank:       LabelRepRejected,
	RepresentmentNone:                 LabelRepNone,
}

var finalStatusLabels = map[Status]string{
	StatusCompleted:  "Dispute resolved in customer's favour",
	StatusApproved:   "Dispute approved",
	StatusClosedWon:  "Chargeback won",
	StatusClosedLost: "Chargeback lost",
	StatusRejected:   "Dispute rejected",
	StatusVoid:       "Dispute voided",
	StatusCancelled:  "Dispute cancelled",
}

// fallbackLabels covers statuses that no timeline rule describes, and doubles
// as the label whenever a dispute has no dated activity at all.
var fallbackLabels = map[Status]string{
	StatusStarted:                "Dispute started",
	StatusInProgress:             "Dispute in progress",
	StatusUnderReview:            "Under review",
	StatusRequiresAction:         "Action required",
	StatusPendingManualReview:    "Pending manual review",
	StatusAwaitingSettlement:     "Awaiting transaction settlement",
	StatusAwaitingInvestigation:  "Awaiting investigation",
	StatusCompleted:              "Dispute completed",
	StatusApproved:               "Dispute approved",
	StatusClosedWon:              "Chargeback won",
	StatusClosedLost:             "Chargeback lost",
	StatusRejected:               "Dispute rejected",
	StatusVoid:                   "Dispute voided",
	StatusCancelled:              "Dispute cancelled",
	StatusExpired:                "Dispute expired",
	StatusDone:                   "Dispute closed",
	StatusIneligible:             "Not eligible for chargeback",
	StatusRepresentmentContested: "Representment contested",
	StatusWriteOffApproved:       "Write-off approved",
}

// FallbackLabel returns the static label for a status. Unknown statuses are
// humanized so a label always exists.
func FallbackLabel(s Status) string {
	if label, ok := fallbackLabels[s]; ok {
		return label
	}
	raw := strings.TrimSpace(strings.ReplaceAll(string(s), "_", " "))
	if raw == "" {
		return "Status unavailable"
	}
	return strings.ToUpper(raw[:1]) + raw[1:]
}

func securityLabel(t *Transaction) string {
	if t.SecuredIndication == 1 {
		return LabelSecured
	}
	return LabelNotSecured
}

func eligibilityLabel(status EligibilityStatus, reasons []string) string {
	if status == EligibilityEligible {
		return LabelEligible
	}
	if len(reasons) == 0 {
		return LabelIneligible
	}
	return LabelIneligible + ": " + strings.Join(reasons, "; ")
}

func documentsLabel(n int) string {
	if n == 1 {
		return "Customer uploaded 1 document"
	}
	return fmt.Sprintf("Customer uploaded %d documents", n)
}

func reasonLabel(d Dispute) string {
	if d.ReasonLabel != nil && strings.TrimSpace(*d.ReasonLabel) != "" {
		return "Dispute reason: " + *d.ReasonLabel
	}
	return "Dispute reason: " + *d.CustomReason
}
