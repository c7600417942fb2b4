package disputes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TriState is a yes/no filter that may be left unset.
type TriState string

const (
	TriUnset TriState = ""
	TriYes   TriState = "yes"
	TriNo    TriState = "no"
)

func ParseTriState(s string) (TriState, error) {
	switch TriState(strings.ToLower(strings.TrimSpace(s))) {
	case TriUnset:
		return TriUnset, nil
	case TriYes:
		return TriYes, nil
	case TriNo:
		return TriNo, nil
	default:
		return TriUnset, fmt.Errorf("disputes: invalid tri-state value %q", s)
	}
}

func (t TriState) matches(v bool) bool {
	switch t {
	case TriYes:
		return v
	case TriNo:
		return !v
	default:
		return true
	}
}

// Filter holds the dashboard filters. Every field is optional and set fields
// combine with AND.
type Filter struct {
	CurrentStatus        string           `json:"current_status,omitempty"`
	Currency             string           `json:"currency,omitempty"`
	AcquirerName         string           `json:"acquirer_name,omitempty"`
	MerchantName         string           `json:"merchant_name,omitempty"`
	MerchantCategoryCode string           `json:"merchant_category_code,omitempty"`
	MerchantID           string           `json:"merchant_id,omitempty"`
	ReferenceNumber      string           `json:"reference_number,omitempty"`
	Tid                  string           `json:"tid,omitempty"`
	AmountMin            *decimal.Decimal `json:"amount_min,omitempty"`
	AmountMax            *decimal.Decimal `json:"amount_max,omitempty"`
	RefundAmountMin      *decimal.Decimal `json:"refund_amount_min,omitempty"`
	RefundAmountMax      *decimal.Decimal `json:"refund_amount_max,omitempty"`
	DateFrom             *time.Time       `json:"date_from,omitempty"`
	DateTo               *time.Time       `json:"date_to,omitempty"`
	RefundReceived       TriState         `json:"refund_received,omitempty"`
	Settled              TriState         `json:"settled,omitempty"`
}

// needsTransaction reports whether any set filter reads a transaction field.
func (f Filter) needsTransaction() bool {
	return f.Currency != "" || f.AcquirerName != "" || f.MerchantName != "" ||
		f.MerchantCategoryCode != "" || f.MerchantID != "" || f.ReferenceNumber != "" || f.Tid != "" ||
		f.AmountMin != nil || f.AmountMax != nil || f.RefundAmountMin != nil || f.RefundAmountMax != nil ||
		f.DateFrom != nil || f.DateTo != nil || f.RefundReceived != TriUnset || f.Settled != TriUnset
}

// Matches applies the filter to one dispute. Transaction filters fail closed
// when no transaction is attached.
func Matches(a Aggregate, f Filter) bool {
	if f.CurrentStatus != "" && CurrentLabel(a) != f.CurrentStatus {
		return false
	}
	if !f.needsTransaction() {
		return true
	}

	t := a.Transaction
	if t == nil {
		return false
	}

	if f.Currency != "" && t.Currency != f.Currency {
		return false
	}
	if !containsFold(t.AcquirerName, f.AcquirerName) || !containsFold(t.MerchantName, f.MerchantName) {
		return false
	}
	if !intContains(t.MerchantCategoryCode, f.MerchantCategoryCode) ||
		!intContains(t.MerchantID, f.MerchantID) ||
		!intContains(t.Tid, f.Tid) {
		return false
	}
	if f.ReferenceNumber != "" && (t.ReferenceNumber == nil || !strings.Contains(*t.ReferenceNumber, f.ReferenceNumber)) {
		return false
	}

	if !inRange(&t.Amount, f.AmountMin, f.AmountMax) || !inRange(t.RefundAmount, f.RefundAmountMin, f.RefundAmountMax) {
		return false
	}

	if f.DateFrom != nil || f.DateTo != nil {
		if t.TransactionTime == nil {
			return false
		}
		if f.DateFrom != nil && t.TransactionTime.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && t.TransactionTime.After(EndOfDay(*f.DateTo)) {
			return false
		}
	}

	return f.RefundReceived.matches(t.RefundReceived) && f.Settled.matches(t.Settled)
}

// EndOfDay extends a date to 23:59:59.999 in its own location so that a "to"
// bound includes the whole calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func containsFold(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}

// intContains matches a partial number against the decimal rendering of v.
func intContains(v *int64, needle string) bool {
	if needle == "" {
		return true
	}
	if v == nil {
		return false
	}
	return strings.Contains(strconv.FormatInt(*v, 10), strings.TrimSpace(needle))
}

func inRange(v, lo, hi *decimal.Decimal) bool {
	if lo == nil && hi == nil {
		return true
	}
	if v == nil {
		return false
	}
	if lo != nil && v.LessThan(*lo) {
		return false
	}
	if hi != nil && v.GreaterThan(*hi) {
		return false
	}
	return true
}
