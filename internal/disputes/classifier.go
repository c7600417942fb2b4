package disputes

import (
	"errors"
	"fmt"
	"strings"
)

// Bucket is a dashboard tab. Every visible dispute belongs to exactly one.
type Bucket string

const (
	BucketInProgress       Bucket = "in_progress"
	BucketNeedsAttention   Bucket = "needs_attention"
	BucketAwaitingCustomer Bucket = "awaiting_customer"
	BucketDone             Bucket = "done"
	BucketVoid             Bucket = "void"
)

var ErrUnknownBucket = errors.New("disputes: unknown bucket")

// Color is the category token rendered next to a row.
type Color string

const (
	ColorBlue   Color = "blue"
	ColorOrange Color = "orange"
	ColorGreen  Color = "green"
	ColorGray   Color = "gray"
)

// Buckets returns every bucket in tab order.
func Buckets() []Bucket {
	return []Bucket{BucketInProgress, BucketNeedsAttention, BucketAwaitingCustomer, BucketDone, BucketVoid}
}

func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Buckets() {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBucket, s)
}

// Color maps a bucket to its fixed category token.
func (b Bucket) Color() Color {
	switch b {
	case BucketNeedsAttention, BucketAwaitingCustomer:
		return ColorOrange
	case BucketDone:
		return ColorGreen
	case BucketVoid:
		return ColorGray
	default:
		return ColorBlue
	}
}

var doneStatuses = map[Status]bool{
	StatusDone:                   true,
	StatusCompleted:              true,
	StatusApproved:               true,
	StatusIneligible:             true,
	StatusClosedLost:             true,
	StatusClosedWon:              true,
	StatusRepresentmentContested: true,
	StatusWriteOffApproved:       true,
}

var voidStatuses = map[Status]bool{
	StatusRejected:  true,
	StatusCancelled: true,
	StatusExpired:   true,
}

var attentionStatuses = map[Status]bool{
	StatusRequiresAction:      true,
	StatusPendingManualReview: true,
	StatusAwaitingSettlement:  true,
}

// Visible reports whether the dispute is shown on the dashboard at all: a
// transaction must have been selected.
func Visible(a Aggregate) bool {
	return a.TransactionID != nil && *a.TransactionID != ""
}

// BucketOf assigns a visible dispute to its bucket. Precedence is void, done,
// awaiting_customer, needs_attention, then in_progress as the default.
func BucketOf(a Aggregate) (Bucket, bool) {
	if !Visible(a) {
		return "", false
	}
	switch {
	case isVoid(a):
		return BucketVoid, true
	case isDone(a):
		return BucketDone, true
	case isAwaitingCustomer(a):
		return BucketAwaitingCustomer, true
	case needsAttention(a):
		return BucketNeedsAttention, true
	default:
		return BucketInProgress, true
	}
}

// Classify reports whether a dispute belongs to the given bucket.
func Classify(a Aggregate, b Bucket) bool {
	got, ok := BucketOf(a)
	return ok && got == b
}

func isVoid(a Aggregate) bool {
	return voidStatuses[a.Status]
}

func isDone(a Aggregate) bool {
	if a.HasWriteOff() || doneStatuses[a.Status] {
		return true
	}
	switch a.RepresentmentStatus() {
	case RepresentmentNone, RepresentmentAcceptedByBank:
		return true
	}
	switch a.networkStatus() {
	case NetworkClosedWon, NetworkClosedLost:
		return true
	}
	return false
}

func isAwaitingCustomer(a Aggregate) bool {
	return a.RepresentmentStatus() == RepresentmentAwaitingCustomerInfo
}

// needsAttention treats accepted_by_bank as customer-losing and therefore not
// actionable, even though the same dispute is also counted as done.
func needsAttention(a Aggregate) bool {
	if doneStatuses[a.Status] || a.HasWriteOff() || a.Status == StatusInProgress {
		return false
	}

	rep := a.RepresentmentStatus()
	switch rep {
	case RepresentmentNone, RepresentmentAcceptedByBank:
		return false
	}
	network := a.networkStatus()
	switch network {
	case NetworkClosedWon, NetworkClosedLost, NetworkMerchantWon:
		return false
	}

	if rep == RepresentmentPending || rep == RepresentmentAwaitingCustomerInfo {
		return true
	}
	if network == NetworkEvidenceSubmitted {
		return true
	}
	if a.Transaction != nil && a.Transaction.NeedsAttention {
		return true
	}
	return attentionStatuses[a.Status]
}
