package disputes

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Activity is one entry of a dispute's reconstructed history.
type Activity struct {
	ID            string    `json:"id"`
	Stage         Stage     `json:"stage"`
	Timestamp     time.Time `json:"timestamp"`
	Label         string    `json:"label"`
	StagePriority int       `json:"stage_priority"`
}

var terminalStatuses = map[Status]bool{
	StatusCompleted:  true,
	StatusApproved:   true,
	StatusClosedWon:  true,
	StatusRejected:   true,
	StatusVoid:       true,
	StatusCancelled:  true,
	StatusClosedLost: true,
}

// resolvedStatuses open the representment gate even without an action log.
var resolvedStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusApproved:  true,
	StatusClosedWon: true,
}

type timeline struct {
	out []Activity
}

// add appends an activity; a nil timestamp suppresses it.
func (t *timeline) add(stage Stage, id string, ts *time.Time, label string) {
	if ts == nil || ts.IsZero() {
		return
	}
	t.out = append(t.out, Activity{
		ID:            id,
		Stage:         stage,
		Timestamp:     *ts,
		Label:         label,
		StagePriority: Priority(stage),
	})
}

// Build reconstructs the ordered activity history of a dispute. Activities
// are ordered by stage priority, then by timestamp, so clock skew between
// sources never reorders lifecycle stages.
func Build(a Aggregate) []Activity {
	var t timeline
	d := a.Dispute

	t.add(StageReceived, string(StageReceived), d.CreatedAt, LabelReceived)

	if a.Transaction != nil {
		t.add(StageSecurity, string(StageSecurity), d.CreatedAt, securityLabel(a.Transaction))
	}

	if d.EligibilityStatus != nil && *d.EligibilityStatus != "" {
		t.add(StageEligibility, string(StageEligibility), d.CreatedAt, eligibilityLabel(*d.EligibilityStatus, d.EligibilityReasons))
	}

	if len(d.Documents) > 0 {
		t.add(StageDocsUploaded, string(StageDocsUploaded), documentsTimestamp(d), documentsLabel(len(d.Documents)))
	}

	if hasReason(d) {
		t.add(StageReason, string(StageReason), d.CreatedAt, reasonLabel(d))
	}

	for i, action := range a.ChargebackActions {
		suffix := actionSuffix(action, i)
		ts := action.Timestamp()
		if action.TemporaryCreditIssued {
			t.add(StageTempCredit, string(StageTempCredit)+suffix, ts, LabelTempCredit)
		}
		if action.AwaitingMerchantRefund {
			t.add(StageAwaitingRefund, string(StageAwaitingRefund)+suffix, ts, LabelAwaitingRefund)
		}
		if action.RequiresManualReview {
			t.add(StageManualReview, string(StageManualReview)+suffix, ts, LabelManualReview)
		}
		if action.ChargebackFiled {
			t.add(StageFiled, string(StageFiled)+suffix, ts, LabelFiled)
		}
	}

	if terminalStatuses[d.Status] {
		ts := d.UpdatedAt
		if ts == nil {
			ts = d.CreatedAt
		}
		t.add(StageFinalStatus, string(StageFinalStatus), ts, finalStatusLabels[d.Status])
	}

	if rep := a.Representment(); rep != nil && representmentGateOpen(a) {
		if rep.Status == RepresentmentAcceptedByBank {
			t.add(StageEvidenceReviewed, string(StageEvidenceReviewed), rep.UpdatedAt, LabelEvidenceReviewed)
			t.add(StageChargebackRecalled, string(StageChargebackRecalled), rep.UpdatedAt, LabelChargebackRecalled)
			t.add(StageCreditReversed, string(StageCreditReversed), rep.UpdatedAt, LabelCreditReversed)
		} else if label, ok := representmentLabels[rep.Status]; ok {
			t.add(StageRepresentment, string(StageRepresentment), rep.UpdatedAt, label)
		}
	}

	if latest := a.LatestDecision(); latest != nil && latest.Decision == DecisionApproveWriteOff {
		t.add(StageWriteOff, string(StageWriteOff), latest.CreatedAt, LabelWriteOff)
	}

	sort.SliceStable(t.out, func(i, j int) bool {
		if t.out[i].StagePriority != t.out[j].StagePriority {
			return t.out[i].StagePriority < t.out[j].StagePriority
		}
		return t.out[i].Timestamp.Before(t.out[j].Timestamp)
	})
	return t.out
}

// CurrentLabel is the label of the most advanced activity, or the static
// status label when no activity could be dated.
func CurrentLabel(a Aggregate) string {
	return LabelFor(a.Status, Build(a))
}

// LabelFor reduces an already built timeline to its display label.
func LabelFor(status Status, activities []Activity) string {
	if len(activities) == 0 {
		return FallbackLabel(status)
	}
	return activities[len(activities)-1].Label
}

// representmentGateOpen keeps representment off the timeline until a
// chargeback has actually been filed.
func representmentGateOpen(a Aggregate) bool {
	return len(a.ChargebackActions) > 0 || resolvedStatuses[a.Status]
}

func hasReason(d Dispute) bool {
	if d.ReasonLabel != nil && strings.TrimSpace(*d.ReasonLabel) != "" {
		return true
	}
	return d.CustomReason != nil && strings.TrimSpace(*d.CustomReason) != ""
}

// documentsTimestamp is the latest upload time, or created_at for documents
// stored without metadata.
func documentsTimestamp(d Dispute) *time.Time {
	var latest *time.Time
	for _, doc := range d.Documents {
		if doc.UploadedAt != nil && (latest == nil || doc.UploadedAt.After(*latest)) {
			latest = doc.UploadedAt
		}
	}
	if latest == nil {
		return d.CreatedAt
	}
	return latest
}

func actionSuffix(action ChargebackAction, index int) string {
	if action.ID != "" {
		return "-" + action.ID
	}
	return "-" + strconv.Itoa(index)
}
