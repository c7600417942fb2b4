package disputes

// Stage identifies a lifecycle step on the activity timeline. The value doubles
// as the activity id prefix.
type Stage string

const (
	StageReceived           Stage = "milestone-received"
	StageSecurity           Stage = "milestone-security"
	StageEligibility        Stage = "milestone-eligibility"
	StageDocsUploaded       Stage = "milestone-docs-uploaded"
	StageReason             Stage = "milestone-reason"
	StageTempCredit         Stage = "action-temp-credit"
	StageAwaitingRefund     Stage = "action-awaiting-refund"
	StageManualReview       Stage = "action-manual-review"
	StageFiled              Stage = "action-filed"
	StageFinalStatus        Stage = "milestone-final-status"
	StageRepresentment      Stage = "representment-status"
	StageEvidenceReviewed   Stage = "rep-evidence-reviewed"
	StageChargebackRecalled Stage = "rep-chargeback-recalled"
	StageCreditReversed     Stage = "rep-credit-reversed"
	StageWriteOff           Stage = "write-off"
)

type stageEntry struct {
	stage    Stage
	priority int
}

// stageTable is the semantic lifecycle order. Lower priorities sort earlier;
// adding a stage is a row here plus the rule that emits it.
var stageTable = []stageEntry{
	{StageReceived, 1},
	{StageSecurity, 2},
	{StageEligibility, 3},
	{StageDocsUploaded, 5},
	{StageReason, 6},
	{StageTempCredit, 7},
	{StageAwaitingRefund, 8},
	{StageManualReview, 9},
	{StageFiled, 11},
	{StageFinalStatus, 12},
	{StageRepresentment, 20},
	{StageEvidenceReviewed, 21},
	{StageChargebackRecalled, 22},
	{StageCreditReversed, 23},
	{StageWriteOff, 90},
}

var stagePriorities = func() map[Stage]int {
	m := make(map[Stage]int, len(stageTable))
	for _, e := range stageTable {
		m[e.stage] = e.priority
	}
	return m
}()

// Priority returns the stage priority, or 0 for an unknown stage.
func Priority(s Stage) int {
	return stagePriorities[s]
}

// Stages returns every stage in priority order.
func Stages() []Stage {
	out := make([]Stage, len(stageTable))
	for i, e := range stageTable {
		out[i] = e.stage
	}
	return out
}
