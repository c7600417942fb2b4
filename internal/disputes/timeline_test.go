package disputes

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	t := base.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func underReview() Aggregate {
	return Aggregate{
		Dispute: Dispute{
			ID:            "d-1",
			Status:        StatusUnderReview,
			CreatedAt:     at(0),
			UpdatedAt:     at(5),
			TransactionID: ptr("t-1"),
		},
		Transaction: &Transaction{ID: "t-1", SecuredIndication: 1},
	}
}

func labels(acts []Activity) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Label
	}
	return out
}

func TestBuild_RepresentmentOutranksFiledAction(t *testing.T) {
	agg := underReview()
	agg.ChargebackActions = []ChargebackAction{{ID: "a1", ChargebackFiled: true, CreatedAt: at(60)}}
	// representment timestamp predates the action; priority still wins
	agg.Representments = []RepresentmentRecord{{ID: "r1", Status: RepresentmentPending, UpdatedAt: at(30)}}

	acts := Build(agg)
	require.NotEmpty(t, acts)
	assert.Equal(t, "Merchant Representment Received", CurrentLabel(agg))
	assert.Equal(t, StageRepresentment, acts[len(acts)-1].Stage)
	assert.Equal(t, "action-filed-a1", acts[len(acts)-2].ID)
}

func TestBuild_DocumentsUploaded(t *testing.T) {
	agg := underReview()
	require.NoError(t, json.Unmarshal([]byte(`["a.pdf","b.pdf"]`), &agg.Documents))

	assert.Equal(t, "Customer uploaded 2 documents", CurrentLabel(agg))
	assert.Equal(t, "a.pdf", agg.Documents[0].Name)
}

func TestBuild_AcceptedByBankExpandsToChain(t *testing.T) {
	agg := underReview()
	agg.ChargebackActions = []ChargebackAction{{ID: "a1", ChargebackFiled: true, TemporaryCreditIssued: true, UpdatedAt: at(10)}}
	agg.Representments = []RepresentmentRecord{{Status: RepresentmentAcceptedByBank, UpdatedAt: at(20)}}

	acts := Build(agg)
	got := labels(acts)
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, []string{LabelEvidenceReviewed, LabelChargebackRecalled, LabelCreditReversed}, got[len(got)-3:])
	assert.Equal(t, "Temporary credit has been reversed", CurrentLabel(agg))

	last := acts[len(acts)-3:]
	assert.Equal(t, last[0].Timestamp, last[2].Timestamp)
	assert.Equal(t, []int{21, 22, 23}, []int{last[0].StagePriority, last[1].StagePriority, last[2].StagePriority})
}

func TestBuild_RepresentmentGate(t *testing.T) {
	agg := underReview()
	agg.Representments = []RepresentmentRecord{{Status: RepresentmentPending, UpdatedAt: at(30)}}

	for _, a := range Build(agg) {
		assert.NotEqual(t, StageRepresentment, a.Stage, "representment shown before any chargeback was filed")
	}

	agg.Status = StatusCompleted
	acts := Build(agg)
	assert.Equal(t, StageRepresentment, acts[len(acts)-1].Stage)
}

func TestBuild_FirstRepresentmentIsAuthoritative(t *testing.T) {
	agg := underReview()
	agg.ChargebackActions = []ChargebackAction{{ChargebackFiled: true, CreatedAt: at(1)}}
	agg.Representments = []RepresentmentRecord{
		{ID: "r1", Status: RepresentmentRejectedByBank, UpdatedAt: at(2)},
		{ID: "r2", Status: RepresentmentAcceptedByBank, UpdatedAt: at(3)},
	}

	assert.Equal(t, LabelRepRejected, CurrentLabel(agg))
}

func TestBuild_ActionsEmitPerEntry(t *testing.T) {
	agg := underReview()
	agg.ChargebackActions = []ChargebackAction{
		{ID: "late", RequiresManualReview: true, CreatedAt: at(50)},
		{ID: "early", RequiresManualReview: true, AwaitingMerchantRefund: true, CreatedAt: at(10), UpdatedAt: at(20)},
		{RequiresManualReview: true},
	}

	var review []Activity
	for _, a := range Build(agg) {
		if a.Stage == StageManualReview {
			review = append(review, a)
		}
	}
	require.Len(t, review, 2, "undated action is suppressed")
	assert.Equal(t, "action-manual-review-early", review[0].ID)
	assert.Equal(t, *at(20), review[0].Timestamp)
	assert.Equal(t, "action-manual-review-late", review[1].ID)
}

func TestBuild_WriteOffUsesLatestDecision(t *testing.T) {
	agg := underReview()
	agg.Decisions = []DisputeDecision{
		{Decision: DecisionApproveWriteOff, CreatedAt: at(10)},
		{Decision: "REQUEST_INFO", CreatedAt: at(20)},
	}
	assert.NotEqual(t, LabelWriteOff, CurrentLabel(agg))

	agg.Decisions = append(agg.Decisions, DisputeDecision{Decision: DecisionApproveWriteOff, CreatedAt: at(30)})
	assert.Equal(t, LabelWriteOff, CurrentLabel(agg))
}

func TestBuild_FinalStatus(t *testing.T) {
	agg := underReview()
	agg.Status = StatusClosedLost
	acts := Build(agg)
	last := acts[len(acts)-1]
	assert.Equal(t, StageFinalStatus, last.Stage)
	assert.Equal(t, *at(5), last.Timestamp)
}

func TestBuild_Ineligible(t *testing.T) {
	agg := underReview()
	agg.EligibilityStatus = ptr(EligibilityIneligible)
	agg.EligibilityReasons = []string{"older than 120 days", "refund already received"}

	assert.Equal(t, "Dispute is not eligible for chargeback: older than 120 days; refund already received", CurrentLabel(agg))
}

func TestBuild_MissingTransactionSkipsSecurity(t *testing.T) {
	agg := underReview()
	agg.Transaction = nil

	acts := Build(agg)
	require.Len(t, acts, 1)
	assert.Equal(t, LabelReceived, acts[0].Label)
}

func TestCurrentLabel_FallbackTotality(t *testing.T) {
	statuses := append(AllStatuses(), "", "some_future_status")
	for _, s := range statuses {
		minimal := Aggregate{Dispute: Dispute{ID: "d", Status: s}}
		assert.Empty(t, Build(minimal))
		assert.NotEmpty(t, CurrentLabel(minimal), "status %q", s)

		minimal.CreatedAt = at(0)
		assert.NotEmpty(t, CurrentLabel(minimal), "status %q", s)
	}
	assert.Equal(t, "Dispute started", FallbackLabel(StatusStarted))
	assert.Equal(t, "Write-off approved", FallbackLabel(StatusWriteOffApproved))
	assert.Equal(t, "Some future status", FallbackLabel("some_future_status"))
}

func TestStageTableIsOrdered(t *testing.T) {
	stages := Stages()
	for i := 1; i < len(stages); i++ {
		assert.Less(t, Priority(stages[i-1]), Priority(stages[i]))
	}
}

func randomAggregate(r *rand.Rand) Aggregate {
	ts := func() *time.Time {
		if r.Intn(6) == 0 {
			return nil
		}
		return at(r.Intn(1000) - 500)
	}
	statuses := AllStatuses()
	reps := []RepresentmentStatus{RepresentmentPending, RepresentmentAwaitingCustomerInfo, RepresentmentAcceptedByBank, RepresentmentRejectedByBank, RepresentmentNone}

	agg := Aggregate{Dispute: Dispute{
		ID:        "d",
		Status:    statuses[r.Intn(len(statuses))],
		CreatedAt: ts(),
		UpdatedAt: ts(),
	}}
	if r.Intn(2) == 0 {
		agg.Transaction = &Transaction{SecuredIndication: r.Intn(2)}
	}
	if r.Intn(2) == 0 {
		agg.EligibilityStatus = ptr(EligibilityEligible)
	}
	if r.Intn(2) == 0 {
		agg.Documents = []Document{{Name: "x.pdf", UploadedAt: ts()}}
	}
	if r.Intn(2) == 0 {
		agg.CustomReason = ptr("not delivered")
	}
	for i := r.Intn(4); i > 0; i-- {
		agg.ChargebackActions = append(agg.ChargebackActions, ChargebackAction{
			ChargebackFiled:        r.Intn(2) == 0,
			AwaitingMerchantRefund: r.Intn(2) == 0,
			RequiresManualReview:   r.Intn(2) == 0,
			TemporaryCreditIssued:  r.Intn(2) == 0,
			CreatedAt:              ts(),
			UpdatedAt:              ts(),
		})
	}
	if r.Intn(2) == 0 {
		agg.Representments = []RepresentmentRecord{{Status: reps[r.Intn(len(reps))], UpdatedAt: ts()}}
	}
	if r.Intn(3) == 0 {
		agg.Decisions = []DisputeDecision{{Decision: DecisionApproveWriteOff, CreatedAt: ts()}}
	}
	return agg
}

func TestBuild_PriorityMonotonicAndDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		agg := randomAggregate(r)
		acts := Build(agg)
		for j := 1; j < len(acts); j++ {
			prev, cur := acts[j-1], acts[j]
			require.LessOrEqual(t, prev.StagePriority, cur.StagePriority)
			if prev.StagePriority == cur.StagePriority {
				require.False(t, cur.Timestamp.Before(prev.Timestamp))
			}
		}
		assert.Equal(t, acts, Build(agg))
		assert.Equal(t, CurrentLabel(agg), CurrentLabel(agg))
	}
}
