package types

import (
	"testing"
	"time"
)

func TestCyclePhaseOrder(t *testing.T) {
	tests := []struct {
		phase CyclePhase
		next  CyclePhase
	}{
		{PhaseDataGathering, PhaseValidation},
		{PhaseValidation, PhaseReview},
		{PhaseReview, PhaseApproval},
		{PhaseApproval, PhaseSubmission},
		{PhaseSubmission, ""},
	}
	for _, tt := range tests {
		if got := tt.phase.Next(); got != tt.next {
			t.Errorf("%s.Next() = %q, want %q", tt.phase, got, tt.next)
		}
	}
	if PhaseDataGathering.Reached(PhaseValidation) {
		t.Error("data_gathering should not have reached validation")
	}
	if !PhaseReview.Reached(PhaseValidation) {
		t.Error("review should have reached validation")
	}
}

func TestCheckpointSatisfied(t *testing.T) {
	cp := &Checkpoint{
		Phase:             PhaseReview,
		RequiredApprovals: []string{"report_owner", "data_steward"},
		Status:            CheckpointPending,
	}
	if cp.Satisfied() {
		t.Fatal("checkpoint with no approvals should not be satisfied")
	}
	cp.CompletedApprovals = append(cp.CompletedApprovals, "report_owner")
	if cp.Satisfied() {
		t.Fatal("checkpoint with partial approvals should not be satisfied")
	}
	cp.CompletedApprovals = append(cp.CompletedApprovals, "data_steward")
	if !cp.Satisfied() {
		t.Fatal("checkpoint with all required approvals should be satisfied")
	}
	// Extra approvals beyond the required set do not break satisfaction.
	cp.CompletedApprovals = append(cp.CompletedApprovals, "regulatory_officer")
	if !cp.Satisfied() {
		t.Fatal("extra approvals should not break satisfaction")
	}
}

func TestHumanTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    HumanTask
		wantErr bool
	}{
		{
			name: "valid pending task",
			task: HumanTask{CycleID: "c1", Title: "Review Q4 data", Status: TaskPending},
		},
		{
			name:    "completed without decision",
			task:    HumanTask{CycleID: "c1", Title: "Attest", Status: TaskCompleted},
			wantErr: true,
		},
		{
			name: "completed with decision",
			task: HumanTask{
				CycleID: "c1", Title: "Attest", Status: TaskCompleted,
				Decision: &TaskDecision{Outcome: OutcomeApproved, Rationale: "all controls passed"},
			},
		},
		{
			name:    "missing cycle",
			task:    HumanTask{Title: "Attest", Status: TaskPending},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIssueValidateFourEyes(t *testing.T) {
	base := Issue{Title: "Stale FX rates", Severity: SeverityHigh, Status: IssueResolved}

	i := base
	if err := i.Validate(); err == nil {
		t.Error("resolved issue without resolution should fail validation")
	}

	i.Resolution = &Resolution{Type: "data_correction", ImplementedBy: "u1", VerifiedBy: "u1"}
	if err := i.Validate(); err == nil {
		t.Error("same implementer and verifier should fail validation")
	}

	i.Resolution.VerifiedBy = "u2"
	if err := i.Validate(); err != nil {
		t.Errorf("valid four-eyes resolution rejected: %v", err)
	}
}

func TestIssueFilterMatches(t *testing.T) {
	now := time.Now().UTC()
	issue := &Issue{
		ID:              "iss-1",
		Title:           "Missing counterparty IDs",
		Severity:        SeverityCritical,
		Status:          IssueOpen,
		ImpactedReports: []string{"r1", "r2"},
		CreatedAt:       now,
	}

	critical := SeverityCritical
	closed := IssueClosed
	r1 := "r1"
	r9 := "r9"

	tests := []struct {
		name   string
		filter IssueFilter
		want   bool
	}{
		{"empty filter matches", IssueFilter{}, true},
		{"severity match", IssueFilter{Severity: &critical}, true},
		{"status mismatch", IssueFilter{Status: &closed}, false},
		{"impacted report match", IssueFilter{ImpactedReport: &r1}, true},
		{"impacted report mismatch", IssueFilter{ImpactedReport: &r9}, false},
		{"open only", IssueFilter{OpenOnly: true}, true},
		{"conjunctive", IssueFilter{Severity: &critical, ImpactedReport: &r9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(issue); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights should be valid: %v", err)
	}
	bad := ScoreWeights{RegulatoryImpact: 0.5, FinancialImpact: 0.5, UsageBreadth: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("weights summing to 1.5 should fail validation")
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestTaskMessageVisibility(t *testing.T) {
	now := time.Now().UTC()
	m := &TaskMessage{TaskType: "scan", Priority: PriorityNormal, DelaySeconds: 30, EnqueuedAt: now}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := m.VisibleAt(); !got.Equal(now.Add(30 * time.Second)) {
		t.Errorf("VisibleAt() = %v, want %v", got, now.Add(30*time.Second))
	}
}

func TestCatalogClone(t *testing.T) {
	cat := &ReportCatalog{
		Version: 3,
		Status:  CatalogApproved,
		Reports: []*RegulatoryReport{{ID: "r1", Name: "FR Y-9C", Jurisdiction: JurisdictionUS}},
	}
	clone := cat.Clone()
	clone.Reports[0].Name = "changed"
	clone.Status = CatalogDraft
	if cat.Reports[0].Name != "FR Y-9C" {
		t.Error("mutating a clone's report leaked into the original")
	}
	if cat.Status != CatalogApproved {
		t.Error("mutating a clone's status leaked into the original")
	}
}

func TestAuditEntryValidate(t *testing.T) {
	e := &AuditEntry{Actor: "alice", ActorType: ActorHuman, Action: "approve_catalog", EntityType: "report_catalog"}
	if err := e.Validate(); err != nil {
		t.Errorf("valid entry rejected: %v", err)
	}
	e2 := &AuditEntry{Actor: "alice", ActorType: "robot", Action: "x", EntityType: "y"}
	if err := e2.Validate(); err == nil {
		t.Error("invalid actor_type accepted")
	}
}
