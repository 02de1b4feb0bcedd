package action

import (
	"bytes"
	"encoding/csv"
	"math"
	"strings"
	"testing"

	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/model"
)

func TestHighRiskSeniorGetsManualCall(t *testing.T) {
	th := NewThresholds(0.55, 0.75)

	if tier := th.Tier(0.80); tier != TierHigh {
		t.Fatalf("expected HIGH, got %s", tier)
	}
	senior := th.Action(0.80, true)
	if !strings.Contains(strings.ToLower(senior), "manual call") {
		t.Fatalf("expected manual call, got %q", senior)
	}
	if ExecutionType(senior) != ExecutionManual {
		t.Fatalf("expected manual execution for %q", senior)
	}

	younger := th.Action(0.80, false)
	if !strings.Contains(younger, "dual-channel message") {
		t.Fatalf("expected dual-channel message, got %q", younger)
	}
	if ExecutionType(younger) != ExecutionAutomated {
		t.Fatalf("expected automated execution for %q", younger)
	}
}

func TestModerateAndLowIgnoreAge(t *testing.T) {
	th := DefaultThresholds
	for _, senior := range []bool{true, false} {
		if got := th.Action(0.60, senior); got != ActionMessageWithReminder {
			t.Fatalf("moderate risk senior=%v: got %q", senior, got)
		}
		if got := th.Action(0.10, senior); got != ActionStandardReminder {
			t.Fatalf("low risk senior=%v: got %q", senior, got)
		}
	}
}

func TestTierIsMonotonicPartition(t *testing.T) {
	th := NewThresholds(0.55, 0.75)
	prev := -1
	seen := map[Tier]bool{}
	for i := 0; i <= 1000; i++ {
		risk := float64(i) / 1000
		tier := th.Tier(risk)
		seen[tier] = true
		// Rank decreases as severity increases.
		order := 2 - tier.Rank()
		if order < prev {
			t.Fatalf("tier decreased at risk %.3f", risk)
		}
		prev = order
	}
	if len(seen) != 3 {
		t.Fatalf("expected three tiers, saw %v", seen)
	}
	if th.Tier(0.55) != TierModerate || th.Tier(0.5499) != TierLow || th.Tier(0.75) != TierHigh {
		t.Fatalf("boundaries misassigned")
	}
}

func TestNewThresholdsClamps(t *testing.T) {
	th := NewThresholds(0.80, 0.50)
	if th.High < th.Moderate {
		t.Fatalf("high %.2f below moderate %.2f", th.High, th.Moderate)
	}
	if th.Moderate != 0.80 || th.High != 0.80 {
		t.Fatalf("unexpected thresholds %+v", th)
	}

	th = NewThresholds(0.05, 1.5)
	if th.Moderate != MinModerate || th.High != MaxHigh {
		t.Fatalf("expected range clamp, got %+v", th)
	}

	th = NewThresholds(0.95, 0.99)
	if th.Moderate != MaxModerate || th.High != MaxHigh {
		t.Fatalf("expected upper clamp, got %+v", th)
	}
}

func TestExecutionTypeKeyword(t *testing.T) {
	cases := map[string]Execution{
		ActionManualCall:          ExecutionManual,
		ActionDualChannelMessage:  ExecutionAutomated,
		ActionMessageWithReminder: ExecutionAutomated,
		ActionStandardReminder:    ExecutionAutomated,
		"CALL the patient":        ExecutionManual,
	}
	for label, want := range cases {
		if got := ExecutionType(label); got != want {
			t.Fatalf("%q: expected %s, got %s", label, want, got)
		}
	}
}

func scored(id int64, age int, risk float64, leadDays int) model.ScoredRecord {
	return model.ScoredRecord{
		Record: appointments.Record{
			ID:           id,
			Age:          age,
			Age60Plus:    age >= appointments.SeniorAge,
			Channel:      appointments.ChannelSMS,
			Area:         "CENTRO",
			LeadTimeDays: leadDays,
			Scheduled:    true,
		},
		Risk: risk,
	}
}

func sampleQueue() []Item {
	rows := []model.ScoredRecord{
		scored(4, 30, 0.20, 1),
		scored(1, 70, 0.90, 10),
		scored(3, 25, 0.80, 12),
		scored(2, 65, 0.80, 8),
		scored(5, 40, 0.60, 4),
		scored(6, 45, 0.62, 6),
	}
	return BuildQueue(rows, NewThresholds(0.55, 0.75))
}

func TestBuildQueueOrdering(t *testing.T) {
	queue := sampleQueue()
	wantIDs := []int64{1, 2, 3, 6, 5, 4}
	for i, id := range wantIDs {
		if queue[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, queue[i].ID)
		}
	}
	if queue[0].Execution != ExecutionManual || queue[2].Execution != ExecutionAutomated {
		t.Fatalf("unexpected execution labels: %+v %+v", queue[0], queue[2])
	}
}

func TestSummarizeAndCounts(t *testing.T) {
	queue := sampleQueue()
	summary := Summarize(queue)
	if summary.Total != 6 || summary.High != 3 || summary.Moderate != 2 || summary.Low != 1 {
		t.Fatalf("unexpected tier counts: %+v", summary)
	}
	if summary.Manual != 2 || summary.Automated != 4 {
		t.Fatalf("unexpected execution counts: %+v", summary)
	}
	if summary.HighShare != 0.5 {
		t.Fatalf("expected high share 0.5, got %.3f", summary.HighShare)
	}

	rows := []model.ScoredRecord{scored(1, 30, 0.5, 0), scored(2, 30, 0.75, 0), scored(3, 30, 0.2, 0)}
	if got := CountAtOrAbove(rows, 0.5); got != 2 {
		t.Fatalf("expected 2 at or above 0.5, got %d", got)
	}

	if empty := Summarize(nil); empty.Total != 0 || empty.HighShare != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}

func TestGroupActionsOrder(t *testing.T) {
	groups := GroupActions(sampleQueue())
	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d: %+v", len(groups), groups)
	}
	if groups[0].Tier != TierHigh || groups[0].AgeGroup != "60+" || groups[0].Count != 2 {
		t.Fatalf("unexpected first group: %+v", groups[0])
	}
	if groups[1].Tier != TierHigh || groups[1].Action != ActionDualChannelMessage {
		t.Fatalf("unexpected second group: %+v", groups[1])
	}
	if groups[2].Tier != TierModerate || groups[2].Count != 2 {
		t.Fatalf("unexpected third group: %+v", groups[2])
	}
	if groups[3].Tier != TierLow {
		t.Fatalf("expected LOW last, got %+v", groups[3])
	}
	if math.Abs(groups[0].MeanRisk-0.85) > 1e-9 || groups[0].MeanLeadTimeDays != 9 {
		t.Fatalf("unexpected group means: %+v", groups[0])
	}
}

func TestWriteQueueCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueueCSV(&buf, sampleQueue()); err != nil {
		t.Fatalf("write queue: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read queue csv: %v", err)
	}
	if len(records) != 7 {
		t.Fatalf("expected header plus 6 rows, got %d", len(records))
	}
	if records[0][4] != "Lead time (days)" || records[0][6] != "Recommended action" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "1" || records[1][5] != "HIGH" || records[1][8] != "0.9000" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
}
