package action

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Summary is the operational load of a queue.
type Summary struct {
	Total         int     `json:"total"`
	High          int     `json:"high"`
	Moderate      int     `json:"moderate"`
	Low           int     `json:"low"`
	Manual        int     `json:"manual"`
	Automated     int     `json:"automated"`
	HighShare     float64 `json:"high_share"`
	ModerateShare float64 `json:"moderate_share"`
	LowShare      float64 `json:"low_share"`
	ManualShare   float64 `json:"manual_share"`
}

func Summarize(queue []Item) Summary {
	s := Summary{Total: len(queue)}
	for _, item := range queue {
		switch item.Tier {
		case TierHigh:
			s.High++
		case TierModerate:
			s.Moderate++
		case TierLow:
			s.Low++
		}
		if item.Execution == ExecutionManual {
			s.Manual++
		} else {
			s.Automated++
		}
	}
	s.HighShare = share(s.High, s.Total)
	s.ModerateShare = share(s.Moderate, s.Total)
	s.LowShare = share(s.Low, s.Total)
	s.ManualShare = share(s.Manual, s.Total)
	return s
}

func share(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Group aggregates queue rows sharing tier, age group, action and execution.
type Group struct {
	Tier             Tier      `json:"tier"`
	AgeGroup         string    `json:"age_group"`
	Action           string    `json:"action"`
	Execution        Execution `json:"execution"`
	Count            int       `json:"count"`
	MeanRisk         float64   `json:"mean_risk"`
	MeanLeadTimeDays float64   `json:"mean_lead_time_days"`
}

type groupKey struct {
	tier      Tier
	senior    bool
	action    string
	execution Execution
}

// GroupActions is the analyst guide: HIGH groups first, then MODERATE, then
// LOW, larger groups first within a tier.
func GroupActions(queue []Item) []Group {
	type acc struct {
		count   int
		riskSum float64
		leadSum float64
	}
	accs := map[groupKey]*acc{}
	for _, item := range queue {
		key := groupKey{tier: item.Tier, senior: item.Age60Plus, action: item.Action, execution: item.Execution}
		a, ok := accs[key]
		if !ok {
			a = &acc{}
			accs[key] = a
		}
		a.count++
		a.riskSum += item.Risk
		a.leadSum += float64(item.LeadTimeDays)
	}

	groups := make([]Group, 0, len(accs))
	for key, a := range accs {
		ageGroup := "<60"
		if key.senior {
			ageGroup = "60+"
		}
		groups = append(groups, Group{
			Tier:             key.tier,
			AgeGroup:         ageGroup,
			Action:           key.action,
			Execution:        key.execution,
			Count:            a.count,
			MeanRisk:         a.riskSum / float64(a.count),
			MeanLeadTimeDays: a.leadSum / float64(a.count),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Tier.Rank() != groups[j].Tier.Rank() {
			return groups[i].Tier.Rank() < groups[j].Tier.Rank()
		}
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		if groups[i].AgeGroup != groups[j].AgeGroup {
			return groups[i].AgeGroup < groups[j].AgeGroup
		}
		return groups[i].Action < groups[j].Action
	})
	return groups
}

var QueueHeaders = []string{
	"ID",
	"Age",
	"Channel",
	"Area",
	"Lead time (days)",
	"Risk tier",
	"Recommended action",
	"Execution",
	"Risk (0-1)",
}

// WriteQueueCSV exports the queue with readable headers.
func WriteQueueCSV(w io.Writer, queue []Item) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(QueueHeaders); err != nil {
		return err
	}
	for _, item := range queue {
		record := []string{
			strconv.FormatInt(item.ID, 10),
			strconv.Itoa(item.Age),
			item.Channel,
			item.Area,
			strconv.Itoa(item.LeadTimeDays),
			string(item.Tier),
			item.Action,
			string(item.Execution),
			fmt.Sprintf("%.4f", item.Risk),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
