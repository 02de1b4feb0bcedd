// Package action turns scored appointments into an operational work queue:
// each row gets a risk tier, a contact action and an execution type.
package action

import (
	"math"
	"sort"
	"strings"

	"noshow-risk-audit/internal/model"
)

type Tier string

const (
	TierLow      Tier = "LOW"
	TierModerate Tier = "MODERATE"
	TierHigh     Tier = "HIGH"
)

// Rank orders tiers for display: HIGH first.
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 0
	case TierModerate:
		return 1
	case TierLow:
		return 2
	}
	return 9
}

// Contact actions. The set is closed; ExecutionType relies on it.
const (
	ActionManualCall          = "Manual call - active confirmation"
	ActionDualChannelMessage  = "Automated dual-channel message (WhatsApp + SMS) - double confirmation"
	ActionMessageWithReminder = "Automated message + standard reminder - confirm"
	ActionStandardReminder    = "Standard reminder only"
)

// Execution says who carries out an action.
type Execution string

const (
	ExecutionManual    Execution = "manual"
	ExecutionAutomated Execution = "automated"
)

// Operator slider ranges for the thresholds.
const (
	MinModerate = 0.30
	MaxModerate = 0.90
	MinHigh     = 0.40
	MaxHigh     = 0.95
)

// Thresholds split [0, 1] into LOW < Moderate <= MODERATE < High <= HIGH.
type Thresholds struct {
	Moderate float64 `json:"moderate"`
	High     float64 `json:"high"`
}

// DefaultThresholds are the operator defaults.
var DefaultThresholds = Thresholds{Moderate: 0.55, High: 0.75}

// NewThresholds clamps both values to their ranges and raises high to
// moderate when it is lower.
func NewThresholds(moderate, high float64) Thresholds {
	th := Thresholds{
		Moderate: clamp(moderate, MinModerate, MaxModerate),
		High:     clamp(high, MinHigh, MaxHigh),
	}
	if th.High < th.Moderate {
		th.High = th.Moderate
	}
	return th
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func (th Thresholds) Tier(risk float64) Tier {
	switch {
	case risk >= th.High:
		return TierHigh
	case risk >= th.Moderate:
		return TierModerate
	default:
		return TierLow
	}
}

// Action picks the contact action. Seniors in the high tier get a person on
// the phone; everyone else is automated.
func (th Thresholds) Action(risk float64, age60Plus bool) string {
	switch th.Tier(risk) {
	case TierHigh:
		if age60Plus {
			return ActionManualCall
		}
		return ActionDualChannelMessage
	case TierModerate:
		return ActionMessageWithReminder
	default:
		return ActionStandardReminder
	}
}

// ExecutionType classifies an action label by keyword.
func ExecutionType(action string) Execution {
	if strings.Contains(strings.ToLower(action), "call") {
		return ExecutionManual
	}
	return ExecutionAutomated
}

type Item struct {
	ID           int64     `json:"id"`
	Age          int       `json:"age"`
	Age60Plus    bool      `json:"age_60_plus"`
	Channel      string    `json:"channel"`
	Area         string    `json:"area"`
	LeadTimeDays int       `json:"lead_time_days"`
	Risk         float64   `json:"risk"`
	Tier         Tier      `json:"tier"`
	Action       string    `json:"action"`
	Execution    Execution `json:"execution"`
}

// BuildQueue labels every scored row and orders the queue by risk, highest
// first; equal risks keep appointment id order.
func BuildQueue(scored []model.ScoredRecord, th Thresholds) []Item {
	queue := make([]Item, len(scored))
	for i, row := range scored {
		act := th.Action(row.Risk, row.Age60Plus)
		queue[i] = Item{
			ID:           row.ID,
			Age:          row.Age,
			Age60Plus:    row.Age60Plus,
			Channel:      string(row.Channel),
			Area:         row.Area,
			LeadTimeDays: row.LeadTimeDays,
			Risk:         row.Risk,
			Tier:         th.Tier(row.Risk),
			Action:       act,
			Execution:    ExecutionType(act),
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].Risk != queue[j].Risk {
			return queue[i].Risk > queue[j].Risk
		}
		return queue[i].ID < queue[j].ID
	})
	return queue
}

func CountAtOrAbove(scored []model.ScoredRecord, cutoff float64) int {
	count := 0
	for _, row := range scored {
		if row.Risk >= cutoff {
			count++
		}
	}
	return count
}
