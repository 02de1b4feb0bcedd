package kpi

import "noshow-risk-audit/internal/appointments"

// LeadTimeBuckets are the fixed lead-time ranges in days, in display order.
var LeadTimeBuckets = []string{"0", "1", "2-3", "4-7", "8-14", "15-30", "30+"}

// LeadTimeBucket maps whole lead-time days to its range label.
func LeadTimeBucket(days int) string {
	switch {
	case days <= 0:
		return "0"
	case days == 1:
		return "1"
	case days <= 3:
		return "2-3"
	case days <= 7:
		return "4-7"
	case days <= 14:
		return "8-14"
	case days <= 30:
		return "15-30"
	default:
		return "30+"
	}
}

// LeadTimeImpact returns one row per bucket, always all seven in order.
func LeadTimeImpact(records []appointments.Record) []GroupRate {
	index := make(map[string]int, len(LeadTimeBuckets))
	result := make([]GroupRate, len(LeadTimeBuckets))
	for i, label := range LeadTimeBuckets {
		index[label] = i
		result[i] = GroupRate{Key: label}
	}
	for _, record := range records {
		entry := &result[index[LeadTimeBucket(record.LeadTimeDays)]]
		entry.Scheduled++
		if record.NoShow {
			entry.NoShows++
		}
		if record.Attended {
			entry.Attended++
		}
	}
	for i := range result {
		result[i].Rate = Ratio(result[i].NoShows, result[i].Scheduled)
	}
	return result
}
