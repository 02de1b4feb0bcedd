// Package kpi computes the group-by-and-ratio views over an appointment table.
// Every function accepts an empty table and returns zero rates instead of
// failing.
package kpi

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"noshow-risk-audit/internal/appointments"
)

type Summary struct {
	Scheduled      int     `json:"scheduled"`
	Attended       int     `json:"attended"`
	NoShows        int     `json:"no_shows"`
	AttendanceRate float64 `json:"attendance_rate"`
	NoShowRate     float64 `json:"no_show_rate"`
}

type Stage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GroupRate is the no-show or attendance rate of one group.
type GroupRate struct {
	Key       string  `json:"key"`
	Scheduled int     `json:"scheduled"`
	NoShows   int     `json:"no_shows"`
	Attended  int     `json:"attended"`
	Rate      float64 `json:"rate"`
}

// LossEstimate is the money lost to no-shows in the table.
type LossEstimate struct {
	AverageValue float64 `json:"average_value"`
	NoShowLoss   float64 `json:"no_show_loss"`
}

// Ratio divides and returns 0 for an empty denominator.
func Ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func Overall(records []appointments.Record) Summary {
	summary := Summary{}
	for _, record := range records {
		if record.Scheduled {
			summary.Scheduled++
		}
		if record.Attended {
			summary.Attended++
		}
		if record.NoShow {
			summary.NoShows++
		}
	}
	summary.AttendanceRate = Ratio(summary.Attended, summary.Scheduled)
	summary.NoShowRate = Ratio(summary.NoShows, summary.Scheduled)
	return summary
}

func Funnel(records []appointments.Record) []Stage {
	summary := Overall(records)
	return []Stage{
		{Name: "Scheduled", Count: summary.Scheduled},
		{Name: "Attended", Count: summary.Attended},
		{Name: "No-show", Count: summary.NoShows},
	}
}

// MeanValue is the mean appointment value, 0 for an empty table.
func MeanValue(records []appointments.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, record := range records {
		sum += record.AverageValue
	}
	return sum / float64(len(records))
}

// Loss prices every no-show at the table's mean value.
func Loss(records []appointments.Record) LossEstimate {
	value := MeanValue(records)
	return LossEstimate{
		AverageValue: value,
		NoShowLoss:   float64(Overall(records).NoShows) * value,
	}
}

// SimulateReduction estimates recoverable revenue if the no-show count fell
// by fraction of the scheduled volume, linearly. fraction is clamped to [0, 1].
func SimulateReduction(records []appointments.Record, fraction float64) float64 {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return float64(Overall(records).Scheduled) * fraction * MeanValue(records)
}

type Dimension struct {
	Name string
	Key  func(appointments.Record) string
}

var (
	ByArea      = Dimension{Name: "area", Key: func(r appointments.Record) string { return r.Area }}
	ByChannel   = Dimension{Name: "channel", Key: func(r appointments.Record) string { return string(r.Channel) }}
	ByAgeGroup  = Dimension{Name: "age_group", Key: func(r appointments.Record) string { return r.AgeGroup() }}
	BySpecialty = Dimension{Name: "specialty", Key: func(r appointments.Record) string { return r.Specialty }}
	ByLeadTime  = Dimension{Name: "lead_time_bucket", Key: func(r appointments.Record) string { return LeadTimeBucket(r.LeadTimeDays) }}
)

var Dimensions = []Dimension{ByArea, ByChannel, ByAgeGroup, BySpecialty, ByLeadTime}

func DimensionByName(name string) (Dimension, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, dim := range Dimensions {
		if dim.Name == name {
			return dim, nil
		}
	}
	names := make([]string, 0, len(Dimensions))
	for _, dim := range Dimensions {
		names = append(names, dim.Name)
	}
	return Dimension{}, fmt.Errorf("unknown dimension %q (expected one of %s)", name, strings.Join(names, ", "))
}

func group(records []appointments.Record, dim Dimension) []GroupRate {
	buckets := map[string]*GroupRate{}
	for _, record := range records {
		key := dim.Key(record)
		entry, ok := buckets[key]
		if !ok {
			entry = &GroupRate{Key: key}
			buckets[key] = entry
		}
		entry.Scheduled++
		if record.NoShow {
			entry.NoShows++
		}
		if record.Attended {
			entry.Attended++
		}
	}
	result := make([]GroupRate, 0, len(buckets))
	for _, entry := range buckets {
		result = append(result, *entry)
	}
	return result
}

func sortByRate(rates []GroupRate) {
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].Rate != rates[j].Rate {
			return rates[i].Rate > rates[j].Rate
		}
		return rates[i].Key < rates[j].Key
	})
}

// RateBy returns count, no-show count and no-show rate per group, highest
// rate first.
func RateBy(records []appointments.Record, dim Dimension) []GroupRate {
	rates := group(records, dim)
	for i := range rates {
		rates[i].Rate = Ratio(rates[i].NoShows, rates[i].Scheduled)
	}
	sortByRate(rates)
	return rates
}

// AttendanceBy is RateBy for the attendance rate.
func AttendanceBy(records []appointments.Record, dim Dimension) []GroupRate {
	rates := group(records, dim)
	for i := range rates {
		rates[i].Rate = Ratio(rates[i].Attended, rates[i].Scheduled)
	}
	sortByRate(rates)
	return rates
}

// Top truncates rates to n entries; n <= 0 keeps everything.
func Top(rates []GroupRate, n int) []GroupRate {
	if n > 0 && len(rates) > n {
		return rates[:n]
	}
	return rates
}
