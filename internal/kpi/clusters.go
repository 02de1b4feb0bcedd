package kpi

import (
	"sort"

	"noshow-risk-audit/internal/appointments"
)

// PriorityWeights combine a cluster's loss, no-show rate and mean lead time
// into one ranking score. The values are an operating policy, not a fitted
// quantity; override them per deployment.
type PriorityWeights struct {
	Loss     float64 `json:"loss"`
	Rate     float64 `json:"rate"`
	LeadTime float64 `json:"lead_time"`
}

// DefaultPriorityWeights is the policy used when none is configured.
var DefaultPriorityWeights = PriorityWeights{Loss: 1, Rate: 10000, LeadTime: 30}

// Score applies the weights.
func (w PriorityWeights) Score(loss, rate, meanLeadDays float64) float64 {
	return loss*w.Loss + rate*w.Rate + meanLeadDays*w.LeadTime
}

// Cluster is an (area, channel) segment with its loss and priority.
type Cluster struct {
	Label            string               `json:"cluster"`
	Area             string               `json:"area"`
	Channel          appointments.Channel `json:"channel"`
	Scheduled        int                  `json:"scheduled"`
	NoShows          int                  `json:"no_shows"`
	NoShowRate       float64              `json:"no_show_rate"`
	MeanLeadTimeDays float64              `json:"mean_lead_time_days"`
	AverageValue     float64              `json:"average_value"`
	EstimatedLoss    float64              `json:"estimated_loss"`
	PriorityScore    float64              `json:"priority_score"`
}

type clusterKey struct {
	area    string
	channel appointments.Channel
}

type clusterAcc struct {
	scheduled int
	noShows   int
	valueSum  float64
	leadSum   float64
}

// Clusters ranks (area, channel) segments by priority score, highest first,
// and keeps the top n (n <= 0 keeps all).
func Clusters(records []appointments.Record, weights PriorityWeights, n int) []Cluster {
	accs := map[clusterKey]*clusterAcc{}
	for _, record := range records {
		key := clusterKey{area: record.Area, channel: record.Channel}
		acc, ok := accs[key]
		if !ok {
			acc = &clusterAcc{}
			accs[key] = acc
		}
		acc.scheduled++
		if record.NoShow {
			acc.noShows++
		}
		acc.valueSum += record.AverageValue
		acc.leadSum += float64(record.LeadTimeDays)
	}

	result := make([]Cluster, 0, len(accs))
	for key, acc := range accs {
		count := float64(acc.scheduled)
		cluster := Cluster{
			Label:            key.area + " | " + string(key.channel),
			Area:             key.area,
			Channel:          key.channel,
			Scheduled:        acc.scheduled,
			NoShows:          acc.noShows,
			NoShowRate:       Ratio(acc.noShows, acc.scheduled),
			MeanLeadTimeDays: acc.leadSum / count,
			AverageValue:     acc.valueSum / count,
		}
		cluster.EstimatedLoss = float64(cluster.NoShows) * cluster.AverageValue
		cluster.PriorityScore = weights.Score(cluster.EstimatedLoss, cluster.NoShowRate, cluster.MeanLeadTimeDays)
		result = append(result, cluster)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PriorityScore != result[j].PriorityScore {
			return result[i].PriorityScore > result[j].PriorityScore
		}
		return result[i].Label < result[j].Label
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// LossShare returns each cluster's cumulative share of the total estimated
// loss in ranking order, for a Pareto view.
func LossShare(clusters []Cluster) []float64 {
	total := 0.0
	for _, cluster := range clusters {
		total += cluster.EstimatedLoss
	}
	shares := make([]float64, len(clusters))
	if total == 0 {
		return shares
	}
	running := 0.0
	for i, cluster := range clusters {
		running += cluster.EstimatedLoss
		shares[i] = running / total
	}
	return shares
}
