package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const ruleWidth = 44

// Print renders the report for the console.
func Print(w io.Writer, report *Report) {
	fmt.Fprintln(w, "No-Show Risk Audit")
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	if report.Source != "" {
		fmt.Fprintf(w, "Input: %s\n", filepath.Base(report.Source))
	}
	fmt.Fprintf(w, "Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04"))
	if !report.Filter.IsZero() {
		fmt.Fprintf(w, "Filtered rows: %d\n", report.TotalRows)
	}
	summary := report.Overview.Summary
	fmt.Fprintf(w, "Scheduled: %d | Attended: %d | No-shows: %d\n", summary.Scheduled, summary.Attended, summary.NoShows)
	fmt.Fprintf(w, "Attendance rate: %s | No-show rate: %s\n", percent(summary.AttendanceRate), percent(summary.NoShowRate))
	fmt.Fprintf(w, "Estimated loss: %.2f (avg value %.2f)\n", report.Overview.Loss.NoShowLoss, report.Overview.Loss.AverageValue)
	if report.InvalidRows > 0 {
		fmt.Fprintf(w, "Invalid rows skipped: %d\n", report.InvalidRows)
	}

	section(w, "No-show rate by area")
	if len(report.Overview.NoShowByArea) == 0 {
		fmt.Fprintln(w, "No appointments found.")
	}
	for _, entry := range report.Overview.NoShowByArea {
		fmt.Fprintf(w, "%s | scheduled %d | no-shows %d | rate %s\n", entry.Key, entry.Scheduled, entry.NoShows, percent(entry.Rate))
	}

	section(w, "No-show rate by channel")
	for _, entry := range report.Overview.NoShowByChannel {
		fmt.Fprintf(w, "%s: %s (%d of %d)\n", entry.Key, percent(entry.Rate), entry.NoShows, entry.Scheduled)
	}

	section(w, "Lead time impact (days)")
	for _, entry := range report.Overview.LeadTime {
		fmt.Fprintf(w, "%-6s | scheduled %d | rate %s\n", entry.Key, entry.Scheduled, percent(entry.Rate))
	}

	if len(report.Reveal.Clusters) > 0 {
		section(w, "Priority clusters")
		for i, cluster := range report.Reveal.Clusters {
			fmt.Fprintf(w, "%s | rate %s | lead %.1f days | loss %.2f | score %.1f | cum. loss %s\n",
				cluster.Label,
				percent(cluster.NoShowRate),
				cluster.MeanLeadTimeDays,
				cluster.EstimatedLoss,
				cluster.PriorityScore,
				percent(report.Reveal.LossShare[i]),
			)
		}
	}

	section(w, "Risk model")
	if report.Predict.ModelStatus != StatusOK {
		fmt.Fprintf(w, "Model: %s\n", report.Predict.ModelStatus)
		if report.Predict.Error != "" {
			fmt.Fprintf(w, "Reason: %s\n", report.Predict.Error)
		}
	} else {
		fmt.Fprintf(w, "Validation AUC: %.3f (trained on %d rows)\n", report.Predict.AUC, report.Predict.NTrain)
		fmt.Fprintf(w, "Scored: %d | moderate or above: %d | high: %d\n", report.Predict.Scored, report.Predict.ModerateRisk, report.Predict.HighRisk)
		for _, feature := range report.Predict.Importance {
			fmt.Fprintf(w, "  %-32s %+.4f\n", feature.Feature, feature.Coefficient)
		}
	}

	act := report.Act
	section(w, "Action plan")
	fmt.Fprintf(w, "Thresholds: moderate %.2f | high %.2f\n", act.Thresholds.Moderate, act.Thresholds.High)
	fmt.Fprintf(w, "What-if: %s fewer no-shows recovers %.2f\n", percent(act.Reduction), act.RecoveredValue)
	if act.ModelStatus != StatusOK {
		fmt.Fprintf(w, "Queue: %s\n", act.ModelStatus)
		return
	}
	fmt.Fprintf(w, "HIGH: %d | MODERATE: %d | LOW: %d | manual %d | automated %d\n",
		act.Summary.High, act.Summary.Moderate, act.Summary.Low, act.Summary.Manual, act.Summary.Automated)
	for _, group := range act.Groups {
		fmt.Fprintf(w, "%s | %s | %s | %d patients | mean risk %s\n",
			group.Tier, group.AgeGroup, group.Action, group.Count, percent(group.MeanRisk))
	}

	if len(act.QueuePreview) > 0 {
		section(w, "Top of queue")
		for _, item := range act.QueuePreview {
			fmt.Fprintf(w, "%d | age %d | %s | %s | %s | risk %s | %s\n",
				item.ID, item.Age, item.Area, item.Channel, item.Tier, percent(item.Risk), item.Action)
		}
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
}

func percent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
