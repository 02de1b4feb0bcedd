// Package report assembles every dashboard view of an appointment table into a
// single document that can be printed, exported or stored.
package report

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/action"
	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/kpi"
	"noshow-risk-audit/internal/model"
)

const (
	defaultTopClusters  = 10
	defaultTopAreas     = 10
	defaultQueuePreview = 20
	defaultReduction    = 0.10

	StatusOK               = "ok"
	StatusInsufficientData = "insufficient data"
)

// Options tunes a report.
type Options struct {
	Thresholds   action.Thresholds
	TopClusters  int
	TopAreas     int
	QueuePreview int
	Reduction    float64
	Weights      kpi.PriorityWeights
}

// DefaultOptions mirrors the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		Thresholds:   action.DefaultThresholds,
		TopClusters:  defaultTopClusters,
		TopAreas:     defaultTopAreas,
		QueuePreview: defaultQueuePreview,
		Reduction:    defaultReduction,
		Weights:      kpi.DefaultPriorityWeights,
	}
}

type Overview struct {
	Summary          kpi.Summary      `json:"summary"`
	Funnel           []kpi.Stage      `json:"funnel"`
	Loss             kpi.LossEstimate `json:"loss"`
	NoShowByArea     []kpi.GroupRate  `json:"no_show_by_area"`
	NoShowByChannel  []kpi.GroupRate  `json:"no_show_by_channel"`
	NoShowByAgeGroup []kpi.GroupRate  `json:"no_show_by_age_group"`
	AttendanceByArea []kpi.GroupRate  `json:"attendance_by_area"`
	LeadTime         []kpi.GroupRate  `json:"lead_time_impact"`
}

type Reveal struct {
	Clusters  []kpi.Cluster       `json:"clusters"`
	LossShare []float64           `json:"loss_share"`
	Weights   kpi.PriorityWeights `json:"priority_weights"`
}

type Predict struct {
	ModelStatus  string                `json:"model_status"`
	Error        string                `json:"error,omitempty"`
	AUC          float64               `json:"auc,omitempty"`
	NTrain       int                   `json:"n_train,omitempty"`
	Importance   []model.FeatureWeight `json:"feature_importance,omitempty"`
	Scored       int                   `json:"scored"`
	HighRisk     int                   `json:"high_risk"`
	ModerateRisk int                   `json:"moderate_or_above"`
}

type Act struct {
	ModelStatus    string            `json:"model_status"`
	Thresholds     action.Thresholds `json:"thresholds"`
	Summary        action.Summary    `json:"summary"`
	Groups         []action.Group    `json:"groups"`
	QueuePreview   []action.Item     `json:"queue_preview"`
	Reduction      float64           `json:"reduction"`
	RecoveredValue float64           `json:"recovered_value"`
}

// Report is one run over a filtered table.
type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Source      string              `json:"source"`
	InvalidRows int                 `json:"invalid_rows"`
	TotalRows   int                 `json:"total_rows"`
	Filter      appointments.Filter `json:"filter"`
	Overview    Overview            `json:"overview"`
	Reveal      Reveal              `json:"reveal"`
	Predict     Predict             `json:"predict"`
	Act         Act                 `json:"act"`

	// Queue is the full work queue; only the preview is serialized.
	Queue []action.Item `json:"-"`
}

// Builder produces reports. It holds the model trainer so repeated builds
// over the same table reuse one model.
type Builder struct {
	trainer *model.Trainer
	log     logrus.FieldLogger
}

func NewBuilder(trainer *model.Trainer, log logrus.FieldLogger) *Builder {
	return &Builder{trainer: trainer, log: log}
}

// Build computes every view over the filtered rows. The model is trained on
// those same rows; too few of them is reported in ModelStatus rather than
// returned.
func (b *Builder) Build(dataset appointments.Dataset, filter appointments.Filter, opts Options) (*Report, error) {
	records := filter.Apply(dataset.Records)
	opts.Thresholds = action.NewThresholds(opts.Thresholds.Moderate, opts.Thresholds.High)

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Source:      dataset.Path,
		InvalidRows: dataset.InvalidRows,
		TotalRows:   len(records),
		Filter:      filter,
		Overview: Overview{
			Summary:          kpi.Overall(records),
			Funnel:           kpi.Funnel(records),
			Loss:             kpi.Loss(records),
			NoShowByArea:     kpi.Top(kpi.RateBy(records, kpi.ByArea), opts.TopAreas),
			NoShowByChannel:  kpi.RateBy(records, kpi.ByChannel),
			NoShowByAgeGroup: kpi.RateBy(records, kpi.ByAgeGroup),
			AttendanceByArea: kpi.Top(kpi.AttendanceBy(records, kpi.ByArea), opts.TopAreas),
			LeadTime:         kpi.LeadTimeImpact(records),
		},
	}

	clusters := kpi.Clusters(records, opts.Weights, opts.TopClusters)
	report.Reveal = Reveal{Clusters: clusters, LossShare: kpi.LossShare(clusters), Weights: opts.Weights}

	report.Act = Act{
		ModelStatus:    StatusInsufficientData,
		Thresholds:     opts.Thresholds,
		Reduction:      opts.Reduction,
		RecoveredValue: kpi.SimulateReduction(records, opts.Reduction),
	}
	report.Predict = Predict{ModelStatus: StatusInsufficientData}

	trained, err := b.trainer.Train(records)
	if err != nil {
		if !errors.Is(err, model.ErrInsufficientData) {
			return nil, err
		}
		report.Predict.Error = err.Error()
		return report, nil
	}
	report.Predict.AUC = trained.AUC
	report.Predict.NTrain = trained.NTrain
	report.Predict.Importance = trained.Importance

	scored, err := model.Score(records, trained)
	if err != nil {
		if !errors.Is(err, model.ErrNotAvailable) {
			return nil, err
		}
		report.Predict.Error = err.Error()
		return report, nil
	}
	report.Predict.ModelStatus = StatusOK
	report.Predict.Scored = len(scored)
	report.Predict.HighRisk = action.CountAtOrAbove(scored, opts.Thresholds.High)
	report.Predict.ModerateRisk = action.CountAtOrAbove(scored, opts.Thresholds.Moderate)

	queue := action.BuildQueue(scored, opts.Thresholds)
	report.Queue = queue
	report.Act.ModelStatus = StatusOK
	report.Act.Summary = action.Summarize(queue)
	report.Act.Groups = action.GroupActions(queue)
	report.Act.QueuePreview = preview(queue, opts.QueuePreview)

	b.log.WithFields(logrus.Fields{
		"rows":      len(records),
		"scored":    len(scored),
		"high_risk": report.Predict.HighRisk,
	}).Debug("report built")
	return report, nil
}

func preview(queue []action.Item, n int) []action.Item {
	if n > 0 && len(queue) > n {
		return queue[:n]
	}
	return queue
}

// WriteJSON saves the report as indented JSON.
func WriteJSON(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
