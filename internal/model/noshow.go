// Package model trains and applies the no-show risk classifier: a one-hot
// encoder with numeric passthrough feeding an L2 logistic regression.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/cache"
)

const (
	// MinTrainingRows is the scheduled-row floor below which no model is fit.
	MinTrainingRows = 500
	// DefaultTopFeatures is the length of the importance ranking.
	DefaultTopFeatures = 15
)

var (
	ErrInsufficientData = errors.New("not enough data to train the no-show model")
	ErrNotAvailable     = errors.New("risk score not available")
)

// NoShowFeatures is the feature set of the dashboard model.
var NoShowFeatures = FeatureSet{
	Categorical: []string{"channel", "area"},
	Numeric:     []string{"age", "age_60_plus", "lead_time_minutes", "lead_time_days"},
}

func exampleOf(r appointments.Record) Example {
	return Example{
		Categorical: []string{string(r.Channel), r.Area},
		Numeric: []float64{
			float64(r.Age),
			r.Age60PlusFlag(),
			float64(r.LeadTimeMinutes),
			float64(r.LeadTimeDays),
		},
	}
}

// FeatureWeight ranks one encoded feature by coefficient magnitude. It is a
// reading aid, not a causal effect: a one-hot area coefficient mixes the
// area's baseline rate with anything else correlated with it.
type FeatureWeight struct {
	Feature     string  `json:"feature"`
	Importance  float64 `json:"importance"`
	Coefficient float64 `json:"coefficient"`
}

// Trained is a fitted dashboard model and its validation quality.
type Trained struct {
	Pipeline   *Pipeline       `json:"pipeline"`
	AUC        float64         `json:"auc"`
	NTrain     int             `json:"n_train"`
	Importance []FeatureWeight `json:"feature_importance"`
	Features   FeatureSet      `json:"features"`
	TrainedAt  time.Time       `json:"trained_at"`
}

// TrainOptions controls Train.
type TrainOptions struct {
	MinRows            int
	ValidationFraction float64
	Seed               int64
	TopFeatures        int
	Fit                FitConfig
}

// DefaultTrainOptions holds out 25% with seed 42.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		MinRows:            MinTrainingRows,
		ValidationFraction: 0.25,
		Seed:               42,
		TopFeatures:        DefaultTopFeatures,
		Fit:                DefaultFitConfig,
	}
}

// Train fits the model on the scheduled rows of records. It returns
// ErrInsufficientData below the row floor or when only one outcome occurs.
func Train(records []appointments.Record, opts TrainOptions) (*Trained, error) {
	base := appointments.ScheduledOnly(records)
	if len(base) < opts.MinRows {
		return nil, fmt.Errorf("%w: %d scheduled rows, need %d", ErrInsufficientData, len(base), opts.MinRows)
	}

	examples := make([]Example, len(base))
	labels := make([]bool, len(base))
	positives := 0
	for i, record := range base {
		examples[i] = exampleOf(record)
		labels[i] = record.NoShow
		if record.NoShow {
			positives++
		}
	}
	if positives < 2 || len(base)-positives < 2 {
		return nil, fmt.Errorf("%w: %d no-shows out of %d rows", ErrInsufficientData, positives, len(base))
	}

	trainIdx, valIdx := stratifiedSplit(labels, opts.ValidationFraction, opts.Seed)
	trainX, trainY := pick(examples, labels, trainIdx)
	valX, valY := pick(examples, labels, valIdx)

	pipeline, err := FitPipeline(NoShowFeatures, trainX, trainY, opts.Fit)
	if err != nil {
		return nil, fmt.Errorf("fit no-show model: %w", err)
	}
	probs, err := pipeline.PredictAll(valX)
	if err != nil {
		return nil, err
	}
	auc, err := ROCAUC(probs, valY)
	if err != nil {
		return nil, fmt.Errorf("%w: validation split: %v", ErrInsufficientData, err)
	}

	return &Trained{
		Pipeline:   pipeline,
		AUC:        auc,
		NTrain:     len(base),
		Importance: Importance(pipeline, opts.TopFeatures),
		Features:   NoShowFeatures,
		TrainedAt:  time.Now().UTC(),
	}, nil
}

func pick(examples []Example, labels []bool, idx []int) ([]Example, []bool) {
	xs := make([]Example, len(idx))
	ys := make([]bool, len(idx))
	for i, j := range idx {
		xs[i] = examples[j]
		ys[i] = labels[j]
	}
	return xs, ys
}

// Importance ranks encoded features by absolute coefficient, keeping top n
// (n <= 0 keeps all).
func Importance(p *Pipeline, n int) []FeatureWeight {
	names := p.FeatureNames()
	weights := make([]FeatureWeight, len(names))
	for i, name := range names {
		weights[i] = FeatureWeight{
			Feature:     name,
			Importance:  math.Abs(p.Coefficients[i]),
			Coefficient: p.Coefficients[i],
		}
	}
	sort.SliceStable(weights, func(i, j int) bool {
		return weights[i].Importance > weights[j].Importance
	})
	if n > 0 && len(weights) > n {
		weights = weights[:n]
	}
	return weights
}

// ScoredRecord is an appointment with its no-show probability.
type ScoredRecord struct {
	appointments.Record
	Risk float64 `json:"risk"`
}

// Score adds a risk to every scheduled row. It returns ErrNotAvailable when
// there is no model or nothing to score.
func Score(records []appointments.Record, trained *Trained) ([]ScoredRecord, error) {
	if trained == nil || trained.Pipeline == nil {
		return nil, fmt.Errorf("%w: no trained model", ErrNotAvailable)
	}
	base := appointments.ScheduledOnly(records)
	if len(base) == 0 {
		return nil, fmt.Errorf("%w: no scheduled rows", ErrNotAvailable)
	}
	scored := make([]ScoredRecord, len(base))
	for i, record := range base {
		risk, err := trained.Pipeline.PredictProba(exampleOf(record))
		if err != nil {
			return nil, err
		}
		scored[i] = ScoredRecord{Record: record, Risk: risk}
	}
	return scored, nil
}

// Trainer memoizes Train by a fingerprint of its input table. A Trainer
// belongs to whoever creates it.
type Trainer struct {
	opts TrainOptions
	memo *cache.Memo[*Trained]
	log  logrus.FieldLogger
}

// NewTrainer returns a Trainer keeping up to 16 models.
func NewTrainer(opts TrainOptions, log logrus.FieldLogger) *Trainer {
	return &Trainer{opts: opts, memo: cache.New[*Trained](16), log: log}
}

// Train returns the cached model for records or fits a new one.
func (t *Trainer) Train(records []appointments.Record) (*Trained, error) {
	key := cache.Key(appointments.Fingerprint(records), t.opts.MinRows, t.opts.ValidationFraction, t.opts.Seed, t.opts.Fit)
	return t.memo.Get(key, func() (*Trained, error) {
		started := time.Now()
		trained, err := Train(records, t.opts)
		if err != nil {
			t.log.WithError(err).WithField("rows", len(records)).Info("no-show model not trained")
			return nil, err
		}
		t.log.WithFields(logrus.Fields{
			"rows":     trained.NTrain,
			"auc":      fmt.Sprintf("%.4f", trained.AUC),
			"features": trained.Pipeline.Width(),
			"elapsed":  time.Since(started).Round(time.Millisecond).String(),
		}).Info("no-show model trained")
		return trained, nil
	})
}
