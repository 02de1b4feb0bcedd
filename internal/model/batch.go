package model

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gota/gota/series"

	"noshow-risk-audit/internal/appointments"
)

const (
	// DefaultCutoff is the probability at which a row is predicted no-show.
	DefaultCutoff = 0.5

	ColProbability = "proba_noshow"
	ColPrediction  = "pred_noshow_50"
)

// BatchResult summarizes a batch scoring pass.
type BatchResult struct {
	Rows      int `json:"rows"`
	Predicted int `json:"predicted_no_show"`
}

// InvalidInputError marks a scoring input that cannot be used as given.
type InvalidInputError struct {
	Err error
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

func invalidInput(err error) error {
	var missing *appointments.MissingColumnsError
	if errors.As(err, &missing) {
		return err
	}
	return &InvalidInputError{Err: err}
}

// ScoreCSV reads a CSV, scores every row with p and writes the input with
// probability and thresholded prediction columns appended. Inputs missing a
// required column are rejected with *appointments.MissingColumnsError, other
// unusable input with *InvalidInputError.
func ScoreCSV(r io.Reader, w io.Writer, p *Pipeline, cutoff float64) (BatchResult, error) {
	if p == nil {
		return BatchResult{}, fmt.Errorf("%w: no model loaded", ErrNotAvailable)
	}
	df, err := appointments.ReadFrame(r)
	if err != nil {
		return BatchResult{}, invalidInput(err)
	}
	examples, err := examplesFromFrame(df, p.Features(), nil)
	if err != nil {
		return BatchResult{}, invalidInput(err)
	}
	if len(examples) == 0 {
		return BatchResult{}, invalidInput(errors.New("no rows to score"))
	}
	probs, err := p.PredictAll(examples)
	if err != nil {
		return BatchResult{}, err
	}

	preds := make([]int, len(probs))
	result := BatchResult{Rows: len(probs)}
	for i, prob := range probs {
		if prob >= cutoff {
			preds[i] = 1
			result.Predicted++
		}
	}

	df = df.Mutate(series.New(probs, series.Float, ColProbability))
	df = df.Mutate(series.New(preds, series.Int, ColPrediction))
	if df.Err != nil {
		return BatchResult{}, fmt.Errorf("append predictions: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

// PredictOne scores a single row given as column -> value.
func PredictOne(p *Pipeline, fields map[string]string) (float64, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: no model loaded", ErrNotAvailable)
	}
	fs := p.Features()
	present := make([]string, 0, len(fields))
	for name := range fields {
		present = append(present, name)
	}
	if err := appointments.RequireColumns(present, fs.Columns()); err != nil {
		return 0, err
	}
	ex := Example{}
	for _, name := range fs.Categorical {
		ex.Categorical = append(ex.Categorical, strings.TrimSpace(fields[name]))
	}
	for _, name := range fs.Numeric {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[name]), 64)
		if err != nil {
			return 0, invalidInput(fmt.Errorf("column %s: invalid number %q", name, fields[name]))
		}
		ex.Numeric = append(ex.Numeric, v)
	}
	return p.PredictProba(ex)
}

// Band labels a single prediction for display.
func Band(prob float64) string {
	switch {
	case prob >= 0.50:
		return "high"
	case prob >= 0.25:
		return "medium"
	default:
		return "low"
	}
}
