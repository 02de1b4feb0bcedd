package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"

	"noshow-risk-audit/internal/appointments"
)

// Derived columns of the baseline variant.
const (
	ColLeadTimeHours = "lead_time_hours"
	ColSchedDOW      = "sched_dow"
	ColApptDOW       = "appt_dow"
)

// BaselineFeatures is the alternate model trained on the raw export columns.
// Its column set is what batch scoring requires.
var BaselineFeatures = FeatureSet{
	Categorical: []string{"Gender", "Neighbourhood"},
	Numeric: []string{
		"Age", "Scholarship", "Hipertension", "Diabetes", "Alcoholism", "Handcap",
		"SMS_received", ColLeadTimeHours, ColSchedDOW, ColApptDOW,
	},
}

// BaselineData is the prepared training table.
type BaselineData struct {
	Examples []Example
	Labels   []bool
}

// BaselineResult is the outcome of TrainBaseline.
type BaselineResult struct {
	Pipeline *Pipeline
	AUC      float64
	Report   ClassificationReport
	NTrain   int
	NTest    int
}

// targetColumns are accepted spellings of the outcome column.
var targetColumns = []string{"No-show", "NoShow"}

// PrepareBaseline derives the baseline feature columns from a raw export
// frame. Timestamps become lead time in hours and Monday-based weekdays;
// unparseable timestamps yield zeros.
func PrepareBaseline(df dataframe.DataFrame) (BaselineData, error) {
	names := df.Names()
	present := map[string]bool{}
	for _, name := range names {
		present[name] = true
	}

	target := ""
	for _, candidate := range targetColumns {
		if present[candidate] {
			target = candidate
			break
		}
	}
	if target == "" {
		return BaselineData{}, &appointments.MissingColumnsError{Missing: []string{targetColumns[0]}}
	}

	derived := map[string][]float64{}
	if present[appointments.ColScheduledDay] && present[appointments.ColAppointmentDay] {
		sched := df.Col(appointments.ColScheduledDay).Records()
		appt := df.Col(appointments.ColAppointmentDay).Records()
		hours := make([]float64, len(sched))
		schedDOW := make([]float64, len(sched))
		apptDOW := make([]float64, len(sched))
		for i := range sched {
			s, errS := appointments.ParseTimestamp(sched[i])
			a, errA := appointments.ParseTimestamp(appt[i])
			if errS == nil {
				schedDOW[i] = mondayWeekday(s)
			}
			if errA == nil {
				apptDOW[i] = mondayWeekday(a)
			}
			if errS == nil && errA == nil {
				hours[i] = a.Sub(s).Hours()
			}
		}
		derived[ColLeadTimeHours] = hours
		derived[ColSchedDOW] = schedDOW
		derived[ColApptDOW] = apptDOW
	}

	examples, err := examplesFromFrame(df, BaselineFeatures, derived)
	if err != nil {
		return BaselineData{}, err
	}
	outcomes := df.Col(target).Records()
	labels := make([]bool, len(outcomes))
	for i, value := range outcomes {
		labels[i] = appointments.ParseNoShow(value)
	}
	return BaselineData{Examples: examples, Labels: labels}, nil
}

func mondayWeekday(t time.Time) float64 {
	return float64((int(t.Weekday()) + 6) % 7)
}

// TrainBaseline fits the baseline pipeline on a stratified 80/20 split and
// evaluates it at a 0.5 cutoff.
func TrainBaseline(data BaselineData, cfg FitConfig) (*BaselineResult, error) {
	positives := 0
	for _, label := range data.Labels {
		if label {
			positives++
		}
	}
	if positives < 2 || len(data.Labels)-positives < 2 {
		return nil, fmt.Errorf("%w: %d no-shows out of %d rows", ErrInsufficientData, positives, len(data.Labels))
	}

	trainIdx, testIdx := stratifiedSplit(data.Labels, 0.20, 42)
	trainX, trainY := pick(data.Examples, data.Labels, trainIdx)
	testX, testY := pick(data.Examples, data.Labels, testIdx)

	pipeline, err := FitPipeline(BaselineFeatures, trainX, trainY, cfg)
	if err != nil {
		return nil, fmt.Errorf("fit baseline model: %w", err)
	}
	probs, err := pipeline.PredictAll(testX)
	if err != nil {
		return nil, err
	}
	auc, err := ROCAUC(probs, testY)
	if err != nil {
		return nil, fmt.Errorf("%w: test split: %v", ErrInsufficientData, err)
	}
	return &BaselineResult{
		Pipeline: pipeline,
		AUC:      auc,
		Report:   Classify(probs, testY, DefaultCutoff),
		NTrain:   len(trainX),
		NTest:    len(testX),
	}, nil
}

// examplesFromFrame builds examples from frame columns, preferring derived
// numeric columns when present. Missing columns are reported together.
func examplesFromFrame(df dataframe.DataFrame, fs FeatureSet, derived map[string][]float64) ([]Example, error) {
	available := append([]string{}, df.Names()...)
	for name := range derived {
		available = append(available, name)
	}
	if err := appointments.RequireColumns(available, fs.Columns()); err != nil {
		return nil, err
	}

	n := df.Nrow()
	cats := make([][]string, len(fs.Categorical))
	for i, name := range fs.Categorical {
		cats[i] = df.Col(name).Records()
	}
	nums := make([][]float64, len(fs.Numeric))
	for i, name := range fs.Numeric {
		if values, ok := derived[name]; ok {
			nums[i] = values
			continue
		}
		raw := df.Col(name).Records()
		values := make([]float64, len(raw))
		for row, cell := range raw {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: invalid number %q", row+1, name, cell)
			}
			values[row] = v
		}
		nums[i] = values
	}

	examples := make([]Example, n)
	for row := 0; row < n; row++ {
		ex := Example{
			Categorical: make([]string, len(cats)),
			Numeric:     make([]float64, len(nums)),
		}
		for i := range cats {
			ex.Categorical[i] = strings.TrimSpace(cats[i][row])
		}
		for i := range nums {
			ex.Numeric[i] = nums[i][row]
		}
		examples[row] = ex
	}
	return examples, nil
}
