package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// FeatureSet names the categorical and numeric inputs of a pipeline, in the
// order an Example carries them.
type FeatureSet struct {
	Categorical []string `json:"categorical"`
	Numeric     []string `json:"numeric"`
}

// Columns returns categorical then numeric names.
func (fs FeatureSet) Columns() []string {
	cols := make([]string, 0, len(fs.Categorical)+len(fs.Numeric))
	cols = append(cols, fs.Categorical...)
	return append(cols, fs.Numeric...)
}

// Example is one input row.
type Example struct {
	Categorical []string
	Numeric     []float64
}

// CategoricalColumn is a one-hot encoded column and the levels seen in
// training, sorted.
type CategoricalColumn struct {
	Name   string   `json:"name"`
	Levels []string `json:"levels"`

	index map[string]int
}

func (c *CategoricalColumn) indexOf(value string) (int, bool) {
	if c.index != nil {
		idx, ok := c.index[value]
		return idx, ok
	}
	for i, level := range c.Levels {
		if level == value {
			return i, true
		}
	}
	return -1, false
}

// Pipeline is a one-hot encoder with numeric passthrough followed by a
// logistic regression. Categories unseen in training encode as all zeros.
type Pipeline struct {
	Categorical  []CategoricalColumn `json:"categorical"`
	Numeric      []string            `json:"numeric"`
	Intercept    float64             `json:"intercept"`
	Coefficients []float64           `json:"coefficients"`
}

func (p *Pipeline) init() error {
	if len(p.Coefficients) != p.Width() {
		return fmt.Errorf("pipeline has %d coefficients for %d features", len(p.Coefficients), p.Width())
	}
	for i := range p.Categorical {
		col := &p.Categorical[i]
		col.index = make(map[string]int, len(col.Levels))
		for j, level := range col.Levels {
			col.index[level] = j
		}
	}
	return nil
}

// Features returns the input column names the pipeline expects.
func (p *Pipeline) Features() FeatureSet {
	fs := FeatureSet{Numeric: append([]string{}, p.Numeric...)}
	for _, col := range p.Categorical {
		fs.Categorical = append(fs.Categorical, col.Name)
	}
	return fs
}

// Width is the encoded feature count.
func (p *Pipeline) Width() int {
	width := len(p.Numeric)
	for _, col := range p.Categorical {
		width += len(col.Levels)
	}
	return width
}

// FeatureNames labels each encoded feature; one-hot columns read
// "<column>_<level>".
func (p *Pipeline) FeatureNames() []string {
	names := make([]string, 0, p.Width())
	for _, col := range p.Categorical {
		for _, level := range col.Levels {
			names = append(names, col.Name+"_"+level)
		}
	}
	return append(names, p.Numeric...)
}

func (p *Pipeline) encode(ex Example, dst []float64) error {
	if len(ex.Categorical) != len(p.Categorical) || len(ex.Numeric) != len(p.Numeric) {
		return fmt.Errorf("example has %d categorical / %d numeric values, pipeline expects %d / %d",
			len(ex.Categorical), len(ex.Numeric), len(p.Categorical), len(p.Numeric))
	}
	for i := range dst {
		dst[i] = 0
	}
	offset := 0
	for i := range p.Categorical {
		col := &p.Categorical[i]
		if idx, ok := col.indexOf(ex.Categorical[i]); ok {
			dst[offset+idx] = 1
		}
		offset += len(col.Levels)
	}
	copy(dst[offset:], ex.Numeric)
	return nil
}

// PredictProba returns the probability of the positive class.
func (p *Pipeline) PredictProba(ex Example) (float64, error) {
	x := make([]float64, p.Width())
	if err := p.encode(ex, x); err != nil {
		return 0, err
	}
	z := p.Intercept
	for j, coef := range p.Coefficients {
		z += coef * x[j]
	}
	return sigmoid(z), nil
}

// PredictAll scores every example in order.
func (p *Pipeline) PredictAll(examples []Example) ([]float64, error) {
	probs := make([]float64, len(examples))
	x := make([]float64, p.Width())
	for i, ex := range examples {
		if err := p.encode(ex, x); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		z := p.Intercept
		for j, coef := range p.Coefficients {
			z += coef * x[j]
		}
		probs[i] = sigmoid(z)
	}
	return probs, nil
}

// FitConfig controls the logistic fit.
type FitConfig struct {
	// Lambda is the L2 penalty on non-intercept coefficients.
	Lambda    float64
	MaxIter   int
	Tolerance float64
}

// DefaultFitConfig mirrors an L2 logistic regression with C = 1.
var DefaultFitConfig = FitConfig{Lambda: 1, MaxIter: 100, Tolerance: 1e-8}

// FitPipeline learns category levels from examples and fits the classifier.
// Numeric columns are standardized for the solver only; the stored
// coefficients apply to raw values.
func FitPipeline(fs FeatureSet, examples []Example, labels []bool, cfg FitConfig) (*Pipeline, error) {
	if len(examples) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(examples) != len(labels) {
		return nil, fmt.Errorf("%d examples but %d labels", len(examples), len(labels))
	}

	p := &Pipeline{Numeric: append([]string{}, fs.Numeric...)}
	for i, name := range fs.Categorical {
		seen := map[string]struct{}{}
		for _, ex := range examples {
			if len(ex.Categorical) != len(fs.Categorical) {
				return nil, fmt.Errorf("example has %d categorical values, expected %d", len(ex.Categorical), len(fs.Categorical))
			}
			seen[ex.Categorical[i]] = struct{}{}
		}
		levels := make([]string, 0, len(seen))
		for level := range seen {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		p.Categorical = append(p.Categorical, CategoricalColumn{Name: name, Levels: levels})
	}

	width := p.Width()
	p.Coefficients = make([]float64, width)
	if err := p.init(); err != nil {
		return nil, err
	}

	n := len(examples)
	// Column 0 is the intercept.
	design := mat.NewDense(n, width+1, nil)
	y := make([]float64, n)
	for i, ex := range examples {
		row := design.RawRowView(i)
		row[0] = 1
		if err := p.encode(ex, row[1:]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if labels[i] {
			y[i] = 1
		}
	}

	numStart := 1 + width - len(p.Numeric)
	means := make([]float64, len(p.Numeric))
	scales := make([]float64, len(p.Numeric))
	for k := range p.Numeric {
		col := numStart + k
		sum, sumSq := 0.0, 0.0
		for i := 0; i < n; i++ {
			v := design.At(i, col)
			sum += v
			sumSq += v * v
		}
		mean := sum / float64(n)
		variance := sumSq/float64(n) - mean*mean
		means[k] = mean
		scales[k] = math.Sqrt(math.Max(variance, 0))
		for i := 0; i < n; i++ {
			if scales[k] > 0 {
				design.Set(i, col, (design.At(i, col)-mean)/scales[k])
			} else {
				design.Set(i, col, 0)
			}
		}
	}

	beta, err := fitLogistic(design, y, cfg)
	if err != nil {
		return nil, err
	}

	p.Intercept = beta[0]
	copy(p.Coefficients, beta[1:])
	for k := range p.Numeric {
		j := numStart - 1 + k
		if scales[k] == 0 {
			p.Coefficients[j] = 0
			continue
		}
		raw := beta[numStart+k] / scales[k]
		p.Coefficients[j] = raw
		p.Intercept -= raw * means[k]
	}
	return p, nil
}
