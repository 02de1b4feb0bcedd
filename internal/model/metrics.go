package model

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var errSingleClass = errors.New("both outcomes are required")

// ROCAUC is the area under the ROC curve of scores against labels.
func ROCAUC(scores []float64, labels []bool) (float64, error) {
	if len(scores) != len(labels) {
		return 0, errors.New("scores and labels differ in length")
	}
	positives := 0
	for _, label := range labels {
		if label {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0, errSingleClass
	}
	y := append([]float64{}, scores...)
	classes := append([]bool{}, labels...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// ClassMetrics is one line of a classification report.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes thresholded predictions.
type ClassificationReport struct {
	Cutoff   float64        `json:"cutoff"`
	Classes  []ClassMetrics `json:"classes"`
	Accuracy float64        `json:"accuracy"`
	Total    int            `json:"total"`
}

// Classify thresholds scores at cutoff and reports per-class precision,
// recall and F1. Class 0 is "show", class 1 is "no-show".
func Classify(scores []float64, labels []bool, cutoff float64) ClassificationReport {
	var tp, fp, tn, fn int
	for i, score := range scores {
		predicted := score >= cutoff
		switch {
		case predicted && labels[i]:
			tp++
		case predicted && !labels[i]:
			fp++
		case !predicted && labels[i]:
			fn++
		default:
			tn++
		}
	}
	total := tp + fp + tn + fn
	return ClassificationReport{
		Cutoff: cutoff,
		Classes: []ClassMetrics{
			classMetrics("show", tn, fn, fp),
			classMetrics("no-show", tp, fp, fn),
		},
		Accuracy: safeDiv(float64(tp+tn), float64(total)),
		Total:    total,
	}
}

func classMetrics(label string, hit, falseAlarm, miss int) ClassMetrics {
	precision := safeDiv(float64(hit), float64(hit+falseAlarm))
	recall := safeDiv(float64(hit), float64(hit+miss))
	return ClassMetrics{
		Label:     label,
		Precision: precision,
		Recall:    recall,
		F1:        safeDiv(2*precision*recall, precision+recall),
		Support:   hit + miss,
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// stratifiedSplit shuffles each class with a fixed seed and holds out
// testFraction of it. Both halves keep at least one row of every class that
// has two or more rows. Indices are returned in ascending order.
func stratifiedSplit(labels []bool, testFraction float64, seed int64) ([]int, []int) {
	rng := rand.New(rand.NewSource(seed))
	var byClass [2][]int
	for i, label := range labels {
		if label {
			byClass[1] = append(byClass[1], i)
		} else {
			byClass[0] = append(byClass[0], i)
		}
	}

	var train, test []int
	for _, idx := range byClass {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(testFraction * float64(len(idx))))
		if len(idx) >= 2 {
			if nTest < 1 {
				nTest = 1
			}
			if nTest > len(idx)-1 {
				nTest = len(idx) - 1
			}
		} else {
			nTest = 0
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}
