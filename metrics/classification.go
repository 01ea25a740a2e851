package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// Accuracy returns the fraction of exact label matches.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// Labels returns the sorted union of the labels in yTrue and yPred.
func Labels(yTrue, yPred *mat.VecDense) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, v := range []*mat.VecDense{yTrue, yPred} {
		for i := 0; i < v.Len(); i++ {
			x := v.AtVec(i)
			if _, ok := seen[x]; !ok {
				seen[x] = struct{}{}
				out = append(out, x)
			}
		}
	}
	sort.Float64s(out)
	return out
}

// ConfusionMatrix counts predictions per (true, predicted) label pair.
// Rows and columns follow labels, or Labels(yTrue, yPred) when labels is
// nil.
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []float64) (*mat.Dense, []float64, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	if labels == nil {
		labels = Labels(yTrue, yPred)
	}
	index := make(map[float64]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		r, ok1 := index[yTrue.AtVec(i)]
		c, ok2 := index[yPred.AtVec(i)]
		if ok1 && ok2 {
			cm.Set(r, c, cm.At(r, c)+1)
		}
	}
	return cm, labels, nil
}

// ClassReport holds the per-class scores of a classification report.
type ClassReport struct {
	Label     float64
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// PrecisionRecallF1 computes per-class precision, recall, F1 and support.
// A score whose denominator is zero is reported as 0.
func PrecisionRecallF1(yTrue, yPred *mat.VecDense) ([]ClassReport, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		return nil, err
	}
	k := len(labels)
	reports := make([]ClassReport, k)
	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		var predicted, actual float64
		for j := 0; j < k; j++ {
			predicted += cm.At(j, c)
			actual += cm.At(c, j)
		}
		precision := errors.SafeDivide(tp, predicted)
		recall := errors.SafeDivide(tp, actual)
		reports[c] = ClassReport{
			Label:     labels[c],
			Precision: precision,
			Recall:    recall,
			F1:        errors.SafeDivide(2*precision*recall, precision+recall),
			Support:   int(actual),
		}
	}
	return reports, nil
}

// F1Macro returns the unweighted mean of the per-class F1 scores over every
// label present in yTrue or yPred.
func F1Macro(yTrue, yPred *mat.VecDense) (float64, error) {
	reports, err := PrecisionRecallF1(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, r := range reports {
		sum += r.F1
	}
	return sum / float64(len(reports)), nil
}
