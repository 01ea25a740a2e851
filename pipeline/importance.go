package pipeline

import (
	"sort"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// ExtractImportance folds the importances of a fitted model back onto the
// predictor columns. Models that do not expose importances yield an empty
// list.
//
// With FoldCyclic the importance of expanded column i is credited to
// predictors[i mod len(predictors)], which only approximates attribution
// once one-hot encoding has widened the matrix. FoldSource credits each
// expanded column to sources[i], the predictor it was derived from. Either
// way the result is renormalized to sum to 1 and sorted by descending
// importance, ties keeping predictor order.
func ExtractImportance(m model.Estimator, predictors, sources []string, fold string) ([]FeatureImportanceItem, error) {
	fi, ok := m.(model.FeatureImportancer)
	if !ok || len(predictors) == 0 {
		return []FeatureImportanceItem{}, nil
	}
	raw, err := fi.FeatureImportances()
	if err != nil {
		return nil, err
	}

	agg := make([]float64, len(predictors))
	switch fold {
	case FoldSource:
		if len(sources) != len(raw) {
			return nil, errors.NewDimensionError("ExtractImportance", len(raw), len(sources), 1)
		}
		index := make(map[string]int, len(predictors))
		for i, p := range predictors {
			index[p] = i
		}
		for i, v := range raw {
			j, ok := index[sources[i]]
			if !ok {
				return nil, errors.NewValueError("ExtractImportance", "unknown source column "+sources[i])
			}
			agg[j] += v
		}
	default:
		for i, v := range raw {
			agg[i%len(predictors)] += v
		}
	}

	total := 0.0
	for _, v := range agg {
		total += v
	}
	if total == 0 {
		total = 1
	}

	items := make([]FeatureImportanceItem, len(predictors))
	for i, p := range predictors {
		items[i] = FeatureImportanceItem{Feature: p, Importance: agg[i] / total}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Importance > items[j].Importance })
	return items, nil
}

// TopK returns at most k leading items; k <= 0 returns all of them.
func TopK(items []FeatureImportanceItem, k int) []FeatureImportanceItem {
	if k <= 0 || k >= len(items) {
		return items
	}
	return items[:k]
}
