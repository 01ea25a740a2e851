package pipeline

import (
	"github.com/tabtrain/tabtrain/frame"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// SplitFeaturesTarget separates target from the predictors of f. The
// predictors keep their original column order.
func SplitFeaturesTarget(f *frame.Frame, target string) (*frame.Frame, frame.Column, error) {
	col, ok := f.Column(target)
	if !ok {
		return nil, frame.Column{}, errors.NewConfigError("target_column", "target column not found", target)
	}
	return f.Drop(target), col, nil
}
