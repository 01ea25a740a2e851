package model

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// StateManager records whether a model is fitted and on what shape. Models
// embed a *StateManager; the exported fields are what gob persists.
type StateManager struct {
	mu sync.RWMutex

	Fitted    bool
	NFeatures int
	NSamples  int
}

// NewStateManager returns an unfitted StateManager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// MarkFitted records a successful fit on nSamples rows of nFeatures
// columns.
func (s *StateManager) MarkFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	s.Fitted, s.NFeatures, s.NSamples = true, nFeatures, nSamples
	s.mu.Unlock()
}

// IsFitted reports whether MarkFitted has been called.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// GetDimensions returns the training shape.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError for modelName.method unless the
// model is fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if s.IsFitted() {
		return nil
	}
	return errors.NewNotFittedError(modelName, method)
}

// CheckPredict is RequireFitted followed by ValidatePredictInput against
// the fitted feature count.
func (s *StateManager) CheckPredict(modelName, method string, X mat.Matrix) error {
	if err := s.RequireFitted(modelName, method); err != nil {
		return err
	}
	nFeatures, _ := s.GetDimensions()
	return ValidatePredictInput(modelName+"."+method, X, nFeatures)
}
