package model_selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

func TestCanStratify(t *testing.T) {
	tests := []struct {
		name   string
		labels []float64
		want   bool
	}{
		{name: "two classes with two members", labels: []float64{0, 0, 1, 1, 1}, want: true},
		{name: "singleton class", labels: []float64{0, 1, 1, 1, 1}, want: false},
		{name: "single class", labels: []float64{1, 1, 1}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanStratify(tt.labels))
		})
	}
}

func TestTrainTestSplitStratification(t *testing.T) {
	split, err := TrainTestSplit(5, 0.4, 42, []float64{0, 0, 1, 1, 1})
	require.NoError(t, err)
	assert.True(t, split.Stratified)
	assert.Len(t, split.Test, 2)
	assert.Len(t, split.Train, 3)

	labels := []float64{0, 0, 1, 1, 1}
	classesInTest := map[float64]int{}
	for _, i := range split.Test {
		classesInTest[labels[i]]++
	}
	assert.Equal(t, 1, classesInTest[0])
	assert.Equal(t, 1, classesInTest[1])

	split, err = TrainTestSplit(5, 0.4, 42, []float64{0, 1, 1, 1, 1})
	require.NoError(t, err)
	assert.False(t, split.Stratified)
	assert.Len(t, split.Test, 2)
}

func TestTrainTestSplitKeepsTestCountWhenClassesAreCapped(t *testing.T) {
	// Each class must keep a training row, so a stratified split could put
	// at most three of the five requested rows in the test partition.
	labels := []float64{0, 0, 1, 1, 2, 2}
	split, err := TrainTestSplit(len(labels), 0.8, 3, labels)
	require.NoError(t, err)
	assert.False(t, split.Stratified)
	assert.Len(t, split.Test, 5)
	assert.Len(t, split.Train, 1)
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	a, err := TrainTestSplit(100, 0.2, 7, nil)
	require.NoError(t, err)
	b, err := TrainTestSplit(100, 0.2, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Test, b.Test)
	assert.Len(t, a.Test, 20)

	c, err := TrainTestSplit(100, 0.2, 8, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestTrainTestSplitPartitionsRows(t *testing.T) {
	labels := make([]float64, 30)
	for i := range labels {
		labels[i] = float64(i % 3)
	}
	split, err := TrainTestSplit(len(labels), 0.25, 1, labels)
	require.NoError(t, err)
	assert.Len(t, split.Test, TestCount(30, 0.25))

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, split.Train...), split.Test...) {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, seen, 30)
}

func TestTrainTestSplitErrors(t *testing.T) {
	var empty *errors.EmptyDatasetError

	_, err := TrainTestSplit(0, 0.2, 1, nil)
	assert.True(t, errors.As(err, &empty))

	_, err = TrainTestSplit(1, 0.2, 1, nil)
	assert.True(t, errors.As(err, &empty), "a single row leaves no training data")

	_, err = TrainTestSplit(10, 1.5, 1, nil)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
