package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabtrain/tabtrain/pipeline"
)

func TestImportanceChart(t *testing.T) {
	items := []pipeline.FeatureImportanceItem{
		{Feature: "petal_length", Importance: 0.6},
		{Feature: "petal_width", Importance: 0.3},
		{Feature: "sepal_width", Importance: 0.1},
	}
	p, err := ImportanceChart(items, "Feature importance")
	require.NoError(t, err)
	assert.Equal(t, "Feature importance", p.Title.Text)

	path := filepath.Join(t.TempDir(), "importance.png")
	require.NoError(t, Save(p, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = ImportanceChart(nil, "empty")
	assert.Error(t, err)
}

func TestResidualPlot(t *testing.T) {
	res := &pipeline.ResidualSummary{
		Predicted: []float64{1, 2, 3, 4},
		Residuals: []float64{0.1, -0.2, 0.05, 0},
	}
	p, err := ResidualPlot(res, "Residuals")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(p, &buf, "SVG"))
	assert.Contains(t, buf.String(), "<svg")

	assert.Error(t, Write(p, &buf, "bmp-nope"))

	_, err = ResidualPlot(&pipeline.ResidualSummary{Predicted: []float64{1}, Residuals: []float64{1, 2}}, "bad")
	assert.Error(t, err)
	_, err = ResidualPlot(nil, "nil")
	assert.Error(t, err)
}
