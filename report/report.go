// Package report renders experiment outputs as charts.
package report

import (
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Default chart size.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// ImportanceChart draws a bar per feature, in the order given.
func ImportanceChart(items []pipeline.FeatureImportanceItem, title string) (*plot.Plot, error) {
	if len(items) == 0 {
		return nil, errors.NewValueError("report.ImportanceChart", "no feature importances to plot")
	}
	values := make(plotter.Values, len(items))
	names := make([]string, len(items))
	for i, it := range items {
		values[i] = it.Importance
		names[i] = it.Feature
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Importance"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = 0.6
	p.X.Tick.Label.XAlign = draw.XRight
	return p, nil
}

// ResidualPlot scatters residuals against predictions with a zero line.
func ResidualPlot(res *pipeline.ResidualSummary, title string) (*plot.Plot, error) {
	if res == nil || len(res.Residuals) == 0 {
		return nil, errors.NewValueError("report.ResidualPlot", "no residuals to plot")
	}
	if len(res.Predicted) != len(res.Residuals) {
		return nil, errors.NewDimensionError("report.ResidualPlot", len(res.Residuals), len(res.Predicted), 0)
	}

	pts := make(plotter.XYs, len(res.Residuals))
	lo, hi := res.Predicted[0], res.Predicted[0]
	for i := range pts {
		pts[i] = plotter.XY{X: res.Predicted[i], Y: res.Residuals[i]}
		lo = min(lo, res.Predicted[i])
		hi = max(hi, res.Predicted[i])
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Residual"

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build scatter")
	}
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)

	zero, err := plotter.NewLine(plotter.XYs{{X: lo, Y: 0}, {X: hi, Y: 0}})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build zero line")
	}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(zero)
	return p, nil
}

// Save writes p to filename in the format named by its extension (png,
// svg, pdf, ...).
func Save(p *plot.Plot, filename string) error {
	return errors.Wrapf(p.Save(Width, Height, filename), "failed to save %s", filepath.Base(filename))
}

// Write encodes p as format into w.
func Write(p *plot.Plot, w io.Writer, format string) error {
	wt, err := p.WriterTo(Width, Height, strings.ToLower(format))
	if err != nil {
		return errors.Wrap(err, "unsupported chart format")
	}
	_, err = wt.WriteTo(w)
	return errors.Wrap(err, "failed to write chart")
}
