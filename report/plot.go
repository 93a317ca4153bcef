// Package report renders the results of a pipeline run: PNG charts through
// gonum/plot and a JSON summary. It only reads the pure result values.
package report

import (
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/ghgforest/pipeline"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/sklearn/inspection"
)

// Size of every chart.
var (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

var (
	observedColor  = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	predictedColor = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	barColor       = color.RGBA{R: 40, G: 120, B: 40, A: 255}
)

// ImportancePlot draws the driver importances as a bar chart in the given
// order.
func ImportancePlot(drivers []inspection.DriverImportance, title string) (*plot.Plot, error) {
	if len(drivers) == 0 {
		return nil, errors.NewInsufficientDataError("report", "drivers", 1, 0)
	}
	values := make(plotter.Values, len(drivers))
	names := make([]string, len(drivers))
	for i, d := range drivers {
		values[i] = d.Score
		names[i] = d.Driver
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "importance (sum over lags)"
	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return nil, errors.Wrap(err, "importance bars")
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = -1
	p.X.Tick.Label.YAlign = -0.5
	return p, nil
}

// ALEPlot draws the centered effect at the merged quantile edges with the
// bin midpoints as points.
func ALEPlot(curve *inspection.ALECurve) (*plot.Plot, error) {
	if len(curve.Bins) == 0 {
		return nil, errors.NewInsufficientDataError("report", "ALE bins", 1, 0)
	}
	edges := make(plotter.XYs, len(curve.Edges))
	for k, x := range curve.Edges {
		edges[k] = plotter.XY{X: x, Y: curve.EdgeEffects[k]}
	}
	mids := make(plotter.XYs, len(curve.Bins))
	for k, b := range curve.Bins {
		mids[k] = plotter.XY{X: b.Value, Y: b.Effect}
	}

	p := plot.New()
	p.Title.Text = "ALE " + curve.Feature.Name()
	p.X.Label.Text = curve.Feature.Name()
	p.Y.Label.Text = "centered effect"

	line, err := plotter.NewLine(edges)
	if err != nil {
		return nil, errors.Wrap(err, "ALE line")
	}
	line.Color = predictedColor
	line.Width = vg.Points(1.2)
	points, err := plotter.NewScatter(mids)
	if err != nil {
		return nil, errors.Wrap(err, "ALE points")
	}
	points.GlyphStyle.Color = predictedColor
	points.GlyphStyle.Radius = vg.Points(2)
	p.Add(plotter.NewGrid(), line, points)
	return p, nil
}

// PredictionPlot draws observed and predicted values of one partition over
// time. Rows without a prediction are left out of the predicted series.
func PredictionPlot(e pipeline.Evaluation) (*plot.Plot, error) {
	if len(e.Observed) == 0 || len(e.Predicted) != len(e.Observed) {
		return nil, errors.NewInsufficientDataError("report", e.Partition+" predictions", 1, len(e.Predicted))
	}
	observed := make(plotter.XYs, 0, len(e.Observed))
	predicted := make(plotter.XYs, 0, len(e.Predicted))
	for i, d := range e.Dates {
		x := float64(d.Unix())
		observed = append(observed, plotter.XY{X: x, Y: e.Observed[i]})
		if !math.IsNaN(e.Predicted[i]) {
			predicted = append(predicted, plotter.XY{X: x, Y: e.Predicted[i]})
		}
	}

	p := plot.New()
	p.Title.Text = e.Partition
	p.X.Tick.Marker = plot.TimeTicks{Format: time.DateOnly}
	p.Y.Label.Text = "flux"

	obs, err := plotter.NewScatter(observed)
	if err != nil {
		return nil, errors.Wrap(err, "observed points")
	}
	obs.GlyphStyle.Color = observedColor
	obs.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(plotter.NewGrid(), obs)
	p.Legend.Add("observed", obs)

	if len(predicted) > 0 {
		pred, err := plotter.NewScatter(predicted)
		if err != nil {
			return nil, errors.Wrap(err, "predicted points")
		}
		pred.GlyphStyle.Color = predictedColor
		pred.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(pred)
		p.Legend.Add("predicted", pred)
	}
	p.Legend.Top = true
	return p, nil
}

// Save writes p to path; the format follows the file extension.
func Save(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
