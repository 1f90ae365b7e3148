package main

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/mfchem/mfchem/mpnn"
)

var scatterColor = color.RGBA{R: 20, G: 80, B: 200, A: 90}

// plotTargetScatter saves a single scatter of LF against HF targets so the
// synthesized noise can be eyeballed.
func plotTargetScatter(path, title string, hf, lf []float64) error {
	pts := make(plotter.XYs, 0, len(hf))
	for i := range hf {
		if math.IsNaN(hf[i]) || math.IsNaN(lf[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: hf[i], Y: lf[i]})
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "High Fidelity"
	p.Y.Label.Text = "Low Fidelity"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = scatterColor
	sc.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(sc, plotter.NewGrid())

	return p.Save(6*vg.Inch, 5*vg.Inch, path)
}

// parityPanel builds one target-vs-prediction panel annotated with its
// metrics in the top left corner.
func parityPanel(title string, targets, preds []float64, m mpnn.Metrics) (*plot.Plot, error) {
	pts := make(plotter.XYs, 0, len(targets))
	minX, maxY := math.Inf(1), math.Inf(-1)
	for i := range targets {
		if math.IsNaN(targets[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: targets[i], Y: preds[i]})
		if targets[i] < minX {
			minX = targets[i]
		}
		if preds[i] > maxY {
			maxY = preds[i]
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Target"
	p.Y.Label.Text = "Prediction"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = scatterColor
	sc.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(sc, plotter.NewGrid())

	if len(pts) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{
			XYs:    plotter.XYs{{X: minX, Y: maxY}},
			Labels: []string{fmt.Sprintf("MAE %.2f  RMSE %.2f  R2 %.2f", m.MAE, m.RMSE, m.R2)},
		})
		if err != nil {
			return nil, err
		}
		p.Add(labels)
	}
	return p, nil
}

// saveParityPlot writes one or two parity panels side by side as a PNG.
func saveParityPlot(path string, panels []*plot.Plot) error {
	const panelWidth = 4 * vg.Inch
	img := vgimg.New(panelWidth*vg.Length(len(panels)), 4*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: len(panels),
		PadX: vg.Millimeter * 4,
		PadY: vg.Millimeter * 4,
	}
	row := make([]*plot.Plot, len(panels))
	copy(row, panels)
	canvases := plot.Align([][]*plot.Plot{row}, tiles, dc)
	for i, p := range row {
		p.Draw(canvases[0][i])
	}

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return err
	}
	return nil
}
