package flircapture

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ImagePersistence writes captured frames to disk.
type ImagePersistence interface {
	SaveImage(img image.Image, path string) error
}

// TabularPersistence writes delimited tables to disk. A nil header writes rows only.
type TabularPersistence interface {
	SaveSeries(path string, header []string, rows [][]string) error
}

// pngImageWriter encodes frames with imaging; the format follows the path's extension.
type pngImageWriter struct{}

func (pngImageWriter) SaveImage(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("saving image %s: %w", path, err)
	}
	return nil
}

type csvTableWriter struct{}

func (csvTableWriter) SaveSeries(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := csv.NewWriter(f)
	if header != nil {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing header to %s: %w", path, err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing rows to %s: %w", path, err)
	}
	return nil
}

// formatSeriesValue matches the fixed six-decimal format of the series file.
func formatSeriesValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// timeTemperatureRows lays the samples out as two rows: elapsed seconds, then focal temperatures.
func timeTemperatureRows(samples []SampleRecord) [][]string {
	times := lo.Map(samples, func(s SampleRecord, _ int) string {
		return formatSeriesValue(float64(s.ElapsedSeconds))
	})
	temps := lo.Map(samples, func(s SampleRecord, _ int) string {
		return formatSeriesValue(s.FocalTemperatureC)
	})
	return [][]string{times, temps}
}

func serialTelemetryRows(samples []SampleRecord) [][]string {
	withSerial := lo.Filter(samples, func(s SampleRecord, _ int) bool {
		return s.Serial != nil
	})
	return lo.Map(withSerial, func(s SampleRecord, _ int) []string {
		return s.Serial.Values()
	})
}

// saveSeriesPlot renders focal temperature against elapsed time.
func saveSeriesPlot(samples []SampleRecord, path string) error {
	p := plot.New()
	p.Title.Text = "Focal Plane Temperature"
	p.X.Label.Text = "Elapsed Time (s)"
	p.Y.Label.Text = "Temperature (C)"

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i].X = float64(s.ElapsedSeconds)
		pts[i].Y = s.FocalTemperatureC
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building temperature line: %w", err)
	}
	line.Color = color.RGBA{R: 200, A: 255}
	p.Add(line, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", path, err)
	}
	return nil
}
