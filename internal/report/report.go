// Package report renders episode history as an HTML chart page.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Episode is one point on the chart.
type Episode struct {
	Session string
	ID      string
	Outcome string
	Return  float64
	Steps   int
}

// Options tune the rendered page.
type Options struct {
	Title  string
	Window int // moving-average window, 0 disables the series
}

// ErrNoEpisodes is returned when there is nothing to plot.
var ErrNoEpisodes = errors.New("report: no episodes")

// Render writes a page with the return curve and episode lengths.
// Episodes are plotted in the order given.
func Render(w io.Writer, episodes []Episode, o Options) error {
	if len(episodes) == 0 {
		return ErrNoEpisodes
	}
	if o.Title == "" {
		o.Title = "Episode returns"
	}

	labels := make([]string, len(episodes))
	returns := make([]opts.LineData, len(episodes))
	steps := make([]opts.BarData, len(episodes))
	raw := make([]float64, len(episodes))
	for i, ep := range episodes {
		labels[i] = fmt.Sprintf("%d", i+1)
		returns[i] = opts.LineData{Value: ep.Return, Name: ep.Session + "/" + ep.ID}
		steps[i] = opts.BarData{Value: ep.Steps, Name: ep.Outcome}
		raw[i] = ep.Return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    o.Title,
			Subtitle: fmt.Sprintf("%d episodes", len(episodes)),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "return"}),
	)
	line = line.SetXAxis(labels)
	line.AddSeries("return", returns)
	if o.Window > 1 {
		avg := MovingAverage(raw, o.Window)
		items := make([]opts.LineData, len(avg))
		for i, v := range avg {
			items[i] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("mean of %d", o.Window), items)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Episode length"}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "reward steps"}),
	)
	bar = bar.SetXAxis(labels)
	bar.AddSeries("steps", steps)

	page := components.NewPage()
	page.AddCharts(line, bar)
	return page.Render(w)
}

// WriteFile renders into path, creating parent directories.
func WriteFile(path string, episodes []Episode, o Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := Render(f, episodes, o); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MovingAverage returns the trailing mean over window values. The first
// entries average over what is available so far.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}
