package mapview

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
)

// Map is a telemetry page sink holding the model of the last page.
type Map struct {
	mu    sync.RWMutex
	model Model
}

// New returns an empty map that reads the device filter from devices.
func New() *Map {
	return &Map{model: Model{Device: report.AllDevices, Markers: []Marker{}}}
}

// ShowPage rebuilds the model from a freshly loaded page. The model is
// labelled with the device the page was requested for.
func (m *Map) ShowPage(rows []report.Row, meta report.PageMeta) {
	device := meta.Device
	if device == "" {
		device = report.AllDevices
	}
	model := Build(rows, device)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Model returns the current model.
func (m *Map) Model() Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// Default PNG size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// WritePNG plots the current model, longitude on X and latitude on Y.
func (m *Map) WritePNG(w io.Writer, width, height vg.Length) error {
	p, err := Plot(m.Model())
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write map png: %w", err)
	}
	return nil
}

// Plot lays out a model as a gonum plot.
func Plot(model Model) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Telemetry map (" + model.Device + ")"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	if len(model.Path) > 1 {
		line, err := plotter.NewLine(xys(model.Path))
		if err != nil {
			return nil, fmt.Errorf("path line: %w", err)
		}
		line.Color = hexColor(colorPath)
		line.Width = vg.Points(2)
		p.Add(line)
	}

	for _, mk := range model.Markers {
		sc, err := plotter.NewScatter(xys([]Point{mk.Point}))
		if err != nil {
			return nil, fmt.Errorf("%s marker: %w", mk.Kind, err)
		}
		sc.GlyphStyle.Color = hexColor(mk.Color)
		sc.GlyphStyle.Radius = vg.Points(3)
		switch mk.Kind {
		case MarkerStart:
			sc.GlyphStyle.Shape = draw.TriangleGlyph{}
			sc.GlyphStyle.Radius = vg.Points(5)
		case MarkerEnd:
			sc.GlyphStyle.Shape = draw.SquareGlyph{}
			sc.GlyphStyle.Radius = vg.Points(5)
		default:
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
		}
		p.Add(sc)
	}

	if b := model.Bounds; b != nil {
		pad := 0.001
		p.X.Min, p.X.Max = b.MinLng-pad, b.MaxLng+pad
		p.Y.Min, p.Y.Max = b.MinLat-pad, b.MaxLat+pad
	}
	return p, nil
}

func xys(points []Point) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, pt := range points {
		out[i] = plotter.XY{X: pt.Lng, Y: pt.Lat}
	}
	return out
}

// hexColor parses "#rrggbb"; anything else is grey.
func hexColor(s string) color.Color {
	if len(s) == 7 && s[0] == '#' {
		if v, err := strconv.ParseUint(s[1:], 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
		}
	}
	return color.Gray{Y: 0x94}
}
