// Package mapview builds the map of the currently loaded telemetry page and
// renders it as a PNG track plot.
package mapview

import (
	"github.com/gpsanalyzer/telemetry.report/internal/report"
)

// Point is one valid GPS fix.
type Point struct {
	Device string  `json:"imei"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Time   string  `json:"time,omitempty"`
	Speed  string  `json:"speed,omitempty"`
	Event  string  `json:"event_type,omitempty"`
}

// MarkerKind classifies a map marker.
type MarkerKind string

const (
	MarkerDevice MarkerKind = "device"
	MarkerStart  MarkerKind = "start"
	MarkerEnd    MarkerKind = "end"
	MarkerEvent  MarkerKind = "event"
)

// Marker is a labelled point on the map.
type Marker struct {
	Kind  MarkerKind `json:"kind"`
	Color string     `json:"color"`
	Point
}

// Bounds is the lat/lng box enclosing every valid point.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Model is what the map shows for one page. With the "all" filter it holds
// the first fix of every device; for a single device it holds the path,
// start and end markers and one marker per event.
type Model struct {
	Device  string   `json:"device"`
	Path    []Point  `json:"path,omitempty"`
	Markers []Marker `json:"markers"`
	Bounds  *Bounds  `json:"bounds,omitempty"`
}

const (
	colorDevice  = "#3b82f6"
	colorPath    = "#10b981"
	colorDefault = "#94a3b8"
)

// EventColor returns the marker colour of an event type.
func EventColor(event string) string {
	switch event {
	case "Ignition On":
		return "#10b981"
	case "Ignition Off":
		return "#ef4444"
	case "Harsh Breaking", "Harsh Acceleration", "Harsh Turn":
		return "#f59e0b"
	case "SOS":
		return "#dc2626"
	}
	return colorDefault
}

// ValidPoints returns the rows with a non-zero latitude and longitude, in
// order.
func ValidPoints(rows []report.Row) []Point {
	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		lat, okLat := r.Float("lat")
		lng, okLng := r.Float("lng")
		if !okLat || !okLng || lat == 0 || lng == 0 {
			continue
		}
		p := Point{
			Device: r.Device(),
			Lat:    lat,
			Lng:    lng,
			Time:   r.String("time"),
			Speed:  r.String("speed"),
		}
		if ev := r.String("event_type"); ev != "" && ev != "null" {
			p.Event = ev
		}
		out = append(out, p)
	}
	return out
}

// Build derives the map model of rows for the device filter.
func Build(rows []report.Row, device string) Model {
	m := Model{Device: device, Markers: []Marker{}}
	points := ValidPoints(rows)
	if len(points) == 0 {
		return m
	}
	m.Bounds = bounds(points)

	if device == report.AllDevices {
		seen := make(map[string]bool)
		for _, p := range points {
			if seen[p.Device] {
				continue
			}
			seen[p.Device] = true
			m.Markers = append(m.Markers, Marker{Kind: MarkerDevice, Color: colorDevice, Point: p})
		}
		return m
	}

	m.Path = points
	m.Markers = append(m.Markers,
		Marker{Kind: MarkerStart, Color: colorPath, Point: points[0]},
		Marker{Kind: MarkerEnd, Color: colorPath, Point: points[len(points)-1]},
	)
	for _, p := range points {
		if p.Event != "" {
			m.Markers = append(m.Markers, Marker{Kind: MarkerEvent, Color: EventColor(p.Event), Point: p})
		}
	}
	return m
}

func bounds(points []Point) *Bounds {
	b := &Bounds{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		b.MinLat = min(b.MinLat, p.Lat)
		b.MaxLat = max(b.MaxLat, p.Lat)
		b.MinLng = min(b.MinLng, p.Lng)
		b.MaxLng = max(b.MaxLng, p.Lng)
	}
	return b
}
