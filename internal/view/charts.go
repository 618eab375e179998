package view

import "github.com/gpsanalyzer/telemetry.report/internal/report"

// EventCount is one bar of the event chart.
type EventCount struct {
	Event string `json:"event"`
	Count int    `json:"count"`
}

// TargetEvents are the charted events and the scorecard column holding each
// one's per-device count.
var TargetEvents = []struct {
	Event  string
	Column string
}{
	{"Ignition On", report.ColIgnitionOn},
	{"Ignition Off", report.ColIgnitionOff},
	{"Harsh Breaking", report.ColHarshBreaking},
	{"Harsh Acceleration", report.ColHarshAcceleration},
	{"Harsh Turn", report.ColHarshTurn},
	{"SOS", report.ColSOSCount},
}

// EventCounts returns the event chart series: the result-wide summary for
// "all", otherwise the device's scorecard counters. Missing counts are 0.
func EventCounts(res *report.AnalysisResult, device string) []EventCount {
	out := make([]EventCount, len(TargetEvents))
	var row report.Row
	if device != report.AllDevices {
		row, _ = res.ScorecardRow(device)
	}
	for i, te := range TargetEvents {
		out[i].Event = te.Event
		if device == report.AllDevices {
			out[i].Count = res.ChartData.EventsSummary[te.Event]
			continue
		}
		if n, ok := row.Float(te.Column); ok {
			out[i].Count = int(n)
		}
	}
	return out
}

// RadarAxis is one spoke of the completeness radar.
type RadarAxis struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

var radarAxes = []struct{ key, label string }{
	{"gps_validity", "GPS"},
	{"ignition", "Ignition"},
	{"delay", "Delay"},
	{"rpm", "RPM"},
	{"speed", "Speed"},
	{"temp", "Temp"},
	{"dist", "Dist"},
	{"fuel", "Fuel"},
}

// RadarAxes returns the completeness percentages in chart order.
func RadarAxes(dq map[string]float64) []RadarAxis {
	out := make([]RadarAxis, len(radarAxes))
	for i, a := range radarAxes {
		out[i] = RadarAxis{Key: a.key, Label: a.label, Value: dq[a.key]}
	}
	return out
}
