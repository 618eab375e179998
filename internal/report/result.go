// Package report defines the analysis result delivered by the backend and the
// telemetry page envelope. Values are immutable once loaded; a new upload or
// history selection replaces the whole result.
package report

// AllDevices is the device filter sentinel meaning "no filter".
const AllDevices = "all"

// DeviceKey is the row key carrying the device identifier (IMEI).
const DeviceKey = "imei"

// Scorecard and stats columns consumed by the KPIs and the event chart. The
// names are the backend's wire format.
const (
	ColQualityScore      = "Puntaje_Calidad"
	ColTotalReports      = "Total_Reportes"
	ColDistanceKm        = "Distancia_Recorrida_(KM)"
	ColIgnitionOn        = "Ignition_On"
	ColIgnitionOff       = "Ignition_Off"
	ColHarshBreaking     = "Harsh_Breaking"
	ColHarshAcceleration = "Harsh_Acceleration"
	ColHarshTurn         = "Harsh_Turn"
	ColSOSCount          = "SOS_Count"
	ColFirstReport       = "Primer_Reporte"
	ColLastReport        = "Ultimo_Reporte"
)

// Summary is the result-wide header and KPI block.
type Summary struct {
	Filename               string  `json:"filename"`
	ProcessedAt            string  `json:"processed_at"`
	AverageQualityScore    float64 `json:"average_quality_score"`
	TotalDevices           int     `json:"total_devices"`
	TotalRecords           int     `json:"total_records"`
	TotalDistanceKm        float64 `json:"total_distance_km"`
	TotalDuplicatesRemoved int     `json:"total_duplicates_removed,omitempty"`
}

// ChartData is precomputed by the backend.
type ChartData struct {
	ScoreDistribution []float64      `json:"score_distribution"`
	EventsSummary     map[string]int `json:"events_summary"`
}

// AnalysisResult is one scored telemetry capture.
type AnalysisResult struct {
	Summary     Summary            `json:"summary"`
	Scorecard   []Row              `json:"scorecard"`
	DataQuality map[string]float64 `json:"data_quality"`
	ChartData   ChartData          `json:"chart_data"`

	// StatsPerDevice is sent by older backends; when absent the stats tab
	// is driven by the scorecard rows, which carry the same columns.
	StatsPerDevice []Row `json:"stats_per_imei,omitempty"`
	RawDataSample  []Row `json:"raw_data_sample,omitempty"`
}

// StatsRows returns the rows backing the per-device statistics table.
func (r *AnalysisResult) StatsRows() []Row {
	if len(r.StatsPerDevice) > 0 {
		return r.StatsPerDevice
	}
	return r.Scorecard
}

// DeviceIDs returns the scorecard's device identifiers in order, without
// duplicates or empty values.
func (r *AnalysisResult) DeviceIDs() []string {
	seen := make(map[string]bool, len(r.Scorecard))
	ids := make([]string, 0, len(r.Scorecard))
	for _, row := range r.Scorecard {
		id := row.Device()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ScorecardRow returns the scorecard row for device, if any.
func (r *AnalysisResult) ScorecardRow(device string) (Row, bool) {
	for _, row := range r.Scorecard {
		if row.Device() == device {
			return row, true
		}
	}
	return Row{}, false
}
