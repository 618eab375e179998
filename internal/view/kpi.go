package view

import (
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/units"
)

// Placeholder is shown for a KPI with no value.
const Placeholder = "--"

// Band is the colour class of a quality score.
type Band string

const (
	BandNone Band = ""
	BandGood Band = "good"
	BandWarn Band = "warn"
	BandBad  Band = "bad"
)

// KPIBand classifies a headline quality score.
func KPIBand(score float64) Band {
	switch {
	case score > 90:
		return BandGood
	case score > 70:
		return BandWarn
	}
	return BandBad
}

// RowBand classifies a scorecard row's quality score.
func RowBand(score float64) Band {
	switch {
	case score > 80:
		return BandGood
	case score > 60:
		return BandWarn
	}
	return BandBad
}

// KPIs are the four headline figures. QualityScore is nil when the selected
// device has no scorecard row.
type KPIs struct {
	QualityScore *float64 `json:"quality_score"`
	Score        string   `json:"score"`
	Band         Band     `json:"band"`
	Devices      string   `json:"devices"`
	Records      string   `json:"records"`
	DistanceKm   string   `json:"distance_km"`
}

func emptyKPIs() KPIs {
	return KPIs{
		Score:      Placeholder,
		Devices:    "0",
		Records:    "0",
		DistanceKm: "0",
	}
}

func summaryKPIs(s report.Summary) KPIs {
	score := s.AverageQualityScore
	return KPIs{
		QualityScore: &score,
		Score:        units.FormatFixed(score, -1),
		Band:         KPIBand(score),
		Devices:      units.FormatThousands(int64(s.TotalDevices)),
		Records:      units.FormatThousands(int64(s.TotalRecords)),
		DistanceKm:   units.FormatFixed(s.TotalDistanceKm, 2),
	}
}

func deviceKPIs(scorecard, stats report.Row) KPIs {
	k := KPIs{
		Score:      Placeholder,
		Devices:    "1",
		Records:    "0",
		DistanceKm: "0",
	}
	if score, ok := scorecard.Float(report.ColQualityScore); ok {
		k.QualityScore = &score
		k.Score = units.FormatFixed(score, -1)
		k.Band = KPIBand(score)
	}
	if n, ok := scorecard.Float(report.ColTotalReports); ok {
		k.Records = units.FormatThousands(int64(n))
	}
	if d, ok := stats.Float(report.ColDistanceKm); ok {
		k.DistanceKm = units.FormatFixed(d, 2)
	}
	return k
}
