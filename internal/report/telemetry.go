package report

// PageMeta is the pagination envelope of one telemetry page. Page is the
// server's value after clamping to [1, Pages]. Device is the filter the page
// was requested for; the backend does not send it.
type PageMeta struct {
	Page    int    `json:"page"`
	Pages   int    `json:"pages"`
	Total   int    `json:"total"`
	PerPage int    `json:"per_page"`
	Device  string `json:"device,omitempty"`
}

// TelemetryPage is the body of GET /api/result/{id}/telemetry.
type TelemetryPage struct {
	Rows []Row `json:"rows"`
	PageMeta
}

// RawColumns is the column order of the raw telemetry table.
var RawColumns = []string{
	"imei", "time", "receiveTimestamp", "delay_seconds", "lat", "lng",
	"altitude", "speed", "heading", "lastFixTime", "isMoving",
	"batteryLevelPercentage", "reportMode", "quality", "mileage",
	"ignitionOn", "externalPowerVcc", "digitalInput", "driverId",
	"engineRPM", "vehicleSpeed", "engineCoolantTemperature",
	"totalDistance", "totalFuelUsed", "fuelLevelInput", "event_type",
}
