// FilePath: internal/models/models.risk.go
package models

import "time"

// RiskState is the continuously overwritten mold-risk record for one device.
// Only the risk engine mutates it.
type RiskState struct {
	DeviceID         string     `json:"device_id" db:"device_id"`
	MoldIndex        float64    `json:"mold_index" db:"mold_index"`
	RiskLevel        string     `json:"risk_level" db:"risk_level"`
	LastTemperatureC *float64   `json:"last_temperature" db:"last_temperature"`
	LastHumidity     *float64   `json:"last_humidity" db:"last_humidity"`
	CriticalRH       float64    `json:"critical_rh" db:"critical_rh"`
	Forecast24Index  float64    `json:"forecast_24h_index" db:"forecast_24h_index"`
	Forecast24Level  string     `json:"forecast_24h_level" db:"forecast_24h_level"`
	Forecast48Index  float64    `json:"forecast_48h_index" db:"forecast_48h_index"`
	Forecast48Level  string     `json:"forecast_48h_level" db:"forecast_48h_level"`
	Forecast72Index  float64    `json:"forecast_72h_index" db:"forecast_72h_index"`
	Forecast72Level  string     `json:"forecast_72h_level" db:"forecast_72h_level"`
	HoursToNextLevel *float64   `json:"hours_to_next_level" db:"hours_to_next_level"`
	CalculatedAt     time.Time  `json:"calculated_at" db:"calculated_at"`
	UpdatedAt        *time.Time `json:"updated_at" db:"updated_at"`
}

// SiteRiskSummary aggregates risk across all devices of a site.
type SiteRiskSummary struct {
	SiteID             string   `json:"site_id" db:"site_id"`
	DeviceCount        int      `json:"device_count" db:"device_count"`
	WorstIndex         float64  `json:"worst_index" db:"worst_index"`
	WorstLevel         string   `json:"worst_level" db:"worst_level"`
	DevicesAboveRHCrit int      `json:"devices_above_critical_rh" db:"devices_above_critical_rh"`
	AvgIndex           *float64 `json:"avg_index" db:"avg_index"`
}
