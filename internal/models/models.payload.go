// FilePath: internal/models/models.payload.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Payload status values.
const (
	PayloadStatusPending  = "pending"
	PayloadStatusComplete = "complete"
	PayloadStatusFailed   = "failed"
)

// Telemetry is the environmental snapshot a device transmits with each wake.
// All readings are optional; devices with a degraded BME680 still report what
// they have. Extra carries forward-compatible fields the firmware may add.
type Telemetry struct {
	TemperatureC  *float64    `json:"temperature"`
	Humidity      *float64    `json:"humidity"`
	Pressure      *float64    `json:"pressure"`
	GasResistance *float64    `json:"gas_resistance"`
	BatteryVolts  *float64    `json:"battery_voltage"`
	SignalRSSI    *float64    `json:"signal_strength"`
	Extra         ExtraFields `json:"extra,omitempty"`
}

// ExtraFields stores unrecognized telemetry fields as JSONB.
type ExtraFields map[string]any

func (e ExtraFields) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	return json.Marshal(e)
}

func (e *ExtraFields) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ExtraFields", src)
	}
	return json.Unmarshal(b, e)
}

// WakePayload records one device wake occurrence within a session.
type WakePayload struct {
	ID              string      `json:"id" db:"id"`
	DeviceID        string      `json:"device_id" db:"device_id"`
	SessionID       string      `json:"session_id" db:"session_id"`
	ImageID         *string     `json:"image_id" db:"image_id"`
	CapturedAt      time.Time   `json:"captured_at" db:"captured_at"`
	WakeWindowIndex int         `json:"wake_window_index" db:"wake_window_index"`
	Overage         bool        `json:"overage" db:"overage"`
	TemperatureC    *float64    `json:"temperature" db:"temperature"`
	Humidity        *float64    `json:"humidity" db:"humidity"`
	Pressure        *float64    `json:"pressure" db:"pressure"`
	GasResistance   *float64    `json:"gas_resistance" db:"gas_resistance"`
	BatteryVolts    *float64    `json:"battery_voltage" db:"battery_voltage"`
	SignalRSSI      *float64    `json:"signal_strength" db:"signal_strength"`
	ExtraTelemetry  ExtraFields `json:"extra_telemetry,omitempty" db:"extra_telemetry"`
	Status          string      `json:"status" db:"status"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// ApplyTelemetry copies a telemetry snapshot onto the payload columns.
func (p *WakePayload) ApplyTelemetry(t Telemetry) {
	p.TemperatureC = t.TemperatureC
	p.Humidity = t.Humidity
	p.Pressure = t.Pressure
	p.GasResistance = t.GasResistance
	p.BatteryVolts = t.BatteryVolts
	p.SignalRSSI = t.SignalRSSI
	p.ExtraTelemetry = t.Extra
}

// ClimateSample is the latest usable temperature/humidity pair for a device,
// feeding the risk engine.
type ClimateSample struct {
	DeviceID     string    `json:"device_id" db:"device_id"`
	TemperatureC float64   `json:"temperature" db:"temperature"`
	Humidity     float64   `json:"humidity" db:"humidity"`
	CapturedAt   time.Time `json:"captured_at" db:"captured_at"`
}
