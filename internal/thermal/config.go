package thermal

import (
	"encoding/json"
	"fmt"
)

// Config holds every tunable of the thermal supervisor. The JSON form is a
// flat object so host tooling can round-trip it without schema knowledge.
type Config struct {
	TargetTempC float64 `json:"target_temp_c"`
	Kp          float64 `json:"kp"`
	Ki          float64 `json:"ki"`
	Kd          float64 `json:"kd"`

	MinFanPWM           float64 `json:"min_fan_pwm"`
	MaxFanPWM           float64 `json:"max_fan_pwm"`
	FanUpdateIntervalMs int64   `json:"fan_update_interval_ms"`

	EmergencyTempC   float64 `json:"emergency_temp_c"`
	RecoveryTempC    float64 `json:"recovery_temp_c"`
	EmergencyDelayMs int64   `json:"emergency_delay_ms"`

	SensorTimeoutMs int64   `json:"sensor_timeout_ms"`
	TempFilterAlpha float64 `json:"temp_filter_alpha"`
}

// DefaultConfig mirrors the shipped fixture tuning: a 45C target with a
// conservative emergency band.
func DefaultConfig() Config {
	return Config{
		TargetTempC:         45.0,
		Kp:                  2.0,
		Ki:                  0.1,
		Kd:                  0.5,
		MinFanPWM:           0.0,
		MaxFanPWM:           100.0,
		FanUpdateIntervalMs: 1000,
		EmergencyTempC:      60.0,
		RecoveryTempC:       55.0,
		EmergencyDelayMs:    5000,
		SensorTimeoutMs:     10000,
		TempFilterAlpha:     0.8,
	}
}

// Validate rejects configs that would make the state machine unsound.
func (c Config) Validate() error {
	if c.RecoveryTempC >= c.EmergencyTempC {
		return fmt.Errorf("recovery temp %.1f must be below emergency temp %.1f", c.RecoveryTempC, c.EmergencyTempC)
	}
	if c.MinFanPWM < 0 || c.MaxFanPWM > 100 || c.MinFanPWM >= c.MaxFanPWM {
		return fmt.Errorf("fan pwm limits [%.1f,%.1f] invalid", c.MinFanPWM, c.MaxFanPWM)
	}
	if c.TempFilterAlpha <= 0 || c.TempFilterAlpha > 1 {
		return fmt.Errorf("filter alpha %.3f out of range (0,1]", c.TempFilterAlpha)
	}
	if c.FanUpdateIntervalMs <= 0 {
		return fmt.Errorf("fan update interval %dms must be positive", c.FanUpdateIntervalMs)
	}
	if c.SensorTimeoutMs <= 0 {
		return fmt.Errorf("sensor timeout %dms must be positive", c.SensorTimeoutMs)
	}
	if c.EmergencyDelayMs < 0 {
		return fmt.Errorf("emergency delay %dms must not be negative", c.EmergencyDelayMs)
	}
	return nil
}

// ExportConfigJSON renders the active config.
func (t *Controller) ExportConfigJSON() ([]byte, error) {
	return json.Marshal(t.cfg)
}

// ImportConfigJSON replaces the active config from a flat JSON object.
// Absent fields keep their current values; an invalid result leaves the
// prior config untouched.
func (t *Controller) ImportConfigJSON(data []byte) error {
	cfg := t.cfg
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse thermal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.SetConfig(cfg)
	return nil
}
