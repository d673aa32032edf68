// Package mqttfeed bridges the controller to MQTT: it publishes state
// snapshots and ingests remote temperature sensors, with an abstraction for
// testing.
package mqttfeed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Topic suffixes, appended to the configured prefix. Remote sensors publish
// to sensors/<name>.
const (
	topicChannels     = "status/channels"
	topicThermal      = "status/thermal"
	topicSensorPrefix = "sensors/"
)

// Publisher publishes controller state to a broker and delivers remote
// sensor samples.
type Publisher interface {
	// PublishChannels sends the current per-channel output values.
	// Returns error if publishing fails (should not crash the control loop).
	PublishChannels(ev ChannelEvent) error

	// PublishThermal sends a thermal status snapshot.
	PublishThermal(ev ThermalEvent) error

	// SubscribeSensors delivers temperature samples for the named remote
	// sensors. fn is called from the client's goroutine; callers that feed a
	// single-threaded loop must hand off, not block.
	SubscribeSensors(names []string, fn func(name string, tempC float64)) error

	// Close disconnects from the broker.
	Close() error
}

// ChannelEvent is a snapshot of the scheduler output.
type ChannelEvent struct {
	Timestamp time.Time
	PWM       []float64
	Current   []float64
	MoonPhase float64
}

// ThermalEvent is a snapshot of the thermal controller.
type ThermalEvent struct {
	Timestamp    time.Time
	TempC        float64
	TargetC      float64
	FanPWM       float64
	FanRPM       float64
	FanEnabled   bool
	Emergency    bool
	Enabled      bool
	SensorsValid int
	SensorsTotal int
}

type channelPayload struct {
	Timestamp string    `json:"timestamp"`
	PWM       []float64 `json:"pwm_percent"`
	Current   []float64 `json:"current_a"`
	MoonPhase float64   `json:"moon_phase"`
}

type thermalPayload struct {
	Timestamp    string  `json:"timestamp"`
	TempC        float64 `json:"temp_c"`
	TargetC      float64 `json:"target_c"`
	FanPWM       float64 `json:"fan_pwm_percent"`
	FanRPM       float64 `json:"fan_rpm"`
	FanEnabled   bool    `json:"fan_enabled"`
	Emergency    bool    `json:"emergency"`
	Enabled      bool    `json:"enabled"`
	SensorsValid int     `json:"sensors_valid"`
	SensorsTotal int     `json:"sensors_total"`
}

// FormatChannelPayload creates the JSON payload for a channel snapshot.
func FormatChannelPayload(ev ChannelEvent) ([]byte, error) {
	return json.Marshal(channelPayload{
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		PWM:       ev.PWM,
		Current:   ev.Current,
		MoonPhase: ev.MoonPhase,
	})
}

// ParseSensorPayload decodes a remote sensor sample: either a bare float
// ("24.5") or a JSON object with a temperature_c field.
func ParseSensorPayload(payload []byte) (float64, error) {
	s := string(bytes.TrimSpace(payload))
	if s == "" {
		return 0, fmt.Errorf("empty sensor payload")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	var doc struct {
		TemperatureC *float64 `json:"temperature_c"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return 0, fmt.Errorf("sensor payload %q: %w", s, err)
	}
	if doc.TemperatureC == nil {
		return 0, fmt.Errorf("sensor payload %q: missing temperature_c", s)
	}
	return *doc.TemperatureC, nil
}

// FormatThermalPayload creates the JSON payload for a thermal snapshot.
func FormatThermalPayload(ev ThermalEvent) ([]byte, error) {
	return json.Marshal(thermalPayload{
		Timestamp:    ev.Timestamp.UTC().Format(time.RFC3339),
		TempC:        ev.TempC,
		TargetC:      ev.TargetC,
		FanPWM:       ev.FanPWM,
		FanRPM:       ev.FanRPM,
		FanEnabled:   ev.FanEnabled,
		Emergency:    ev.Emergency,
		Enabled:      ev.Enabled,
		SensorsValid: ev.SensorsValid,
		SensorsTotal: ev.SensorsTotal,
	})
}
