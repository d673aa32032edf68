package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ledbrick-ng/internal/thermal"
)

type Config struct {
	Location LocationConfig `yaml:"location"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Thermal  ThermalConfig  `yaml:"thermal"`
	Fan      FanConfig      `yaml:"fan"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sim      SimConfig      `yaml:"sim"`
}

type LocationConfig struct {
	LatDeg              float64          `yaml:"lat_deg"`
	LonDeg              float64          `yaml:"lon_deg"`
	TimezoneOffsetHours float64          `yaml:"timezone_offset_hours"`
	Projection          ProjectionConfig `yaml:"projection"`
}

type ProjectionConfig struct {
	Enable       bool `yaml:"enable"`
	ShiftHours   int  `yaml:"shift_hours"`
	ShiftMinutes int  `yaml:"shift_minutes"`
}

type ScheduleConfig struct {
	Channels     int           `yaml:"channels"`
	Path         string        `yaml:"path"`
	Preset       string        `yaml:"preset"`
	Interval     time.Duration `yaml:"interval"`
	AstroRefresh time.Duration `yaml:"astro_refresh"`
}

type ThermalConfig struct {
	TargetTempC       float64       `yaml:"target_temp_c"`
	Kp                float64       `yaml:"kp"`
	Ki                float64       `yaml:"ki"`
	Kd                float64       `yaml:"kd"`
	MinFanPWM         float64       `yaml:"min_fan_pwm"`
	MaxFanPWM         float64       `yaml:"max_fan_pwm"`
	FanUpdateInterval time.Duration `yaml:"fan_update_interval"`
	EmergencyTempC    float64       `yaml:"emergency_temp_c"`
	RecoveryTempC     float64       `yaml:"recovery_temp_c"`
	EmergencyDelay    time.Duration `yaml:"emergency_delay"`
	SensorTimeout     time.Duration `yaml:"sensor_timeout"`
	TempFilterAlpha   float64       `yaml:"temp_filter_alpha"`
}

type FanConfig struct {
	Enable      bool    `yaml:"enable"`
	Backend     string  `yaml:"backend"`
	Pin         int     `yaml:"pin"`
	FrequencyHz int     `yaml:"frequency_hz"`
	MinDuty     float64 `yaml:"min_duty"`
}

type SensorsConfig struct {
	Bus     string         `yaml:"bus"`
	Devices []SensorDevice `yaml:"devices"`
}

type SensorDevice struct {
	Name string `yaml:"name"`
	Addr uint16 `yaml:"addr"`
}

type MQTTConfig struct {
	Enable      bool          `yaml:"enable"`
	Broker      string        `yaml:"broker"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Interval    time.Duration `yaml:"interval"`
	// Sensors are remote temperature probes fed over MQTT; each name is
	// subscribed under <topic_prefix>/sensors/<name>.
	Sensors []string `yaml:"sensors"`
}

type SimConfig struct {
	Enable          bool    `yaml:"enable"`
	AmbientTempC    float64 `yaml:"ambient_temp_c"`
	HeatRateCPerPct float64 `yaml:"heat_rate_c_per_pct"`
	CoolRateCPerPct float64 `yaml:"cool_rate_c_per_pct"`
	TimeScale       float64 `yaml:"time_scale"`
}

// ThermalControllerConfig converts the yaml thermal section into the flat
// controller config, starting from the controller defaults so unset fields
// stay sane.
func (c Config) ThermalControllerConfig() thermal.Config {
	tc := thermal.DefaultConfig()
	t := c.Thermal
	if t.TargetTempC != 0 {
		tc.TargetTempC = t.TargetTempC
	}
	if t.Kp != 0 {
		tc.Kp = t.Kp
	}
	if t.Ki != 0 {
		tc.Ki = t.Ki
	}
	if t.Kd != 0 {
		tc.Kd = t.Kd
	}
	if t.MinFanPWM != 0 {
		tc.MinFanPWM = t.MinFanPWM
	}
	if t.MaxFanPWM != 0 {
		tc.MaxFanPWM = t.MaxFanPWM
	}
	if t.FanUpdateInterval > 0 {
		tc.FanUpdateIntervalMs = int64(t.FanUpdateInterval / time.Millisecond)
	}
	if t.EmergencyTempC != 0 {
		tc.EmergencyTempC = t.EmergencyTempC
	}
	if t.RecoveryTempC != 0 {
		tc.RecoveryTempC = t.RecoveryTempC
	}
	if t.EmergencyDelay > 0 {
		tc.EmergencyDelayMs = int64(t.EmergencyDelay / time.Millisecond)
	}
	if t.SensorTimeout > 0 {
		tc.SensorTimeoutMs = int64(t.SensorTimeout / time.Millisecond)
	}
	if t.TempFilterAlpha != 0 {
		tc.TempFilterAlpha = t.TempFilterAlpha
	}
	return tc
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Location.LatDeg < -90 || cfg.Location.LatDeg > 90 {
		return Config{}, fmt.Errorf("location.lat_deg must be in [-90, 90]")
	}
	if cfg.Location.LonDeg < -180 || cfg.Location.LonDeg > 180 {
		return Config{}, fmt.Errorf("location.lon_deg must be in [-180, 180]")
	}
	if cfg.Location.TimezoneOffsetHours < -12 || cfg.Location.TimezoneOffsetHours > 14 {
		return Config{}, fmt.Errorf("location.timezone_offset_hours must be in [-12, 14]")
	}

	if cfg.Schedule.Channels == 0 {
		cfg.Schedule.Channels = 8
	}
	if cfg.Schedule.Channels < 1 || cfg.Schedule.Channels > 16 {
		return Config{}, fmt.Errorf("schedule.channels must be in [1, 16]")
	}
	if cfg.Schedule.Interval <= 0 {
		cfg.Schedule.Interval = 1 * time.Second
	}
	if cfg.Schedule.AstroRefresh <= 0 {
		cfg.Schedule.AstroRefresh = 5 * time.Minute
	}
	if cfg.Schedule.Path != "" && cfg.Schedule.Preset != "" {
		return Config{}, fmt.Errorf("schedule.path and schedule.preset cannot both be set")
	}

	if err := cfg.ThermalControllerConfig().Validate(); err != nil {
		return Config{}, fmt.Errorf("thermal: %w", err)
	}

	if cfg.Fan.Backend == "" {
		cfg.Fan.Backend = "pwm"
	}
	if cfg.Fan.Backend != "pwm" && cfg.Fan.Backend != "gpio" {
		return Config{}, fmt.Errorf("fan.backend must be 'pwm' or 'gpio'")
	}
	if cfg.Fan.Pin == 0 {
		cfg.Fan.Pin = 18
	}
	if cfg.Fan.FrequencyHz <= 0 {
		cfg.Fan.FrequencyHz = 25000
	}
	if cfg.Fan.MinDuty < 0 || cfg.Fan.MinDuty > 100 {
		return Config{}, fmt.Errorf("fan.min_duty must be in [0, 100]")
	}

	if cfg.Sensors.Bus == "" {
		cfg.Sensors.Bus = "/dev/i2c-1"
	}
	seen := make(map[string]bool)
	for i, dev := range cfg.Sensors.Devices {
		if dev.Name == "" {
			return Config{}, fmt.Errorf("sensors.devices[%d].name is required", i)
		}
		if seen[dev.Name] {
			return Config{}, fmt.Errorf("sensors.devices[%d].name %q is duplicated", i, dev.Name)
		}
		seen[dev.Name] = true
		if dev.Addr == 0 || dev.Addr > 0x7F {
			return Config{}, fmt.Errorf("sensors.devices[%d].addr 0x%X is not a valid 7-bit address", i, dev.Addr)
		}
	}

	if cfg.MQTT.Enable && cfg.MQTT.Broker == "" {
		return Config{}, fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if len(cfg.MQTT.Sensors) > 0 && !cfg.MQTT.Enable {
		return Config{}, fmt.Errorf("mqtt.sensors requires mqtt.enable")
	}
	for i, name := range cfg.MQTT.Sensors {
		if name == "" {
			return Config{}, fmt.Errorf("mqtt.sensors[%d] must not be empty", i)
		}
		if seen[name] {
			return Config{}, fmt.Errorf("mqtt.sensors[%d] %q collides with an i2c sensor name", i, name)
		}
		seen[name] = true
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "ledbrick"
	}
	if cfg.MQTT.Interval <= 0 {
		cfg.MQTT.Interval = 5 * time.Second
	}

	// Simulator defaults (safe even if disabled).
	if cfg.Sim.AmbientTempC == 0 {
		cfg.Sim.AmbientTempC = 25
	}
	if cfg.Sim.HeatRateCPerPct <= 0 {
		cfg.Sim.HeatRateCPerPct = 0.004
	}
	if cfg.Sim.CoolRateCPerPct <= 0 {
		cfg.Sim.CoolRateCPerPct = 0.003
	}
	if cfg.Sim.TimeScale <= 0 {
		cfg.Sim.TimeScale = 1
	}

	return cfg, nil
}
