package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "location:\n  lat_deg: 37.7\n  lon_deg: -122.4\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Schedule.Channels != 8 {
		t.Fatalf("channels=%d want 8", cfg.Schedule.Channels)
	}
	if cfg.Schedule.Interval != 1*time.Second {
		t.Fatalf("interval=%s want 1s", cfg.Schedule.Interval)
	}
	if cfg.Schedule.AstroRefresh != 5*time.Minute {
		t.Fatalf("astro_refresh=%s want 5m", cfg.Schedule.AstroRefresh)
	}
	if cfg.Fan.Backend != "pwm" || cfg.Fan.Pin != 18 || cfg.Fan.FrequencyHz != 25000 {
		t.Fatalf("fan defaults not applied: %+v", cfg.Fan)
	}
	if cfg.Sensors.Bus != "/dev/i2c-1" {
		t.Fatalf("sensors.bus=%q", cfg.Sensors.Bus)
	}
	if cfg.MQTT.TopicPrefix != "ledbrick" || cfg.MQTT.Interval != 5*time.Second {
		t.Fatalf("mqtt defaults not applied: %+v", cfg.MQTT)
	}
	if cfg.Sim.AmbientTempC != 25 || cfg.Sim.TimeScale != 1 {
		t.Fatalf("sim defaults not applied: %+v", cfg.Sim)
	}
}

func TestLoad_ThermalDefaultsMatchController(t *testing.T) {
	path := writeTempConfig(t, "location: {lat_deg: 0, lon_deg: 0}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	tc := cfg.ThermalControllerConfig()
	if tc.TargetTempC != 45 || tc.EmergencyTempC != 60 || tc.RecoveryTempC != 55 {
		t.Fatalf("thermal defaults: %+v", tc)
	}
}

func TestLoad_ThermalOverrides(t *testing.T) {
	body := "location: {lat_deg: 0, lon_deg: 0}\n" +
		"thermal:\n  target_temp_c: 40\n  fan_update_interval: 2s\n  emergency_delay: 8s\n  sensor_timeout: 15s\n"
	path := writeTempConfig(t, body)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	tc := cfg.ThermalControllerConfig()
	if tc.TargetTempC != 40 {
		t.Fatalf("target=%v want 40", tc.TargetTempC)
	}
	if tc.FanUpdateIntervalMs != int64(2000) {
		t.Fatalf("fan interval=%d want 2000", tc.FanUpdateIntervalMs)
	}
	if tc.EmergencyDelayMs != int64(8000) {
		t.Fatalf("emergency delay=%d want 8000", tc.EmergencyDelayMs)
	}
	if tc.SensorTimeoutMs != int64(15000) {
		t.Fatalf("sensor timeout=%d want 15000", tc.SensorTimeoutMs)
	}
}

func TestLoad_LatitudeRange(t *testing.T) {
	path := writeTempConfig(t, "location:\n  lat_deg: 91\n  lon_deg: 0\n")
	_, err := Load(path)
	requireErrEq(t, err, "location.lat_deg must be in [-90, 90]")
}

func TestLoad_ChannelsRange(t *testing.T) {
	path := writeTempConfig(t, "location: {lat_deg: 0, lon_deg: 0}\nschedule:\n  channels: 17\n")
	_, err := Load(path)
	requireErrEq(t, err, "schedule.channels must be in [1, 16]")
}

func TestLoad_PathAndPresetExclusive(t *testing.T) {
	body := "location: {lat_deg: 0, lon_deg: 0}\nschedule:\n  path: './s.json'\n  preset: default\n"
	path := writeTempConfig(t, body)
	_, err := Load(path)
	requireErrEq(t, err, "schedule.path and schedule.preset cannot both be set")
}

func TestLoad_FanBackendValidated(t *testing.T) {
	path := writeTempConfig(t, "location: {lat_deg: 0, lon_deg: 0}\nfan:\n  backend: spi\n")
	_, err := Load(path)
	requireErrEq(t, err, "fan.backend must be 'pwm' or 'gpio'")
}

func TestLoad_SensorValidation(t *testing.T) {
	cases := []struct {
		name  string
		extra string
		want  string
	}{
		{
			name:  "MissingName",
			extra: "sensors:\n  devices:\n    - addr: 0x18\n",
			want:  "sensors.devices[0].name is required",
		},
		{
			name:  "DuplicateName",
			extra: "sensors:\n  devices:\n    - {name: board, addr: 0x18}\n    - {name: board, addr: 0x19}\n",
			want:  `sensors.devices[1].name "board" is duplicated`,
		},
		{
			name:  "BadAddress",
			extra: "sensors:\n  devices:\n    - {name: board, addr: 0x90}\n",
			want:  "sensors.devices[0].addr 0x90 is not a valid 7-bit address",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := "location: {lat_deg: 0, lon_deg: 0}\n" + tc.extra
			path := writeTempConfig(t, body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MQTTRequiresBroker(t *testing.T) {
	path := writeTempConfig(t, "location: {lat_deg: 0, lon_deg: 0}\nmqtt:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "mqtt.broker is required when mqtt.enable is true")
}

func TestLoad_MQTTSensorValidation(t *testing.T) {
	cases := []struct {
		name  string
		extra string
		want  string
	}{
		{
			name:  "RequiresEnable",
			extra: "mqtt:\n  sensors: [sump]\n",
			want:  "mqtt.sensors requires mqtt.enable",
		},
		{
			name:  "NameCollision",
			extra: "sensors:\n  devices:\n    - {name: sump, addr: 0x18}\nmqtt:\n  enable: true\n  broker: 'tcp://localhost:1883'\n  sensors: [sump]\n",
			want:  `mqtt.sensors[0] "sump" collides with an i2c sensor name`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := "location: {lat_deg: 0, lon_deg: 0}\n" + tc.extra
			path := writeTempConfig(t, body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_InvalidThermalRejected(t *testing.T) {
	body := "location: {lat_deg: 0, lon_deg: 0}\n" +
		"thermal:\n  emergency_temp_c: 50\n  recovery_temp_c: 55\n"
	path := writeTempConfig(t, body)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected thermal validation error")
	}
}
