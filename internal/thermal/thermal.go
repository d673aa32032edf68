// Package thermal supervises fixture temperature: it averages and filters
// sensor readings, drives a fan through a PID loop, and latches a thermal
// emergency with debounce on entry and hysteresis on exit.
//
// The controller never touches hardware; fan and emergency effects go
// through caller-supplied callbacks, and time is an explicit millisecond
// argument so the loop is fully testable.
package thermal

import (
	"fmt"
	"log"

	"ledbrick-ng/internal/pid"
)

// fanOnThresholdPWM is the PID output above which the fan enable line is
// asserted.
const fanOnThresholdPWM = 0.1

// Sensor is one temperature input with staleness tracking.
type Sensor struct {
	Name         string
	TempC        float64
	Valid        bool
	LastUpdateMs int64
}

// Status is a snapshot of the supervisor for monitoring.
type Status struct {
	Enabled          bool
	ThermalEmergency bool
	FanEnabled       bool
	CurrentTempC     float64
	TargetTempC      float64
	FanPWMPercent    float64
	FanRPM           float64
	PIDError         float64
	PIDOutput        float64
	EmergencyStartMs int64
	SensorsValid     int
	SensorsTotal     int
}

// CurvePoint is one reference point of the descriptive fan curve.
type CurvePoint struct {
	TempC  float64
	FanPWM float64
}

// Controller is the thermal supervisor for one fixture.
type Controller struct {
	cfg     Config
	pid     *pid.Controller
	sensors []Sensor
	status  Status

	lastUpdateMs    int64
	lastFanUpdateMs int64
	emergencyArming bool  // temp currently held at/above the emergency threshold
	emergencyArmMs  int64 // first ms of the current over-temp stretch

	filteredTemp float64
	haveReading  bool

	fanPWMFunc    func(percent float64)
	fanEnableFunc func(on bool)
	emergencyFunc func(active bool)
}

// New returns a disabled controller with the given config applied.
func New(cfg Config) *Controller {
	t := &Controller{
		pid: pid.New(cfg.Kp, cfg.Ki, cfg.Kd, cfg.MinFanPWM, cfg.MaxFanPWM),
	}
	t.SetConfig(cfg)
	return t
}

// SetConfig applies a new config and retunes the PID loop.
func (t *Controller) SetConfig(cfg Config) {
	t.cfg = cfg
	t.pid.SetTarget(cfg.TargetTempC)
	t.pid.SetTunings(cfg.Kp, cfg.Ki, cfg.Kd)
	t.pid.SetOutputLimits(cfg.MinFanPWM, cfg.MaxFanPWM)
	t.status.TargetTempC = cfg.TargetTempC
}

// Config returns the active config.
func (t *Controller) Config() Config { return t.cfg }

// SetFanPWMFunc registers the fan speed output.
func (t *Controller) SetFanPWMFunc(fn func(percent float64)) { t.fanPWMFunc = fn }

// SetFanEnableFunc registers the fan enable output.
func (t *Controller) SetFanEnableFunc(fn func(on bool)) { t.fanEnableFunc = fn }

// SetEmergencyFunc registers the emergency notification, fired on both edges.
func (t *Controller) SetEmergencyFunc(fn func(active bool)) { t.emergencyFunc = fn }

// UpdateFanRPM records the measured fan speed for status reporting.
func (t *Controller) UpdateFanRPM(rpm float64) { t.status.FanRPM = rpm }

// AddSensor registers a named sensor. Adding an existing name is a no-op.
func (t *Controller) AddSensor(name string) {
	for _, s := range t.sensors {
		if s.Name == name {
			return
		}
	}
	t.sensors = append(t.sensors, Sensor{Name: name})
}

// UpdateSensor stores a reading for a registered sensor.
func (t *Controller) UpdateSensor(name string, tempC float64, nowMs int64) error {
	for i := range t.sensors {
		if t.sensors[i].Name == name {
			t.sensors[i].TempC = tempC
			t.sensors[i].Valid = true
			t.sensors[i].LastUpdateMs = nowMs
			return nil
		}
	}
	return fmt.Errorf("unknown temperature sensor %q", name)
}

// Sensors returns a copy of all registered sensors.
func (t *Controller) Sensors() []Sensor {
	out := make([]Sensor, len(t.sensors))
	copy(out, t.sensors)
	return out
}

// Enable turns the supervisor on or off. Turning it off forces the fan off
// through the callbacks; turning it on resumes from PID reset.
func (t *Controller) Enable(on bool) {
	if t.status.Enabled == on {
		return
	}
	t.status.Enabled = on

	if on {
		t.pid.Reset()
		t.emergencyArming = false
		t.emergencyArmMs = 0
		t.lastUpdateMs = 0
		t.lastFanUpdateMs = 0
		return
	}

	if t.fanEnableFunc != nil {
		t.fanEnableFunc(false)
	}
	if t.fanPWMFunc != nil {
		t.fanPWMFunc(0)
	}
	t.status.FanEnabled = false
	t.status.FanPWMPercent = 0
}

// Status returns the current snapshot.
func (t *Controller) Status() Status { return t.status }

// Emergency reports whether the thermal emergency latch is set.
func (t *Controller) Emergency() bool { return t.status.ThermalEmergency }

// ResetPID clears the accumulated PID state.
func (t *Controller) ResetPID() { t.pid.Reset() }

// Update runs one supervision step: sensor staleness, averaging, filtering,
// emergency state machine, then fan control. A no-op while disabled.
func (t *Controller) Update(nowMs int64) {
	if !t.status.Enabled {
		return
	}
	t.lastUpdateMs = nowMs

	avg, valid := t.averageTemperature(nowMs)
	if valid > 0 {
		t.filter(avg)
	}
	t.status.CurrentTempC = t.filteredTemp

	t.updateEmergency(nowMs)

	if t.status.ThermalEmergency {
		return
	}
	if valid == 0 {
		// No trustworthy reading; hold the last fan command.
		return
	}
	t.updateFan(nowMs)
}

// averageTemperature marks stale sensors invalid and returns the mean of the
// rest along with the valid count.
func (t *Controller) averageTemperature(nowMs int64) (float64, int) {
	sum := 0.0
	valid := 0
	for i := range t.sensors {
		s := &t.sensors[i]
		if s.Valid && nowMs-s.LastUpdateMs <= t.cfg.SensorTimeoutMs {
			sum += s.TempC
			valid++
		} else {
			s.Valid = false
		}
	}
	t.status.SensorsValid = valid
	t.status.SensorsTotal = len(t.sensors)

	if valid == 0 {
		return t.status.CurrentTempC, 0
	}
	return sum / float64(valid), valid
}

// filter applies the exponential low-pass. The first reading passes through
// unfiltered so a rig starting at 40C does not spend minutes climbing from
// zero.
func (t *Controller) filter(raw float64) {
	if !t.haveReading {
		t.filteredTemp = raw
		t.haveReading = true
		return
	}
	a := t.cfg.TempFilterAlpha
	t.filteredTemp = a*raw + (1-a)*t.filteredTemp
}

// updateEmergency runs the two-state machine: entry is debounced by
// EmergencyDelayMs of continuous over-temperature, exit requires cooling to
// RecoveryTempC.
func (t *Controller) updateEmergency(nowMs int64) {
	if !t.status.ThermalEmergency {
		if t.status.CurrentTempC >= t.cfg.EmergencyTempC {
			if !t.emergencyArming {
				t.emergencyArming = true
				t.emergencyArmMs = nowMs
				log.Printf("thermal: %.1fC at or above emergency threshold %.1fC, arming",
					t.status.CurrentTempC, t.cfg.EmergencyTempC)
			}
			if nowMs-t.emergencyArmMs >= t.cfg.EmergencyDelayMs {
				t.enterEmergency(nowMs)
			}
		} else {
			t.emergencyArming = false
			t.emergencyArmMs = 0
		}
		return
	}

	if t.status.CurrentTempC <= t.cfg.RecoveryTempC {
		t.clearEmergency()
	}
}

func (t *Controller) enterEmergency(nowMs int64) {
	t.status.ThermalEmergency = true
	t.status.EmergencyStartMs = nowMs
	log.Printf("thermal: EMERGENCY at %.1fC, fan forced to 100%%", t.status.CurrentTempC)

	if t.fanEnableFunc != nil {
		t.fanEnableFunc(true)
	}
	if t.fanPWMFunc != nil {
		t.fanPWMFunc(100)
	}
	t.status.FanEnabled = true
	t.status.FanPWMPercent = 100

	if t.emergencyFunc != nil {
		t.emergencyFunc(true)
	}
}

func (t *Controller) clearEmergency() {
	t.status.ThermalEmergency = false
	t.emergencyArming = false
	t.emergencyArmMs = 0
	log.Printf("thermal: emergency cleared at %.1fC", t.status.CurrentTempC)

	if t.emergencyFunc != nil {
		t.emergencyFunc(false)
	}
	t.pid.Reset()
}

// updateFan recomputes the PID output at the configured cadence and pushes
// it through the fan callbacks.
func (t *Controller) updateFan(nowMs int64) {
	if t.lastFanUpdateMs != 0 && nowMs-t.lastFanUpdateMs < t.cfg.FanUpdateIntervalMs {
		return
	}
	dtMs := t.cfg.FanUpdateIntervalMs
	if t.lastFanUpdateMs != 0 {
		dtMs = nowMs - t.lastFanUpdateMs
	}
	t.lastFanUpdateMs = nowMs

	out := t.pid.Compute(t.status.CurrentTempC, uint32(dtMs))
	t.status.PIDError = t.pid.Error()
	t.status.PIDOutput = out
	t.status.FanPWMPercent = out

	on := out > fanOnThresholdPWM
	if on != t.status.FanEnabled {
		t.status.FanEnabled = on
		if t.fanEnableFunc != nil {
			t.fanEnableFunc(on)
		}
	}
	if t.fanPWMFunc != nil {
		if on {
			t.fanPWMFunc(out)
		} else {
			t.fanPWMFunc(0)
		}
	}
}

// FanCurve returns seven reference points spanning well-below-target to
// past-emergency, clamped to the configured PWM limits and non-decreasing on
// both axes. Descriptive only; the live fan command comes from the PID loop.
func (t *Controller) FanCurve() []CurvePoint {
	clampPWM := func(v float64) float64 {
		if v < t.cfg.MinFanPWM {
			return t.cfg.MinFanPWM
		}
		if v > t.cfg.MaxFanPWM {
			return t.cfg.MaxFanPWM
		}
		return v
	}

	curve := []CurvePoint{
		{t.cfg.TargetTempC - 10, clampPWM(t.cfg.MinFanPWM)},
		{t.cfg.TargetTempC - 5, clampPWM(t.cfg.MinFanPWM)},
		{t.cfg.TargetTempC, clampPWM(30)},
		{t.cfg.TargetTempC + 5, clampPWM(60)},
		{t.cfg.RecoveryTempC, clampPWM(80)},
		{t.cfg.EmergencyTempC, clampPWM(100)},
		{t.cfg.EmergencyTempC + 5, clampPWM(100)},
	}

	// Configs with a tight target-to-emergency band could fold the axis
	// back; force monotonicity in declaration order.
	for i := 1; i < len(curve); i++ {
		if curve[i].TempC < curve[i-1].TempC {
			curve[i].TempC = curve[i-1].TempC
		}
		if curve[i].FanPWM < curve[i-1].FanPWM {
			curve[i].FanPWM = curve[i-1].FanPWM
		}
	}
	return curve
}
