package thermal

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TempFilterAlpha = 1 // disable smoothing unless a test wants it
	cfg.EmergencyDelayMs = 0
	return cfg
}

func TestSensorRegistrationAndUpdate(t *testing.T) {
	c := New(testConfig())
	c.AddSensor("board")
	c.AddSensor("water")
	c.AddSensor("board") // duplicate is a no-op

	if n := len(c.Sensors()); n != 2 {
		t.Fatalf("sensor count = %d, want 2", n)
	}
	if err := c.UpdateSensor("board", 41, 1000); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.UpdateSensor("heatsink", 41, 1000); err == nil {
		t.Fatalf("unknown sensor must be rejected")
	}
}

func TestAverageOfValidSensors(t *testing.T) {
	c := New(testConfig())
	c.Enable(true)
	c.AddSensor("a")
	c.AddSensor("b")
	_ = c.UpdateSensor("a", 24, 1000)
	_ = c.UpdateSensor("b", 28, 1000)

	c.Update(2000)
	st := c.Status()
	if !almostEqual(st.CurrentTempC, 26, 0.001) {
		t.Fatalf("mean = %f, want 26", st.CurrentTempC)
	}
	if st.SensorsValid != 2 || st.SensorsTotal != 2 {
		t.Fatalf("validity counts %d/%d, want 2/2", st.SensorsValid, st.SensorsTotal)
	}
}

func TestStaleSensorExcluded(t *testing.T) {
	cfg := testConfig()
	cfg.SensorTimeoutMs = 10000
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("fresh")
	c.AddSensor("stale")
	_ = c.UpdateSensor("stale", 90, 0)
	_ = c.UpdateSensor("fresh", 31, 15000)

	c.Update(20000)
	st := c.Status()
	if st.SensorsValid != 1 {
		t.Fatalf("valid count = %d, want 1", st.SensorsValid)
	}
	if !almostEqual(st.CurrentTempC, 31, 0.001) {
		t.Fatalf("stale sensor leaked into mean: %f", st.CurrentTempC)
	}
}

func TestNoValidSensorsHoldsState(t *testing.T) {
	cfg := testConfig()
	cfg.Kp = -2 // below-target temps would otherwise drive output to zero
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")
	_ = c.UpdateSensor("a", 50, 1000)
	c.Update(1000)
	fanBefore := c.Status().FanPWMPercent

	// Sensor goes stale; current temp and fan command hold.
	c.Update(1000 + cfg.SensorTimeoutMs + 1)
	st := c.Status()
	if st.SensorsValid != 0 {
		t.Fatalf("valid count = %d, want 0", st.SensorsValid)
	}
	if !almostEqual(st.CurrentTempC, 50, 0.001) {
		t.Fatalf("temp should hold at 50, got %f", st.CurrentTempC)
	}
	if st.FanPWMPercent != fanBefore {
		t.Fatalf("fan command changed with no valid sensors: %f -> %f", fanBefore, st.FanPWMPercent)
	}
}

func TestFilterFirstReadingUnfiltered(t *testing.T) {
	cfg := testConfig()
	cfg.TempFilterAlpha = 0.5
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	_ = c.UpdateSensor("a", 25, 1000)
	c.Update(1000)
	if got := c.Status().CurrentTempC; !almostEqual(got, 25, 0.001) {
		t.Fatalf("first reading = %f, want 25 unfiltered", got)
	}

	_ = c.UpdateSensor("a", 30, 2000)
	c.Update(2000)
	if got := c.Status().CurrentTempC; !almostEqual(got, 27.5, 0.001) {
		t.Fatalf("second reading = %f, want 27.5", got)
	}

	_ = c.UpdateSensor("a", 20, 3000)
	c.Update(3000)
	if got := c.Status().CurrentTempC; !almostEqual(got, 23.75, 0.001) {
		t.Fatalf("third reading = %f, want 23.75", got)
	}
}

func TestEmergencyHysteresis(t *testing.T) {
	cfg := testConfig()
	cfg.EmergencyTempC = 70
	cfg.RecoveryTempC = 65
	cfg.EmergencyDelayMs = 0
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	var emergencyEdges []bool
	c.SetEmergencyFunc(func(active bool) { emergencyEdges = append(emergencyEdges, active) })

	_ = c.UpdateSensor("a", 72, 1000)
	c.Update(1000)
	if !c.Emergency() {
		t.Fatalf("72C with zero delay must trip emergency")
	}
	if got := c.Status().FanPWMPercent; got != 100 {
		t.Fatalf("emergency fan = %f, want 100", got)
	}

	// 68 is below emergency but above recovery; stays latched.
	_ = c.UpdateSensor("a", 68, 2000)
	c.Update(2000)
	if !c.Emergency() {
		t.Fatalf("emergency must hold at 68C (recovery is 65)")
	}

	_ = c.UpdateSensor("a", 65, 3000)
	c.Update(3000)
	if c.Emergency() {
		t.Fatalf("emergency must clear at 65C")
	}

	if len(emergencyEdges) != 2 || !emergencyEdges[0] || emergencyEdges[1] {
		t.Fatalf("emergency callback edges = %v, want [true false]", emergencyEdges)
	}
}

func TestEmergencyDebounce(t *testing.T) {
	cfg := testConfig()
	cfg.EmergencyTempC = 70
	cfg.RecoveryTempC = 65
	cfg.EmergencyDelayMs = 2000
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	_ = c.UpdateSensor("a", 75, 1000)
	c.Update(1000)
	if c.Emergency() {
		t.Fatalf("emergency before delay elapsed")
	}
	_ = c.UpdateSensor("a", 75, 2000)
	c.Update(2000)
	if c.Emergency() {
		t.Fatalf("emergency at 1000ms of 2000ms delay")
	}
	_ = c.UpdateSensor("a", 75, 3200)
	c.Update(3200)
	if !c.Emergency() {
		t.Fatalf("emergency not tripped after delay elapsed")
	}
}

func TestEmergencyDebounceFromZeroTimestamp(t *testing.T) {
	cfg := testConfig()
	cfg.EmergencyTempC = 70
	cfg.EmergencyDelayMs = 2000
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	// Over-temp from the first tick at t=0 must arm once, not re-arm
	// every update.
	_ = c.UpdateSensor("a", 75, 0)
	c.Update(0)
	if c.Emergency() {
		t.Fatalf("emergency before delay elapsed")
	}
	_ = c.UpdateSensor("a", 75, 1000)
	c.Update(1000)
	if c.Emergency() {
		t.Fatalf("emergency at 1000ms of 2000ms delay")
	}
	_ = c.UpdateSensor("a", 75, 2000)
	c.Update(2000)
	if !c.Emergency() {
		t.Fatalf("emergency not tripped 2000ms after arming at t=0")
	}
}

func TestEmergencyDebounceResetsOnDip(t *testing.T) {
	cfg := testConfig()
	cfg.EmergencyTempC = 70
	cfg.EmergencyDelayMs = 2000
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	_ = c.UpdateSensor("a", 75, 1000)
	c.Update(1000)
	_ = c.UpdateSensor("a", 60, 2000) // dips below threshold; countdown resets
	c.Update(2000)
	_ = c.UpdateSensor("a", 75, 3000)
	c.Update(3000)
	_ = c.UpdateSensor("a", 75, 4500)
	c.Update(4500)
	if c.Emergency() {
		t.Fatalf("countdown must restart after dipping below threshold")
	}
	_ = c.UpdateSensor("a", 75, 5100)
	c.Update(5100)
	if !c.Emergency() {
		t.Fatalf("emergency not tripped 2100ms after re-crossing")
	}
}

func TestDisableForcesFanOff(t *testing.T) {
	c := New(testConfig())
	var lastPWM float64 = -1
	var lastEnable = true
	c.SetFanPWMFunc(func(p float64) { lastPWM = p })
	c.SetFanEnableFunc(func(on bool) { lastEnable = on })

	c.Enable(true)
	c.AddSensor("a")
	_ = c.UpdateSensor("a", 40, 1000)
	c.Update(1000)

	c.Enable(false)
	if lastPWM != 0 || lastEnable {
		t.Fatalf("disable must force fan off, got pwm=%f enable=%v", lastPWM, lastEnable)
	}

	// Updates while disabled change nothing.
	_ = c.UpdateSensor("a", 90, 2000)
	c.Update(2000)
	if c.Emergency() {
		t.Fatalf("disabled controller must not run the state machine")
	}
}

func TestFanPIDDrive(t *testing.T) {
	cfg := testConfig()
	cfg.TargetTempC = 45
	cfg.Kp = 2
	cfg.Ki = 0
	cfg.Kd = 0
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	var gotPWM float64
	var gotEnable bool
	c.SetFanPWMFunc(func(p float64) { gotPWM = p })
	c.SetFanEnableFunc(func(on bool) { gotEnable = on })

	// error = 45 - 40 = 5, kp 2 -> output 10.
	_ = c.UpdateSensor("a", 40, 1000)
	c.Update(1000)
	if !almostEqual(gotPWM, 10, 0.001) || !gotEnable {
		t.Fatalf("fan drive = %f/%v, want 10/on", gotPWM, gotEnable)
	}
	st := c.Status()
	if !almostEqual(st.PIDError, 5, 0.001) || !almostEqual(st.PIDOutput, 10, 0.001) {
		t.Fatalf("status terms %f/%f, want 5/10", st.PIDError, st.PIDOutput)
	}

	// Output clamps at the configured limit, error = 45 - (-20) = 65.
	_ = c.UpdateSensor("a", -20, 2000)
	c.Update(2000)
	if gotPWM != cfg.MaxFanPWM {
		t.Fatalf("fan drive = %f, want clamped %f", gotPWM, cfg.MaxFanPWM)
	}
}

func TestFanUpdateInterval(t *testing.T) {
	cfg := testConfig()
	cfg.FanUpdateIntervalMs = 1000
	cfg.Kp = 2
	cfg.Ki = 0
	cfg.Kd = 0
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	calls := 0
	c.SetFanPWMFunc(func(float64) { calls++ })

	_ = c.UpdateSensor("a", 40, 1000)
	c.Update(1000)
	c.Update(1400) // within the interval; no fan recompute
	c.Update(2100)
	if calls != 2 {
		t.Fatalf("fan callback ran %d times, want 2", calls)
	}
}

func TestFanCurveShape(t *testing.T) {
	cfg := testConfig()
	cfg.TargetTempC = 45
	cfg.RecoveryTempC = 55
	cfg.EmergencyTempC = 60
	cfg.MinFanPWM = 10
	cfg.MaxFanPWM = 100
	c := New(cfg)

	curve := c.FanCurve()
	if len(curve) != 7 {
		t.Fatalf("curve has %d points, want 7", len(curve))
	}
	if curve[0].TempC != 35 || curve[0].FanPWM != 10 {
		t.Fatalf("first point %+v, want {35 10}", curve[0])
	}
	if curve[2].TempC != 45 || curve[2].FanPWM != 30 {
		t.Fatalf("target point %+v, want {45 30}", curve[2])
	}
	if curve[6].TempC != 65 || curve[6].FanPWM != 100 {
		t.Fatalf("last point %+v, want {65 100}", curve[6])
	}
	for i := 1; i < len(curve); i++ {
		if curve[i].TempC < curve[i-1].TempC || curve[i].FanPWM < curve[i-1].FanPWM {
			t.Fatalf("curve not monotonic at %d: %+v -> %+v", i, curve[i-1], curve[i])
		}
	}
}

func TestFanCurveClampsToLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MinFanPWM = 40
	cfg.MaxFanPWM = 90
	c := New(cfg)
	for _, p := range c.FanCurve() {
		if p.FanPWM < 40 || p.FanPWM > 90 {
			t.Fatalf("curve pwm %f outside [40,90]", p.FanPWM)
		}
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.TargetTempC = 42.5
	cfg.MinFanPWM = 15
	cfg.MaxFanPWM = 95
	cfg.EmergencyTempC = 72
	cfg.RecoveryTempC = 66
	c := New(cfg)

	doc, err := c.ExportConfigJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	c2 := New(DefaultConfig())
	if err := c2.ImportConfigJSON(doc); err != nil {
		t.Fatalf("import: %v", err)
	}
	if c2.Config() != cfg {
		t.Fatalf("round trip differs:\n got %+v\nwant %+v", c2.Config(), cfg)
	}
}

func TestImportConfigJSONRejectsInvalid(t *testing.T) {
	c := New(DefaultConfig())
	before := c.Config()

	cases := map[string]string{
		"malformed":          `{"target_temp_c":`,
		"recovery too high":  `{"recovery_temp_c":80,"emergency_temp_c":70}`,
		"alpha out of range": `{"temp_filter_alpha":1.5}`,
		"bad fan limits":     `{"min_fan_pwm":90,"max_fan_pwm":10}`,
	}
	for name, doc := range cases {
		if err := c.ImportConfigJSON([]byte(doc)); err == nil {
			t.Fatalf("%s: import should fail", name)
		}
		if c.Config() != before {
			t.Fatalf("%s: failed import mutated config", name)
		}
	}
}

func TestReEnableResetsPID(t *testing.T) {
	cfg := testConfig()
	cfg.Kp = 2
	cfg.Ki = 0.5
	cfg.Kd = 0
	c := New(cfg)
	c.Enable(true)
	c.AddSensor("a")

	// Accumulate integral.
	for ms := int64(1000); ms <= 5000; ms += 1000 {
		_ = c.UpdateSensor("a", 40, ms)
		c.Update(ms)
	}
	c.Enable(false)
	c.Enable(true)

	var gotPWM float64
	c.SetFanPWMFunc(func(p float64) { gotPWM = p })
	_ = c.UpdateSensor("a", 40, 10000)
	c.Update(10000)

	// From reset state: error 5, one second of integral = 5.
	want := 2*5 + 0.5*5
	if !almostEqual(gotPWM, want, 0.01) {
		t.Fatalf("post-reset output = %f, want %f", gotPWM, want)
	}
}
