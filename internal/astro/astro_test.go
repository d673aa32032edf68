package astro

import (
	"math"
	"testing"
)

func minutesOf(h, m int) int { return h*60 + m }

func withinMinutes(t *testing.T, name string, got, want, tol int) {
	t.Helper()
	if got < want-tol || got > want+tol {
		t.Fatalf("%s = %d min (%02d:%02d), want %d +/- %d", name, got, got/60, got%60, want, tol)
	}
}

// San Francisco, 2025-01-15, UTC-8. Almanac: sunrise 07:25, sunset 17:20.
func sanFrancisco() (*Calculator, DateTime) {
	c := NewCalculator(Location{LatDeg: 37.7749, LonDeg: -122.4194}, -8)
	return c, DateTime{Year: 2025, Month: 1, Day: 15, Hour: 12}
}

func TestJulianDayEpoch(t *testing.T) {
	c := NewCalculator(Location{}, 0)
	jd := c.julianDay(DateTime{Year: 2000, Month: 1, Day: 1, Hour: 12})
	if math.Abs(jd-j2000) > 1e-6 {
		t.Fatalf("julianDay(2000-01-01T12:00Z) = %f, want %f", jd, j2000)
	}
}

func TestJulianDayTimezoneOffset(t *testing.T) {
	utc := NewCalculator(Location{}, 0)
	west := NewCalculator(Location{}, -8)
	dt := DateTime{Year: 2025, Month: 1, Day: 15, Hour: 12}
	diff := west.julianDay(dt) - utc.julianDay(dt)
	if math.Abs(diff-8.0/24.0) > 1e-9 {
		t.Fatalf("tz -8 should shift JD by +8h, got %f days", diff)
	}
}

func TestSunRiseSetSanFrancisco(t *testing.T) {
	c, dt := sanFrancisco()
	rs := c.SunRiseSet(dt)
	if !rs.RiseValid || !rs.SetValid {
		t.Fatalf("expected valid sunrise and sunset, got %+v", rs)
	}
	withinMinutes(t, "sunrise", rs.RiseMinutes, minutesOf(7, 25), 5)
	withinMinutes(t, "sunset", rs.SetMinutes, minutesOf(17, 20), 5)
}

func TestSolarNoonSanFrancisco(t *testing.T) {
	c, dt := sanFrancisco()
	times := c.Times(dt)
	// Mean solar noon at -122.42 in UTC-8 is 12:10; the January equation of
	// time pushes true noon to about 12:19.
	withinMinutes(t, "solar noon", times.SolarNoonMinutes, minutesOf(12, 19), 6)
}

func TestTwilightOrdering(t *testing.T) {
	c, dt := sanFrancisco()
	tm := c.Times(dt)
	if !(tm.AstronomicalDawnMinutes < tm.NauticalDawnMinutes &&
		tm.NauticalDawnMinutes < tm.CivilDawnMinutes &&
		tm.CivilDawnMinutes < tm.SunriseMinutes) {
		t.Fatalf("dawn sequence out of order: %+v", tm)
	}
	if !(tm.SunsetMinutes < tm.CivilDuskMinutes &&
		tm.CivilDuskMinutes < tm.NauticalDuskMinutes &&
		tm.NauticalDuskMinutes < tm.AstronomicalDuskMinutes) {
		t.Fatalf("dusk sequence out of order: %+v", tm)
	}
}

func TestEquatorEquinoxDayLength(t *testing.T) {
	c := NewCalculator(Location{LatDeg: 0, LonDeg: 0}, 0)
	rs := c.SunRiseSet(DateTime{Year: 2025, Month: 3, Day: 20, Hour: 12})
	if !rs.RiseValid || !rs.SetValid {
		t.Fatalf("expected valid rise/set at equator, got %+v", rs)
	}
	dayLen := rs.SetMinutes - rs.RiseMinutes
	// Refraction plus semi-diameter stretch the geometric 720 by a few min.
	withinMinutes(t, "day length", dayLen, 720, 15)
}

func TestPolarDayNoSunEvents(t *testing.T) {
	c := NewCalculator(Location{LatDeg: 71, LonDeg: 25}, 2)
	rs := c.SunRiseSet(DateTime{Year: 2025, Month: 6, Day: 21, Hour: 12})
	if rs.RiseValid || rs.SetValid {
		t.Fatalf("71N midsummer: sun never crosses the horizon, got %+v", rs)
	}
}

func TestPolarNightFallbacks(t *testing.T) {
	c := NewCalculator(Location{LatDeg: 71, LonDeg: 25}, 2)
	dt := DateTime{Year: 2025, Month: 12, Day: 21, Hour: 12}

	rs := c.SunRiseSet(dt)
	if rs.RiseValid || rs.SetValid {
		t.Fatalf("71N midwinter: sun stays below the horizon, got %+v", rs)
	}

	tm := c.Times(dt)
	if tm.SunriseMinutes != 420 || tm.SunsetMinutes != 1080 {
		t.Fatalf("invalid sun events should fall back to 07:00/18:00, got %d/%d",
			tm.SunriseMinutes, tm.SunsetMinutes)
	}
	// The sun peaks around -4.4 degrees, so civil twilight still happens.
	if tm.CivilDawnMinutes == 390 && tm.CivilDuskMinutes == 1110 {
		t.Fatalf("civil twilight should be computed, not defaulted: %+v", tm)
	}
}

func TestMoonPhaseBounds(t *testing.T) {
	c := NewCalculator(Location{LatDeg: 37.7749, LonDeg: -122.4194}, -8)
	for day := 1; day <= 31; day++ {
		p := c.MoonPhase(DateTime{Year: 2025, Month: 1, Day: day, Hour: 12})
		if p < 0 || p >= 1 {
			t.Fatalf("day %d: phase %f out of [0,1)", day, p)
		}
	}
}

func TestMoonPhaseFullMoon(t *testing.T) {
	// Full moon 2025-01-13 22:27 UTC.
	c := NewCalculator(Location{}, 0)
	p := c.MoonPhase(DateTime{Year: 2025, Month: 1, Day: 13, Hour: 22})
	if math.Abs(p-0.5) > 0.05 {
		t.Fatalf("phase at full moon = %f, want ~0.5", p)
	}
}

func TestMoonRiseSetSanFrancisco(t *testing.T) {
	c, dt := sanFrancisco()
	rs := c.MoonRiseSet(dt)
	if !rs.RiseValid || !rs.SetValid {
		t.Fatalf("expected valid moonrise and moonset, got %+v", rs)
	}
	// Almanac: moonset 08:22, moonrise 18:13. The truncated geocentric
	// series (largest longitude/latitude terms only, no parallax) is good
	// to roughly 1.5 degrees of altitude, about 90 minutes at the horizon.
	withinMinutes(t, "moonset", rs.SetMinutes, minutesOf(8, 22), 90)
	withinMinutes(t, "moonrise", rs.RiseMinutes, minutesOf(18, 13), 90)
}

func TestSunIntensityDayNight(t *testing.T) {
	c, _ := sanFrancisco()
	noon := DateTime{Year: 2025, Month: 1, Day: 15, Hour: 12, Minute: 19}
	midnight := DateTime{Year: 2025, Month: 1, Day: 15}
	if got := c.SunIntensity(noon); got != 1 {
		t.Fatalf("intensity at solar noon = %f, want 1", got)
	}
	if got := c.SunIntensity(midnight); got != 0 {
		t.Fatalf("intensity at midnight = %f, want 0", got)
	}
}

func TestSunIntensityRampMonotonic(t *testing.T) {
	c, _ := sanFrancisco()
	prev := -1.0
	for m := minutesOf(6, 30); m <= minutesOf(8, 0); m += 5 {
		v := c.SunIntensity(DateTime{Year: 2025, Month: 1, Day: 15, Hour: m / 60, Minute: m % 60})
		if v < prev {
			t.Fatalf("intensity decreased across dawn at %02d:%02d: %f < %f", m/60, m%60, v, prev)
		}
		if v < 0 || v > 1 {
			t.Fatalf("intensity %f out of [0,1]", v)
		}
		prev = v
	}
	if prev <= 0 {
		t.Fatalf("intensity never rose across dawn")
	}
}

func TestProjectionShiftsEvents(t *testing.T) {
	c, dt := sanFrancisco()
	base := c.SunRiseSet(dt)

	c.SetProjection(Projection{Enabled: true, ShiftHours: 3, ShiftMinutes: 30})
	shifted := c.ProjectedSunRiseSet(dt)
	if !shifted.RiseValid || !shifted.SetValid {
		t.Fatalf("projection must preserve validity, got %+v", shifted)
	}
	wantRise := wrapMinutes(base.RiseMinutes + 210)
	wantSet := wrapMinutes(base.SetMinutes + 210)
	if shifted.RiseMinutes != wantRise || shifted.SetMinutes != wantSet {
		t.Fatalf("projected rise/set = %d/%d, want %d/%d",
			shifted.RiseMinutes, shifted.SetMinutes, wantRise, wantSet)
	}
}

func TestProjectionDisabledIsIdentity(t *testing.T) {
	c, dt := sanFrancisco()
	c.SetProjection(Projection{Enabled: false, ShiftHours: 12})
	if got, want := c.ProjectedSunRiseSet(dt), c.SunRiseSet(dt); got != want {
		t.Fatalf("disabled projection changed rise/set: %+v vs %+v", got, want)
	}
}

func TestCrossingsSyntheticCurve(t *testing.T) {
	curve := make([]float64, minutesPerDay)
	for m := range curve {
		// Peaks at minute 720, crosses zero at 360 and 1080.
		curve[m] = 30 * math.Sin(float64(m-360)*math.Pi/720)
	}
	rs := crossings(curve, 0)
	if !rs.RiseValid || !rs.SetValid {
		t.Fatalf("expected crossings, got %+v", rs)
	}
	withinMinutes(t, "synthetic rise", rs.RiseMinutes, 360, 1)
	withinMinutes(t, "synthetic set", rs.SetMinutes, 1080, 1)
}

func TestCrossingsNoEvents(t *testing.T) {
	curve := make([]float64, minutesPerDay)
	for m := range curve {
		curve[m] = 10
	}
	rs := crossings(curve, 0)
	if rs.RiseValid || rs.SetValid {
		t.Fatalf("flat curve above threshold must yield no events, got %+v", rs)
	}
}

func TestTimesSnapshotValid(t *testing.T) {
	c, dt := sanFrancisco()
	tm := c.Times(dt)
	if !tm.Valid {
		t.Fatalf("Times must mark the snapshot valid")
	}
	if !tm.MoonriseValid || !tm.MoonsetValid {
		t.Fatalf("expected valid moon events on 2025-01-15: %+v", tm)
	}
	if tm.MoonPhase < 0 || tm.MoonPhase >= 1 {
		t.Fatalf("moon phase %f out of range", tm.MoonPhase)
	}
}
