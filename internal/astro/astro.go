// Package astro computes sun and moon positions, rise/set times, twilight
// boundaries and moon phase for a geodetic location, using low-precision
// ecliptic series suitable for lighting control.
//
// All math is platform-free and bounded: rise/set searches scan at most one
// altitude sample per minute of the civil day. Times are expressed as minutes
// from local midnight; the caller supplies the timezone offset.
//
// The lunar model is geocentric. Topocentric parallax (up to ~1 degree of
// altitude for the moon) is a known residual error source for moonrise and
// moonset; see DESIGN.md before changing the horizon thresholds.
package astro

import "math"

// DateTime is a civil date and time with no timezone attached. The calculator
// converts it to a Julian Day using its configured timezone offset.
type DateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// Location is a geodetic position in degrees.
type Location struct {
	LatDeg float64 // [-90, 90]
	LonDeg float64 // [-180, 180]
}

// Projection is a linear time shift letting one location's astronomical clock
// appear at another wall-clock hour (e.g. a Pacific reef day displayed on
// European evening hours).
type Projection struct {
	Enabled      bool
	ShiftHours   int
	ShiftMinutes int
}

// Position is a topocentric direction: altitude above the horizon and azimuth
// measured clockwise from north, both in degrees.
type Position struct {
	AltitudeDeg float64
	AzimuthDeg  float64
}

// RiseSet holds the minutes-from-midnight of a body's rise and set events.
// A day can have zero, one or two valid events (polar day/night); callers
// must check the validity flags.
type RiseSet struct {
	RiseMinutes int
	SetMinutes  int
	RiseValid   bool
	SetValid    bool
}

// Times is the per-day astronomical snapshot consumed by the scheduler.
// It is immutable once built for a tick.
type Times struct {
	SunriseMinutes          int
	SolarNoonMinutes        int
	SunsetMinutes           int
	CivilDawnMinutes        int
	CivilDuskMinutes        int
	NauticalDawnMinutes     int
	NauticalDuskMinutes     int
	AstronomicalDawnMinutes int
	AstronomicalDuskMinutes int
	MoonriseMinutes         int
	MoonsetMinutes          int
	MoonriseValid           bool
	MoonsetValid            bool
	MoonPhase               float64 // 0=new, 0.5=full, wraps 1->0
	Valid                   bool
}

// Horizon-crossing thresholds in degrees of geometric altitude. Standard
// atmospheric refraction lifts the apparent horizon by ~34 arcmin (0.5667
// degrees); adding the body's angular semi-diameter makes the *upper limb*
// the crossing reference, matching almanac convention.
const (
	refractionDeg       = 0.5667
	sunSemiDiameterDeg  = 0.2667
	moonSemiDiameterDeg = 0.2583

	sunHorizonDeg  = -(refractionDeg + sunSemiDiameterDeg)  // -0.8334
	moonHorizonDeg = -(refractionDeg + moonSemiDiameterDeg) // -0.8250

	civilTwilightDeg        = -6.0
	nauticalTwilightDeg     = -12.0
	astronomicalTwilightDeg = -18.0
)

const minutesPerDay = 1440

// Calculator computes astronomical quantities for one location. It holds no
// per-query state; Position/RiseSet results are recomputed on demand.
//
// Not safe for concurrent mutation; see the single-loop ownership model.
type Calculator struct {
	loc           Location
	tzOffsetHours float64
	proj          Projection

	// twilightFloorDeg is the altitude below which SunIntensity reports 0.
	twilightFloorDeg float64
}

// NewCalculator returns a calculator for the given location and timezone
// offset (hours east of UTC; fractional offsets allowed).
func NewCalculator(loc Location, tzOffsetHours float64) *Calculator {
	return &Calculator{
		loc:              loc,
		tzOffsetHours:    tzOffsetHours,
		twilightFloorDeg: civilTwilightDeg,
	}
}

// SetLocation replaces the geodetic location.
func (c *Calculator) SetLocation(loc Location) { c.loc = loc }

// Location returns the configured location.
func (c *Calculator) Location() Location { return c.loc }

// SetTimezoneOffset replaces the hours-east-of-UTC offset applied when
// converting civil DateTimes to Julian Days.
func (c *Calculator) SetTimezoneOffset(hours float64) { c.tzOffsetHours = hours }

// SetProjection replaces the time-projection settings.
func (c *Calculator) SetProjection(p Projection) { c.proj = p }

// SetTwilightFloor sets the (negative) altitude at which sun intensity
// reaches zero. Values >= 0 are ignored.
func (c *Calculator) SetTwilightFloor(deg float64) {
	if deg < 0 {
		c.twilightFloorDeg = deg
	}
}

// julianDay converts a civil local DateTime to a UTC Julian Day using the
// Gregorian calendar rule.
func (c *Calculator) julianDay(dt DateTime) float64 {
	y, m := dt.Year, dt.Month
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4
	jd := float64(int(365.25*float64(y+4716))+int(30.6001*float64(m+1))+dt.Day+b) - 1524.5
	jd += (float64(dt.Hour) + float64(dt.Minute)/60.0 + float64(dt.Second)/3600.0) / 24.0
	jd -= c.tzOffsetHours / 24.0
	return jd
}

// projectedJulianDay applies the configured time shift and re-anchors the
// clock to the location's mean solar time (15 degrees of longitude per hour).
func (c *Calculator) projectedJulianDay(dt DateTime) float64 {
	jd := c.julianDay(dt)
	if !c.proj.Enabled {
		return jd
	}
	shiftHours := float64(c.proj.ShiftHours) + float64(c.proj.ShiftMinutes)/60.0
	jd += shiftHours / 24.0
	jd -= c.loc.LonDeg / 15.0 / 24.0
	return jd
}

func (c *Calculator) shiftMinutes() int {
	return c.proj.ShiftHours*60 + c.proj.ShiftMinutes
}

// SunPosition returns the sun's altitude/azimuth at the given local time.
func (c *Calculator) SunPosition(dt DateTime) Position {
	return c.sunPositionAt(c.julianDay(dt))
}

// MoonPosition returns the moon's altitude/azimuth at the given local time.
func (c *Calculator) MoonPosition(dt DateTime) Position {
	return c.moonPositionAt(c.julianDay(dt))
}

// MoonPhase returns the synodic phase fraction in [0,1): 0 new moon,
// 0.5 full moon, wrapping back to 0.
func (c *Calculator) MoonPhase(dt DateTime) float64 {
	d := c.julianDay(dt) - j2000

	moonLon := wrap360(218.316 + 13.176396*d)
	sunLon := wrap360(280.459 + 0.98564736*d)
	elongation := wrap360(moonLon - sunLon)
	return elongation / 360.0
}

// SunIntensity maps the sun's altitude to a [0,1] daylight factor: 0 at or
// below the twilight floor, 1 at or above the horizon, a smooth ramp between.
func (c *Calculator) SunIntensity(dt DateTime) float64 {
	return c.intensityFromAltitude(c.SunPosition(dt).AltitudeDeg)
}

// ProjectedSunIntensity is SunIntensity evaluated at the projected time.
func (c *Calculator) ProjectedSunIntensity(dt DateTime) float64 {
	if !c.proj.Enabled {
		return c.SunIntensity(dt)
	}
	pos := c.sunPositionAt(c.projectedJulianDay(dt))
	return c.intensityFromAltitude(pos.AltitudeDeg)
}

func (c *Calculator) intensityFromAltitude(altDeg float64) float64 {
	floor := c.twilightFloorDeg
	switch {
	case altDeg <= floor:
		return 0
	case altDeg >= 0:
		return 1
	default:
		t := (altDeg - floor) / (0 - floor)
		return t * t * (3 - 2*t) // smoothstep
	}
}

// MoonIntensity returns a [0,1] moonlight factor: zero below the horizon,
// otherwise sin(altitude) dimmed toward new moon.
func (c *Calculator) MoonIntensity(dt DateTime) float64 {
	return moonIntensity(c.MoonPosition(dt), c.MoonPhase(dt))
}

// ProjectedMoonIntensity is MoonIntensity at the projected time. The phase is
// the real phase, not a projected one: projection shifts the day, not the
// synodic cycle.
func (c *Calculator) ProjectedMoonIntensity(dt DateTime) float64 {
	if !c.proj.Enabled {
		return c.MoonIntensity(dt)
	}
	pos := c.moonPositionAt(c.projectedJulianDay(dt))
	return moonIntensity(pos, c.MoonPhase(dt))
}

func moonIntensity(pos Position, phase float64) float64 {
	if pos.AltitudeDeg <= 0 {
		return 0
	}
	base := math.Sin(pos.AltitudeDeg * math.Pi / 180)
	// Brightness peaks at full moon (phase 0.5), bottoms out near new.
	brightness := 0.1 + 0.9*(1.0-math.Abs(phase-0.5)*2.0)
	return base * brightness
}

// SunRiseSet scans the day's solar altitude curve for upper-limb horizon
// crossings. Either event may be invalid at extreme latitudes.
func (c *Calculator) SunRiseSet(dt DateTime) RiseSet {
	curve := c.altitudeCurve(dt, c.sunPositionAt)
	return crossings(curve, sunHorizonDeg)
}

// MoonRiseSet is SunRiseSet for the moon, with the moon's semi-diameter in
// the threshold.
func (c *Calculator) MoonRiseSet(dt DateTime) RiseSet {
	curve := c.altitudeCurve(dt, c.moonPositionAt)
	return crossings(curve, moonHorizonDeg)
}

// ProjectedSunRiseSet shifts the real events by the projection offset.
func (c *Calculator) ProjectedSunRiseSet(dt DateTime) RiseSet {
	return c.projectRiseSet(c.SunRiseSet(dt))
}

// ProjectedMoonRiseSet shifts the real events by the projection offset.
func (c *Calculator) ProjectedMoonRiseSet(dt DateTime) RiseSet {
	return c.projectRiseSet(c.MoonRiseSet(dt))
}

func (c *Calculator) projectRiseSet(rs RiseSet) RiseSet {
	if !c.proj.Enabled {
		return rs
	}
	shift := c.shiftMinutes()
	if rs.RiseValid {
		rs.RiseMinutes = wrapMinutes(rs.RiseMinutes + shift)
	}
	if rs.SetValid {
		rs.SetMinutes = wrapMinutes(rs.SetMinutes + shift)
	}
	return rs
}

// Times builds the full per-day snapshot: sun and twilight events, solar
// noon, moon events and phase. Invalid sun events fall back to conventional
// defaults so the scheduler always has a resolvable anchor; moon validity is
// reported explicitly because the overlay must not fire without real data.
func (c *Calculator) Times(dt DateTime) Times {
	sunCurve := c.altitudeCurve(dt, c.sunPositionAt)
	moonCurve := c.altitudeCurve(dt, c.moonPositionAt)

	sun := crossings(sunCurve, sunHorizonDeg)
	if c.proj.Enabled {
		sun = c.projectRiseSet(sun)
	}
	civil := crossings(sunCurve, civilTwilightDeg)
	nautical := crossings(sunCurve, nauticalTwilightDeg)
	astronomical := crossings(sunCurve, astronomicalTwilightDeg)
	moon := crossings(moonCurve, moonHorizonDeg)
	if c.proj.Enabled {
		civil = c.projectRiseSet(civil)
		nautical = c.projectRiseSet(nautical)
		astronomical = c.projectRiseSet(astronomical)
		moon = c.projectRiseSet(moon)
	}

	noon := argmax(sunCurve)
	if c.proj.Enabled {
		noon = wrapMinutes(noon + c.shiftMinutes())
	}

	t := Times{
		SunriseMinutes:          pick(sun.RiseMinutes, sun.RiseValid, 420),
		SunsetMinutes:           pick(sun.SetMinutes, sun.SetValid, 1080),
		SolarNoonMinutes:        noon,
		CivilDawnMinutes:        pick(civil.RiseMinutes, civil.RiseValid, 390),
		CivilDuskMinutes:        pick(civil.SetMinutes, civil.SetValid, 1110),
		NauticalDawnMinutes:     pick(nautical.RiseMinutes, nautical.RiseValid, 360),
		NauticalDuskMinutes:     pick(nautical.SetMinutes, nautical.SetValid, 1140),
		AstronomicalDawnMinutes: pick(astronomical.RiseMinutes, astronomical.RiseValid, 330),
		AstronomicalDuskMinutes: pick(astronomical.SetMinutes, astronomical.SetValid, 1170),
		MoonriseMinutes:         pick(moon.RiseMinutes, moon.RiseValid, 0),
		MoonsetMinutes:          pick(moon.SetMinutes, moon.SetValid, 0),
		MoonriseValid:           moon.RiseValid,
		MoonsetValid:            moon.SetValid,
		MoonPhase:               c.MoonPhase(dt),
		Valid:                   true,
	}
	return t
}

func pick(v int, valid bool, fallback int) int {
	if valid {
		return v
	}
	return fallback
}

// altitudeCurve samples a body's altitude once per minute across the civil
// day that contains dt.
func (c *Calculator) altitudeCurve(dt DateTime, posAt func(float64) Position) []float64 {
	dayStart := DateTime{Year: dt.Year, Month: dt.Month, Day: dt.Day}
	jd0 := c.julianDay(dayStart)

	curve := make([]float64, minutesPerDay)
	for m := 0; m < minutesPerDay; m++ {
		jd := jd0 + float64(m)/minutesPerDay
		curve[m] = posAt(jd).AltitudeDeg
	}
	return curve
}

// crossings finds the first upward and first downward crossing of threshold
// in a per-minute altitude curve, refining each crossing linearly within its
// bracketing minute.
func crossings(curve []float64, thresholdDeg float64) RiseSet {
	var rs RiseSet
	for m := 1; m < len(curve); m++ {
		prev, cur := curve[m-1], curve[m]
		if !rs.RiseValid && prev < thresholdDeg && cur >= thresholdDeg {
			rs.RiseMinutes = refineCrossing(m, prev, cur, thresholdDeg)
			rs.RiseValid = true
		}
		if !rs.SetValid && prev >= thresholdDeg && cur < thresholdDeg {
			rs.SetMinutes = refineCrossing(m, prev, cur, thresholdDeg)
			rs.SetValid = true
		}
		if rs.RiseValid && rs.SetValid {
			break
		}
	}
	return rs
}

func refineCrossing(m int, prev, cur, threshold float64) int {
	frac := 0.0
	if cur != prev {
		frac = (threshold - prev) / (cur - prev)
	}
	minute := float64(m-1) + frac
	out := int(math.Round(minute))
	if out >= minutesPerDay {
		out = minutesPerDay - 1
	}
	if out < 0 {
		out = 0
	}
	return out
}

func argmax(curve []float64) int {
	best := 0
	for i, v := range curve {
		if v > curve[best] {
			best = i
		}
	}
	return best
}

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func wrapMinutes(m int) int {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return m
}
