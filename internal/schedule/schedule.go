// Package schedule owns the 24-hour LED schedule: per-channel brightness and
// current-limit points, resolution of astronomically anchored points against
// a per-day snapshot, circular interpolation across midnight, and the
// moonlight overlay.
//
// A Scheduler is a plain in-memory structure for a single control loop; it
// performs no I/O and no locking. Mutating calls must not race evaluate
// calls from another goroutine.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"ledbrick-ng/internal/astro"
)

const (
	minutesPerDay = 1440

	minChannels = 1
	maxChannels = 16

	// A channel whose scheduled PWM is at or below this many percent counts
	// as "off" for the moonlight overlay.
	moonOffThresholdPWM = 0.1

	defaultMaxCurrentA = 2.0
)

// ErrEmptySchedule is returned by the evaluate calls when no points exist.
var ErrEmptySchedule = errors.New("schedule: no points")

// Point is one schedule entry. TimeMinutes is authoritative for fixed
// points; for relative types it is recomputed from the astronomical snapshot
// on every evaluate and OffsetMinutes applies.
type Point struct {
	Type          TimeType
	OffsetMinutes int
	TimeMinutes   int
	PWM           []float64 // percent, 0-100, one per channel
	Current       []float64 // amperes, one per channel
}

// Values is an evaluated per-channel output set.
type Values struct {
	PWM     []float64
	Current []float64
}

// MoonSimulation configures the night-time moonlight overlay. BaseIntensity
// and BaseCurrent are per channel and applied only where the schedule itself
// leaves the channel dark.
type MoonSimulation struct {
	Enabled       bool
	PhaseScaling  bool
	BaseIntensity []float64 // percent per channel
	BaseCurrent   []float64 // amperes per channel
}

// ChannelConfig is display/validation metadata for one LED channel.
type ChannelConfig struct {
	Name       string
	RGBHex     string
	MaxCurrent float64
}

var defaultChannelColors = []string{
	"#FFFFFF", "#0000FF", "#00FFFF", "#00FF00",
	"#FF0000", "#FF00FF", "#FFFF00", "#FF8000",
}

func defaultChannelConfig(i int) ChannelConfig {
	color := "#FFFFFF"
	if i < len(defaultChannelColors) {
		color = defaultChannelColors[i]
	}
	return ChannelConfig{
		Name:       fmt.Sprintf("Channel %d", i+1),
		RGBHex:     color,
		MaxCurrent: defaultMaxCurrentA,
	}
}

// Scheduler holds the schedule state for one fixture.
type Scheduler struct {
	numChannels int
	points      []Point
	channels    []ChannelConfig
	moon        MoonSimulation
}

// New returns a scheduler with n channels (clamped to [1,16]) and default
// channel metadata.
func New(n int) *Scheduler {
	if n < minChannels {
		n = minChannels
	}
	if n > maxChannels {
		n = maxChannels
	}
	s := &Scheduler{numChannels: n}
	s.channels = make([]ChannelConfig, n)
	for i := range s.channels {
		s.channels[i] = defaultChannelConfig(i)
	}
	return s
}

// NumChannels returns the current channel count.
func (s *Scheduler) NumChannels() int { return s.numChannels }

// SetNumChannels resizes every per-channel array in the scheduler: existing
// values are truncated, new channels are zero-padded. Out-of-range counts
// are rejected.
func (s *Scheduler) SetNumChannels(n int) error {
	if n < minChannels || n > maxChannels {
		return fmt.Errorf("channel count %d out of range [%d,%d]", n, minChannels, maxChannels)
	}
	old := s.numChannels
	s.numChannels = n

	for i := old; i < n; i++ {
		s.channels = append(s.channels, defaultChannelConfig(i))
	}
	s.channels = s.channels[:n]

	for i := range s.points {
		s.points[i].PWM = resizeFloats(s.points[i].PWM, n)
		s.points[i].Current = resizeFloats(s.points[i].Current, n)
	}
	s.moon.BaseIntensity = resizeFloats(s.moon.BaseIntensity, n)
	s.moon.BaseCurrent = resizeFloats(s.moon.BaseCurrent, n)
	return nil
}

func resizeFloats(v []float64, n int) []float64 {
	for len(v) < n {
		v = append(v, 0)
	}
	return v[:n]
}

// SetSchedulePoint upserts a fixed point keyed by its absolute minute.
func (s *Scheduler) SetSchedulePoint(timeMinutes int, pwm, current []float64) error {
	p := Point{
		Type:        TimeFixed,
		TimeMinutes: timeMinutes,
		PWM:         cloneFloats(pwm),
		Current:     cloneFloats(current),
	}
	if err := s.validatePoint(p); err != nil {
		return err
	}
	for i := range s.points {
		if s.points[i].Type == TimeFixed && s.points[i].TimeMinutes == timeMinutes {
			s.points[i] = p
			return nil
		}
	}
	s.points = append(s.points, p)
	s.sortFixed()
	return nil
}

// AddDynamicSchedulePoint appends an astronomically anchored point.
func (s *Scheduler) AddDynamicSchedulePoint(t TimeType, offsetMinutes int, pwm, current []float64) error {
	if t == TimeFixed {
		return errors.New("dynamic point cannot use the fixed time type")
	}
	p := Point{
		Type:          t,
		OffsetMinutes: offsetMinutes,
		PWM:           cloneFloats(pwm),
		Current:       cloneFloats(current),
	}
	if err := s.validatePoint(p); err != nil {
		return err
	}
	s.points = append(s.points, p)
	return nil
}

// RemoveSchedulePoint deletes the fixed point at the given minute. It
// reports whether a point was removed.
func (s *Scheduler) RemoveSchedulePoint(timeMinutes int) bool {
	for i := range s.points {
		if s.points[i].Type == TimeFixed && s.points[i].TimeMinutes == timeMinutes {
			s.points = append(s.points[:i], s.points[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveDynamicSchedulePoint deletes the first dynamic point matching type
// and offset. It reports whether a point was removed.
func (s *Scheduler) RemoveDynamicSchedulePoint(t TimeType, offsetMinutes int) bool {
	for i := range s.points {
		if s.points[i].Type == t && s.points[i].OffsetMinutes == offsetMinutes {
			s.points = append(s.points[:i], s.points[i+1:]...)
			return true
		}
	}
	return false
}

// ClearSchedule removes every point. Channel metadata and moon settings are
// kept.
func (s *Scheduler) ClearSchedule() { s.points = s.points[:0] }

// Len returns the number of stored points.
func (s *Scheduler) Len() int { return len(s.points) }

// Points returns a copy of the stored points.
func (s *Scheduler) Points() []Point {
	out := make([]Point, len(s.points))
	for i, p := range s.points {
		out[i] = p
		out[i].PWM = cloneFloats(p.PWM)
		out[i].Current = cloneFloats(p.Current)
	}
	return out
}

// SetMoonSimulation replaces the overlay config, resizing its per-channel
// arrays to the current channel count.
func (s *Scheduler) SetMoonSimulation(cfg MoonSimulation) {
	s.moon = MoonSimulation{
		Enabled:       cfg.Enabled,
		PhaseScaling:  cfg.PhaseScaling,
		BaseIntensity: resizeFloats(cloneFloats(cfg.BaseIntensity), s.numChannels),
		BaseCurrent:   resizeFloats(cloneFloats(cfg.BaseCurrent), s.numChannels),
	}
}

// MoonSimulation returns a copy of the overlay config.
func (s *Scheduler) MoonSimulation() MoonSimulation {
	m := s.moon
	m.BaseIntensity = cloneFloats(s.moon.BaseIntensity)
	m.BaseCurrent = cloneFloats(s.moon.BaseCurrent)
	return m
}

// SetChannelConfig replaces metadata for one channel.
func (s *Scheduler) SetChannelConfig(i int, cfg ChannelConfig) error {
	if i < 0 || i >= s.numChannels {
		return fmt.Errorf("channel %d out of range", i)
	}
	if cfg.MaxCurrent <= 0 {
		return fmt.Errorf("channel %d: max current must be positive", i)
	}
	s.channels[i] = cfg
	return nil
}

// ChannelConfigs returns a copy of all channel metadata.
func (s *Scheduler) ChannelConfigs() []ChannelConfig {
	out := make([]ChannelConfig, len(s.channels))
	copy(out, s.channels)
	return out
}

// ValuesAt interpolates the schedule at the given minute using fixed points
// only; dynamic points are skipped because no astronomical snapshot is
// available to resolve them.
func (s *Scheduler) ValuesAt(minute int) (Values, error) {
	if minute < 0 || minute >= minutesPerDay {
		return Values{}, fmt.Errorf("minute %d out of range [0,%d)", minute, minutesPerDay)
	}
	fixed := make([]Point, 0, len(s.points))
	for _, p := range s.points {
		if p.Type == TimeFixed {
			fixed = append(fixed, p)
		}
	}
	sortByTime(fixed)
	return s.interpolate(fixed, minute)
}

// ValuesAtWithAstro resolves every dynamic point against the snapshot,
// re-sorts, interpolates, then applies the moonlight overlay.
func (s *Scheduler) ValuesAtWithAstro(minute int, times astro.Times) (Values, error) {
	if minute < 0 || minute >= minutesPerDay {
		return Values{}, fmt.Errorf("minute %d out of range [0,%d)", minute, minutesPerDay)
	}
	resolved := make([]Point, len(s.points))
	for i, p := range s.points {
		resolved[i] = p
		if p.Type != TimeFixed {
			resolved[i].TimeMinutes = resolveTime(p, times)
		}
	}
	sortByTime(resolved)

	v, err := s.interpolate(resolved, minute)
	if err != nil {
		return v, err
	}
	if s.moon.Enabled && times.Valid {
		s.applyMoonOverlay(&v, minute, times)
	}
	return v, nil
}

// resolveTime maps a dynamic point to its absolute minute for the day
// described by the snapshot, wrapping into [0,1440).
func resolveTime(p Point, t astro.Times) int {
	base := 0
	switch p.Type {
	case TimeFixed:
		return p.TimeMinutes
	case TimeSunriseRelative:
		base = t.SunriseMinutes
	case TimeSunsetRelative:
		base = t.SunsetMinutes
	case TimeSolarNoon:
		base = t.SolarNoonMinutes
	case TimeCivilDawn:
		base = t.CivilDawnMinutes
	case TimeCivilDusk:
		base = t.CivilDuskMinutes
	case TimeNauticalDawn:
		base = t.NauticalDawnMinutes
	case TimeNauticalDusk:
		base = t.NauticalDuskMinutes
	case TimeAstronomicalDawn:
		base = t.AstronomicalDawnMinutes
	case TimeAstronomicalDusk:
		base = t.AstronomicalDuskMinutes
	}
	m := (base + p.OffsetMinutes) % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return m
}

// interpolate treats the sorted points as a circular 1440-minute ring: a
// query before the first point or after the last brackets last->first with
// the span extended across midnight.
func (s *Scheduler) interpolate(points []Point, minute int) (Values, error) {
	if len(points) == 0 {
		return Values{}, ErrEmptySchedule
	}

	if len(points) == 1 {
		p := points[0]
		if len(p.PWM) != s.numChannels || len(p.Current) != s.numChannels {
			return Values{}, fmt.Errorf("point channel count mismatch: have %d, want %d", len(p.PWM), s.numChannels)
		}
		return Values{PWM: cloneFloats(p.PWM), Current: cloneFloats(p.Current)}, nil
	}

	before, after := points[len(points)-1], points[0]
	for i := range points {
		if points[i].TimeMinutes <= minute {
			before = points[i]
		}
		if points[i].TimeMinutes >= minute {
			after = points[i]
			break
		}
	}

	if len(before.PWM) != s.numChannels || len(after.PWM) != s.numChannels ||
		len(before.Current) != s.numChannels || len(after.Current) != s.numChannels {
		return Values{}, fmt.Errorf("point channel count mismatch: want %d channels", s.numChannels)
	}

	if before.TimeMinutes == minute {
		return Values{PWM: cloneFloats(before.PWM), Current: cloneFloats(before.Current)}, nil
	}

	span := after.TimeMinutes - before.TimeMinutes
	if span <= 0 {
		span += minutesPerDay
	}
	elapsed := minute - before.TimeMinutes
	if elapsed < 0 {
		elapsed += minutesPerDay
	}
	ratio := 0.0
	if span > 0 {
		ratio = float64(elapsed) / float64(span)
	}

	v := Values{
		PWM:     make([]float64, s.numChannels),
		Current: make([]float64, s.numChannels),
	}
	for i := 0; i < s.numChannels; i++ {
		v.PWM[i] = before.PWM[i] + ratio*(after.PWM[i]-before.PWM[i])
		v.Current[i] = before.Current[i] + ratio*(after.Current[i]-before.Current[i])
	}
	return v, nil
}

// applyMoonOverlay adds moonlight to channels the schedule leaves dark while
// the moon is above the horizon. Channels with meaningful scheduled output
// are never touched.
func (s *Scheduler) applyMoonOverlay(v *Values, minute int, times astro.Times) {
	if !moonVisible(minute, times) {
		return
	}

	// Phase 0 and 1 are new moon, 0.5 full; fold to a [0,1] brightness.
	brightness := 1.0
	if s.moon.PhaseScaling {
		p := times.MoonPhase
		if p > 0.5 {
			p = 1.0 - p
		}
		brightness = p / 0.5
	}

	for i := 0; i < s.numChannels; i++ {
		if v.PWM[i] > moonOffThresholdPWM {
			continue
		}
		if i < len(s.moon.BaseIntensity) {
			v.PWM[i] += s.moon.BaseIntensity[i] * brightness
			if v.PWM[i] > 100 {
				v.PWM[i] = 100
			}
		}
		if i < len(s.moon.BaseCurrent) {
			v.Current[i] += s.moon.BaseCurrent[i] * brightness
			if max := s.channels[i].MaxCurrent; v.Current[i] > max {
				v.Current[i] = max
			}
		}
	}
}

// moonVisible reports whether the minute falls inside the moon-up window,
// which may cross midnight. With only one valid event the window extends to
// the matching day edge; with neither, the overlay is skipped.
func moonVisible(minute int, t astro.Times) bool {
	switch {
	case t.MoonriseValid && t.MoonsetValid:
		if t.MoonriseMinutes <= t.MoonsetMinutes {
			return minute >= t.MoonriseMinutes && minute <= t.MoonsetMinutes
		}
		return minute >= t.MoonriseMinutes || minute <= t.MoonsetMinutes
	case t.MoonriseValid:
		return minute >= t.MoonriseMinutes
	case t.MoonsetValid:
		return minute <= t.MoonsetMinutes
	default:
		return false
	}
}

func (s *Scheduler) validatePoint(p Point) error {
	return validatePointAgainst(p, s.channels)
}

// validatePointAgainst checks a point against an explicit channel set so
// import paths can validate against the incoming configuration before it
// replaces the current one.
func validatePointAgainst(p Point, channels []ChannelConfig) error {
	if p.Type == TimeFixed {
		if p.TimeMinutes < 0 || p.TimeMinutes >= minutesPerDay {
			return fmt.Errorf("fixed time %d out of range [0,%d)", p.TimeMinutes, minutesPerDay)
		}
	} else {
		if !p.Type.Valid() {
			return fmt.Errorf("invalid time type %d", uint8(p.Type))
		}
		if p.OffsetMinutes <= -minutesPerDay || p.OffsetMinutes >= minutesPerDay {
			return fmt.Errorf("offset %d out of range (-%d,%d)", p.OffsetMinutes, minutesPerDay, minutesPerDay)
		}
	}
	if len(p.PWM) != len(channels) || len(p.Current) != len(channels) {
		return fmt.Errorf("point has %d pwm / %d current values, want %d channels",
			len(p.PWM), len(p.Current), len(channels))
	}
	for i, pwm := range p.PWM {
		if pwm < 0 || pwm > 100 {
			return fmt.Errorf("channel %d: pwm %.2f out of range [0,100]", i, pwm)
		}
	}
	for i, cur := range p.Current {
		if cur < 0 {
			return fmt.Errorf("channel %d: negative current %.3f", i, cur)
		}
		if cur > channels[i].MaxCurrent {
			return fmt.Errorf("channel %d: current %.3fA exceeds limit %.3fA", i, cur, channels[i].MaxCurrent)
		}
	}
	return nil
}

// sortFixed keeps fixed points time-ordered ahead of dynamic ones so
// exported documents are stable.
func (s *Scheduler) sortFixed() {
	sort.SliceStable(s.points, func(i, j int) bool {
		a, b := s.points[i], s.points[j]
		if a.Type == TimeFixed && b.Type == TimeFixed {
			return a.TimeMinutes < b.TimeMinutes
		}
		return a.Type == TimeFixed && b.Type != TimeFixed
	})
}

func sortByTime(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].TimeMinutes < points[j].TimeMinutes
	})
}

func cloneFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
