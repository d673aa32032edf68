package schedule

import "fmt"

// LoadPreset replaces the schedule with a built-in preset. Only "default" is
// defined: a sunrise-to-sunset curve anchored on the day's real astronomical
// events with a dim pre-dawn and post-dusk shoulder.
func (s *Scheduler) LoadPreset(name string) error {
	if name != "default" {
		return fmt.Errorf("unknown preset %q", name)
	}

	s.ClearSchedule()

	flat := func(v float64) []float64 {
		out := make([]float64, s.numChannels)
		for i := range out {
			out[i] = v
		}
		return out
	}

	steps := []struct {
		t      TimeType
		offset int
		pwm    float64
		cur    float64
	}{
		{TimeSunriseRelative, -30, 5, 0.1},
		{TimeSunriseRelative, 0, 20, 0.3},
		{TimeSunriseRelative, 30, 50, 1.0},
		{TimeSolarNoon, 0, 85, 1.8},
		{TimeSunsetRelative, -30, 50, 1.0},
		{TimeSunsetRelative, 0, 20, 0.3},
		{TimeSunsetRelative, 30, 5, 0.1},
	}
	for _, st := range steps {
		if err := s.AddDynamicSchedulePoint(st.t, st.offset, flat(st.pwm), flat(st.cur)); err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return nil
}
