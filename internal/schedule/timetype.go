package schedule

import "fmt"

// TimeType discriminates how a schedule point's absolute minute is obtained:
// fixed points carry it verbatim, relative points derive it from the day's
// astronomical snapshot plus an offset.
type TimeType uint8

const (
	TimeFixed TimeType = iota
	TimeSunriseRelative
	TimeSunsetRelative
	TimeSolarNoon
	TimeCivilDawn
	TimeCivilDusk
	TimeNauticalDawn
	TimeNauticalDusk
	TimeAstronomicalDawn
	TimeAstronomicalDusk

	numTimeTypes
)

var timeTypeNames = map[TimeType]string{
	TimeFixed:            "fixed",
	TimeSunriseRelative:  "sunrise_relative",
	TimeSunsetRelative:   "sunset_relative",
	TimeSolarNoon:        "solar_noon",
	TimeCivilDawn:        "civil_dawn",
	TimeCivilDusk:        "civil_dusk",
	TimeNauticalDawn:     "nautical_dawn",
	TimeNauticalDusk:     "nautical_dusk",
	TimeAstronomicalDawn: "astronomical_dawn",
	TimeAstronomicalDusk: "astronomical_dusk",
}

var timeTypeValues = func() map[string]TimeType {
	m := make(map[string]TimeType, len(timeTypeNames))
	for t, name := range timeTypeNames {
		m[name] = t
	}
	return m
}()

func (t TimeType) Valid() bool { return t < numTimeTypes }

func (t TimeType) String() string {
	if name, ok := timeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("timetype(%d)", uint8(t))
}

// ParseTimeType maps a textual name back to its TimeType. Unknown names are
// an error, not a silent fallback to fixed.
func ParseTimeType(s string) (TimeType, error) {
	t, ok := timeTypeValues[s]
	if !ok {
		return TimeFixed, fmt.Errorf("unknown time type %q", s)
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler for JSON interchange.
func (t TimeType) MarshalText() ([]byte, error) {
	name, ok := timeTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid time type %d", uint8(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON interchange.
func (t *TimeType) UnmarshalText(b []byte) error {
	v, err := ParseTimeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
