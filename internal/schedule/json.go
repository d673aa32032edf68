package schedule

import (
	"encoding/json"
	"fmt"
)

// scheduleDoc is the textual interchange form. Field names match the wire
// format consumed by external tooling; resolved times for dynamic points are
// informational placeholders on export.
type scheduleDoc struct {
	NumChannels    int                `json:"num_channels"`
	SchedulePoints []pointDoc         `json:"schedule_points"`
	ChannelConfigs []channelConfigDoc `json:"channel_configs,omitempty"`
	MoonSimulation *moonDoc           `json:"moon_simulation,omitempty"`
}

type pointDoc struct {
	TimeType      TimeType  `json:"time_type"`
	OffsetMinutes *int      `json:"offset_minutes,omitempty"`
	TimeMinutes   int       `json:"time_minutes"`
	PWMValues     []float64 `json:"pwm_values"`
	CurrentValues []float64 `json:"current_values"`
}

type channelConfigDoc struct {
	Name       string  `json:"name"`
	RGBHex     string  `json:"rgb_hex"`
	MaxCurrent float64 `json:"max_current"`
}

type moonDoc struct {
	Enabled       bool      `json:"enabled"`
	PhaseScaling  bool      `json:"phase_scaling"`
	BaseIntensity []float64 `json:"base_intensity"`
	BaseCurrent   []float64 `json:"base_current"`
}

// ExportJSON renders the schedule, channel metadata and moon settings as a
// JSON document.
func (s *Scheduler) ExportJSON() ([]byte, error) {
	doc := scheduleDoc{
		NumChannels:    s.numChannels,
		SchedulePoints: make([]pointDoc, 0, len(s.points)),
	}
	for _, p := range s.points {
		pd := pointDoc{
			TimeType:      p.Type,
			TimeMinutes:   p.TimeMinutes,
			PWMValues:     cloneFloats(p.PWM),
			CurrentValues: cloneFloats(p.Current),
		}
		if p.Type != TimeFixed {
			off := p.OffsetMinutes
			pd.OffsetMinutes = &off
		}
		doc.SchedulePoints = append(doc.SchedulePoints, pd)
	}
	for _, c := range s.channels {
		doc.ChannelConfigs = append(doc.ChannelConfigs, channelConfigDoc{
			Name:       c.Name,
			RGBHex:     c.RGBHex,
			MaxCurrent: c.MaxCurrent,
		})
	}
	moon := moonDoc{
		Enabled:       s.moon.Enabled,
		PhaseScaling:  s.moon.PhaseScaling,
		BaseIntensity: cloneFloats(s.moon.BaseIntensity),
		BaseCurrent:   cloneFloats(s.moon.BaseCurrent),
	}
	doc.MoonSimulation = &moon

	return json.MarshalIndent(doc, "", "  ")
}

// ImportJSON replaces the schedule from a JSON document. The document is
// parsed and validated in full before any state changes; on error the prior
// schedule is untouched. A document with zero points is rejected rather than
// treated as a clear.
func (s *Scheduler) ImportJSON(data []byte) error {
	var doc scheduleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse schedule json: %w", err)
	}
	if doc.NumChannels < minChannels || doc.NumChannels > maxChannels {
		return fmt.Errorf("num_channels %d out of range [%d,%d]", doc.NumChannels, minChannels, maxChannels)
	}
	if len(doc.SchedulePoints) == 0 {
		return fmt.Errorf("schedule json declares no points")
	}
	if len(doc.ChannelConfigs) != 0 && len(doc.ChannelConfigs) != doc.NumChannels {
		return fmt.Errorf("channel_configs has %d entries, want %d", len(doc.ChannelConfigs), doc.NumChannels)
	}

	channels := make([]ChannelConfig, doc.NumChannels)
	if len(doc.ChannelConfigs) == doc.NumChannels {
		for i, cd := range doc.ChannelConfigs {
			if cd.MaxCurrent <= 0 {
				return fmt.Errorf("channel %d: max current must be positive", i)
			}
			channels[i] = ChannelConfig{Name: cd.Name, RGBHex: cd.RGBHex, MaxCurrent: cd.MaxCurrent}
		}
	} else {
		for i := range channels {
			channels[i] = defaultChannelConfig(i)
		}
	}

	// Points go through the same checks SetSchedulePoint applies, against
	// the incoming channel set.
	points := make([]Point, 0, len(doc.SchedulePoints))
	for i, pd := range doc.SchedulePoints {
		p := Point{
			Type:        pd.TimeType,
			TimeMinutes: pd.TimeMinutes,
			PWM:         cloneFloats(pd.PWMValues),
			Current:     cloneFloats(pd.CurrentValues),
		}
		if pd.OffsetMinutes != nil {
			p.OffsetMinutes = *pd.OffsetMinutes
		}
		if err := validatePointAgainst(p, channels); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		points = append(points, p)
	}

	moon := s.moon
	if doc.MoonSimulation != nil {
		moon = MoonSimulation{
			Enabled:       doc.MoonSimulation.Enabled,
			PhaseScaling:  doc.MoonSimulation.PhaseScaling,
			BaseIntensity: resizeFloats(cloneFloats(doc.MoonSimulation.BaseIntensity), doc.NumChannels),
			BaseCurrent:   resizeFloats(cloneFloats(doc.MoonSimulation.BaseCurrent), doc.NumChannels),
		}
	} else {
		moon.BaseIntensity = resizeFloats(cloneFloats(moon.BaseIntensity), doc.NumChannels)
		moon.BaseCurrent = resizeFloats(cloneFloats(moon.BaseCurrent), doc.NumChannels)
	}

	// Validated; swap in the new state.
	s.numChannels = doc.NumChannels
	s.channels = channels
	s.points = points
	s.moon = moon
	s.sortFixed()
	return nil
}
