package schedule

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Persisted schedule layout, little-endian:
//
//	header:    u16 num_points, u8 num_channels
//	per point: u8 time_type, i16 offset_minutes, u16 time_minutes,
//	           num_channels x (f32 pwm, f32 current)
const (
	binaryHeaderLen = 3
	pointFixedLen   = 1 + 2 + 2
	channelPairLen  = 8
)

func (s *Scheduler) binaryPointLen() int {
	return pointFixedLen + s.numChannels*channelPairLen
}

// MarshalBinary encodes the schedule for persistence.
func (s *Scheduler) MarshalBinary() ([]byte, error) {
	if len(s.points) > math.MaxUint16 {
		return nil, fmt.Errorf("schedule has %d points, exceeds format limit", len(s.points))
	}
	buf := make([]byte, binaryHeaderLen+len(s.points)*s.binaryPointLen())
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(s.points)))
	buf[2] = uint8(s.numChannels)

	pos := binaryHeaderLen
	for _, p := range s.points {
		buf[pos] = uint8(p.Type)
		binary.LittleEndian.PutUint16(buf[pos+1:], uint16(int16(p.OffsetMinutes)))
		binary.LittleEndian.PutUint16(buf[pos+3:], uint16(p.TimeMinutes))
		pos += pointFixedLen
		for i := 0; i < s.numChannels; i++ {
			binary.LittleEndian.PutUint32(buf[pos:], math.Float32bits(float32(p.PWM[i])))
			binary.LittleEndian.PutUint32(buf[pos+4:], math.Float32bits(float32(p.Current[i])))
			pos += channelPairLen
		}
	}
	return buf, nil
}

// UnmarshalBinary replaces the schedule from a persisted buffer. The buffer
// is validated in full before any state changes; a truncated or oversized
// declaration leaves the in-memory schedule intact.
func (s *Scheduler) UnmarshalBinary(buf []byte) error {
	if len(buf) < binaryHeaderLen {
		return fmt.Errorf("schedule buffer too short: %d bytes", len(buf))
	}
	numPoints := int(binary.LittleEndian.Uint16(buf[0:2]))
	numChannels := int(buf[2])
	if numChannels < minChannels || numChannels > maxChannels {
		return fmt.Errorf("channel count %d out of range [%d,%d]", numChannels, minChannels, maxChannels)
	}

	pointLen := pointFixedLen + numChannels*channelPairLen
	want := binaryHeaderLen + numPoints*pointLen
	if len(buf) < want {
		return fmt.Errorf("schedule buffer truncated: have %d bytes, want %d", len(buf), want)
	}

	// The buffer carries no channel configs; build the set the import will
	// run under (existing configs, defaults for any new channels) so points
	// can be checked against it before the swap.
	channels := make([]ChannelConfig, numChannels)
	copy(channels, s.channels)
	for i := len(s.channels); i < numChannels; i++ {
		channels[i] = defaultChannelConfig(i)
	}

	points := make([]Point, 0, numPoints)
	pos := binaryHeaderLen
	for n := 0; n < numPoints; n++ {
		p := Point{
			Type:          TimeType(buf[pos]),
			OffsetMinutes: int(int16(binary.LittleEndian.Uint16(buf[pos+1:]))),
			TimeMinutes:   int(binary.LittleEndian.Uint16(buf[pos+3:])),
			PWM:           make([]float64, numChannels),
			Current:       make([]float64, numChannels),
		}
		pos += pointFixedLen
		for i := 0; i < numChannels; i++ {
			p.PWM[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[pos:])))
			p.Current[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[pos+4:])))
			pos += channelPairLen
		}
		if err := validatePointAgainst(p, channels); err != nil {
			return fmt.Errorf("point %d: %w", n, err)
		}
		points = append(points, p)
	}

	// Validated; swap in the new state.
	if numChannels != s.numChannels {
		s.numChannels = numChannels
		s.moon.BaseIntensity = resizeFloats(s.moon.BaseIntensity, numChannels)
		s.moon.BaseCurrent = resizeFloats(s.moon.BaseCurrent, numChannels)
	}
	s.channels = channels
	s.points = points
	s.sortFixed()
	return nil
}
