//go:build linux && (arm || arm64)

package fanout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIO drives the given BCM GPIO as a digital output using the Linux
// GPIO character device. Intended for 2-wire fans switched by a transistor
// on the fixture board: any duty > 0 maps to ON, duty == 0 to OFF.
func openGPIO(pin int) (Driver, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("fanout: invalid gpio pin %d", pin)
	}

	lineName := fmt.Sprintf("GPIO%d", pin)

	// Header GPIOs usually live on gpiochip0, but kernel variants differ;
	// scan the rest of /dev as a fallback.
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("ledbrick-ng-fan"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodFan{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("fanout: gpio line %q not found (or busy)", lineName)
}

type gpiodFan struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodFan) SetFrequencyHz(hz int) error {
	// Digital on/off backend ignores PWM frequency.
	return nil
}

func (g *gpiodFan) SetDutyPercent(p float64) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("fanout: gpio driver not initialized")
	}
	v := 0
	if p > 0 {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodFan) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
