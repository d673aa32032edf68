package sim

import "math"

// Fixture is a deterministic first-order thermal model of the LED heatsink,
// used by the -simulate harness in place of real sensors.
//
// Temperature rises with LED load, falls with fan duty, and relaxes toward
// ambient. Rates are per second at 100% of the respective input.
type Fixture struct {
	AmbientTempC    float64
	HeatRateCPerPct float64
	CoolRateCPerPct float64

	// Fraction of the delta to ambient shed per second with no fan.
	leakPerSec float64

	tempC float64
}

func NewFixture(ambientC, heatRate, coolRate float64) *Fixture {
	return &Fixture{
		AmbientTempC:    ambientC,
		HeatRateCPerPct: heatRate,
		CoolRateCPerPct: coolRate,
		leakPerSec:      0.01,
		tempC:           ambientC,
	}
}

// Step advances the model by dtSec with the given LED load and fan duty,
// both in percent, and returns the new temperature.
func (f *Fixture) Step(dtSec, ledLoadPct, fanDutyPct float64) float64 {
	ledLoadPct = clamp(ledLoadPct, 0, 100)
	fanDutyPct = clamp(fanDutyPct, 0, 100)

	heat := f.HeatRateCPerPct * ledLoadPct
	cool := f.CoolRateCPerPct * fanDutyPct
	leak := f.leakPerSec * (f.tempC - f.AmbientTempC)

	f.tempC += (heat - cool - leak) * dtSec

	// Fans cannot pull the fixture below ambient.
	f.tempC = math.Max(f.tempC, f.AmbientTempC)
	return f.tempC
}

func (f *Fixture) TempC() float64 { return f.tempC }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
