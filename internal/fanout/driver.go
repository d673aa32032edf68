package fanout

// Driver is the minimal interface fanout needs from a PWM/GPIO backend.
//
// Duty is expressed in percent (0..100). Close should be best-effort and
// leave the fan in a safe state.
type Driver interface {
	SetFrequencyHz(hz int) error
	SetDutyPercent(p float64) error
	Close() error
}

// Fake is an in-memory Driver for tests and the simulation harness.
type Fake struct {
	FrequencyHz int
	Duty        float64
	DutyCalls   int
	Closed      bool

	// Err, when set, is returned by every mutating call.
	Err error
}

func (f *Fake) SetFrequencyHz(hz int) error {
	if f.Err != nil {
		return f.Err
	}
	f.FrequencyHz = hz
	return nil
}

func (f *Fake) SetDutyPercent(p float64) error {
	if f.Err != nil {
		return f.Err
	}
	f.Duty = p
	f.DutyCalls++
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
