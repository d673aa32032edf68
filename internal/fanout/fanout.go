// Package fanout actuates the fixture cooling fan. It owns the PWM or GPIO
// backend and applies (enable, duty) commands computed by the thermal
// supervisor; it makes no control decisions of its own beyond a power-on
// spin test and fail-safe defaults.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var (
	openPWMFn  = openPWM
	openGPIOFn = openGPIO
	afterFn    = time.After
)

var spinTestDuration = 2 * time.Second

type Config struct {
	Enable bool

	// Backend selects the output stage: "pwm" (4-wire fan on a hardware PWM
	// channel) or "gpio" (2-wire fan switched by a transistor).
	Backend string
	// Pin is BCM GPIO numbering.
	Pin int
	// FrequencyHz is the PWM output frequency; ignored by the gpio backend.
	FrequencyHz int
	// MinDuty keeps sleeve-bearing fans spinning; commands between 0 and
	// MinDuty are raised to MinDuty.
	MinDuty float64
}

type Snapshot struct {
	Enabled   bool      `json:"enabled"`
	Available bool      `json:"available"`
	On        bool      `json:"on"`
	Duty      float64   `json:"duty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_utc,omitempty"`
}

type Service struct {
	cfg Config

	mu    sync.Mutex
	drv   Driver
	ready bool
	snap  Snapshot

	wantOn   bool
	wantDuty float64
}

func New(cfg Config) *Service {
	if cfg.Backend == "" {
		cfg.Backend = "pwm"
	}
	if cfg.Pin == 0 {
		cfg.Pin = 18
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 25_000
	}
	if cfg.MinDuty < 0 || cfg.MinDuty > 100 {
		cfg.MinDuty = 0
	}
	return &Service{cfg: cfg}
}

// Start opens the backend and runs a short full-duty spin test so a dead fan
// is audible at power-on. Commands arriving during the test are applied when
// it finishes. No-op when disabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		return nil
	}

	var (
		drv Driver
		err error
	)
	switch s.cfg.Backend {
	case "pwm":
		drv, err = openPWMFn(s.cfg.Pin)
	case "gpio":
		drv, err = openGPIOFn(s.cfg.Pin)
	default:
		err = fmt.Errorf("fanout: unknown backend %q", s.cfg.Backend)
	}
	if err != nil {
		s.setErr(err)
		return err
	}
	if err := drv.SetFrequencyHz(s.cfg.FrequencyHz); err != nil {
		_ = drv.Close()
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.drv = drv
	s.snap.Enabled = true
	s.snap.Available = true
	s.mu.Unlock()

	go s.spinTest(ctx)
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

func (s *Service) spinTest(ctx context.Context) {
	s.mu.Lock()
	drv := s.drv
	s.mu.Unlock()
	if drv == nil {
		return
	}

	if err := drv.SetDutyPercent(100); err != nil {
		s.setErr(err)
		return
	}
	select {
	case <-afterFn(spinTestDuration):
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.applyLocked(s.wantOn, s.wantDuty)
}

// Apply sets the fan state. Wired as the thermal supervisor's fan callbacks.
func (s *Service) Apply(on bool, duty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantOn = on
	s.wantDuty = duty
	if !s.ready {
		return
	}
	s.applyLocked(on, duty)
}

func (s *Service) applyLocked(on bool, duty float64) {
	if s.drv == nil {
		return
	}
	out := 0.0
	if on {
		out = duty
		if out < s.cfg.MinDuty {
			out = s.cfg.MinDuty
		}
		if out > 100 {
			out = 100
		}
	}
	if err := s.drv.SetDutyPercent(out); err != nil {
		s.snap.LastError = err.Error()
		s.snap.UpdatedAt = time.Now().UTC()
		return
	}
	s.snap.On = on
	s.snap.Duty = out
	s.snap.LastError = ""
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Service) Close() {
	s.mu.Lock()
	drv := s.drv
	s.drv = nil
	s.ready = false
	s.mu.Unlock()
	if drv != nil {
		_ = drv.Close()
	}
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = err.Error()
	s.snap.UpdatedAt = time.Now().UTC()
}
