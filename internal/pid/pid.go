// Package pid implements a proportional-integral-derivative controller with
// clamped anti-windup and derivative-on-measurement.
//
// The controller is platform-free and allocation-free after construction.
// Not safe for concurrent use.
package pid

// Controller is a stateful PID controller.
//
// The derivative term is computed on the measurement rather than the error,
// so a setpoint change alone never produces a derivative spike. The integral
// is clamped to the range the output limits could ever require
// ((max-min)/ki), the classic clamping form of anti-windup.
type Controller struct {
	kp, ki, kd float64
	target     float64

	outMin float64
	outMax float64

	integral float64
	prevMeas float64
	output   float64

	errVal     float64
	derivative float64

	firstRun bool
}

// New returns a controller with the given gains and output limits.
func New(kp, ki, kd, outMin, outMax float64) *Controller {
	return &Controller{
		kp:       kp,
		ki:       ki,
		kd:       kd,
		outMin:   outMin,
		outMax:   outMax,
		firstRun: true,
	}
}

// SetTarget updates the setpoint. It does not disturb controller state; the
// derivative-on-measurement form makes a target change spike-free.
func (c *Controller) SetTarget(target float64) { c.target = target }

// Target returns the current setpoint.
func (c *Controller) Target() float64 { return c.target }

// SetTunings replaces the three gains.
func (c *Controller) SetTunings(kp, ki, kd float64) {
	c.kp = kp
	c.ki = ki
	c.kd = kd
}

// SetOutputLimits replaces the output clamp range and re-clamps both the last
// output and the stored integral so the new limits take effect immediately.
func (c *Controller) SetOutputLimits(outMin, outMax float64) {
	c.outMin = outMin
	c.outMax = outMax

	c.output = clamp(c.output, outMin, outMax)
	if c.ki > 0 {
		maxIntegral := (outMax - outMin) / c.ki
		c.integral = clamp(c.integral, -maxIntegral, maxIntegral)
	}
}

// Reset clears all accumulated state. The next Compute call behaves like the
// first call after construction (zero derivative).
func (c *Controller) Reset() {
	c.integral = 0
	c.prevMeas = 0
	c.errVal = 0
	c.derivative = 0
	c.output = 0
	c.firstRun = true
}

// Compute advances the controller by dtMs milliseconds using the given
// measurement and returns the clamped output.
//
// dtMs == 0 is a no-op: state is left unchanged and the previous output is
// returned.
func (c *Controller) Compute(measurement float64, dtMs uint32) float64 {
	if dtMs == 0 {
		return c.output
	}
	dtSec := float64(dtMs) / 1000.0

	c.errVal = c.target - measurement

	c.integral += c.errVal * dtSec
	// Clamp only for positive ki; a negative ki would invert the bounds.
	if c.ki > 0 {
		maxIntegral := (c.outMax - c.outMin) / c.ki
		c.integral = clamp(c.integral, -maxIntegral, maxIntegral)
	}

	if c.firstRun {
		c.derivative = 0
		c.firstRun = false
	} else {
		c.derivative = -(measurement - c.prevMeas) / dtSec
	}
	c.prevMeas = measurement

	out := c.kp*c.errVal + c.ki*c.integral + c.kd*c.derivative
	c.output = clamp(out, c.outMin, c.outMax)
	return c.output
}

// Error returns the error term (target - measurement) from the last Compute.
func (c *Controller) Error() float64 { return c.errVal }

// Integral returns the accumulated (clamped) integral term.
func (c *Controller) Integral() float64 { return c.integral }

// Derivative returns the derivative term from the last Compute.
func (c *Controller) Derivative() float64 { return c.derivative }

// Output returns the last computed (clamped) output.
func (c *Controller) Output() float64 { return c.output }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
