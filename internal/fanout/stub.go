//go:build !linux || (!arm && !arm64)

package fanout

import "fmt"

// Stub backends for non-Linux and/or non-ARM platforms.

func openPWM(pin int) (Driver, error) {
	return nil, fmt.Errorf("fanout: pwm unsupported on this platform")
}

func openGPIO(pin int) (Driver, error) {
	return nil, fmt.Errorf("fanout: gpio unsupported on this platform")
}
