//go:build linux && (arm || arm64)

package fanout

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm.
//
// On Raspberry Pi carriers this needs `dtoverlay=pwm-2chan` (or equivalent)
// so the fan header GPIO is exposed as a PWM channel; channel 0 is assumed
// to map to GPIO18.
type sysfsPWM struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	periodNS uint64
	enabled  bool
}

var pwmSysfsBase = "/sys/class/pwm"

func openPWM(pin int) (Driver, error) {
	if pin != 18 {
		return nil, fmt.Errorf("fanout: sysfs pwm supports only pin=18 for now")
	}

	chipPath, channel, err := findPWMChip()
	if err != nil {
		return nil, err
	}

	d := &sysfsPWM{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	if err := d.writeBool("enable", false); err == nil {
		d.enabled = false
	}
	return d, nil
}

func findPWMChip() (chipPath string, channel int, err error) {
	entries, err := os.ReadDir(pwmSysfsBase)
	if err != nil {
		return "", 0, fmt.Errorf("fanout: read %s: %w", pwmSysfsBase, err)
	}

	// pwmchipN entries are commonly symlinks, not directories; prefer chip 0.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			seen[e.Name()] = true
		}
	}
	var candidates []string
	for _, name := range []string{"pwmchip0", "pwmchip1", "pwmchip2"} {
		if seen[name] {
			candidates = append(candidates, name)
			delete(seen, name)
		}
	}
	for name := range seen {
		candidates = append(candidates, name)
	}

	for _, name := range candidates {
		chip := filepath.Join(pwmSysfsBase, name)
		if n, rerr := readInt(filepath.Join(chip, "npwm")); rerr == nil && n > 0 {
			return chip, 0, nil
		}
	}
	return "", 0, fmt.Errorf("fanout: no sysfs pwmchip found (is the pwm overlay enabled?)")
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil // exported by someone else
		}
		return fmt.Errorf("fanout: export pwm: %w", err)
	}

	// Wait briefly for the sysfs node to appear.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("fanout: pwm path not created after export: %w", err)
	}
	return nil
}

func (d *sysfsPWM) Close() error {
	// Fail safe: leave the fan running before disabling control.
	_ = d.SetDutyPercent(100)
	_ = d.writeBool("enable", false)
	d.enabled = false
	return nil
}

func (d *sysfsPWM) SetFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("fanout: invalid frequency %d", hz)
	}
	periodNS := uint64(1_000_000_000 / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	// Sysfs commonly requires disable before changing the period.
	_ = d.writeBool("enable", false)
	d.enabled = false

	if err := d.writeUint("period", periodNS); err != nil {
		return err
	}
	d.periodNS = periodNS

	if err := d.writeBool("enable", true); err != nil {
		return err
	}
	d.enabled = true
	return nil
}

func (d *sysfsPWM) SetDutyPercent(p float64) error {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	if d.periodNS == 0 {
		// Conservative default if SetFrequencyHz wasn't called.
		d.periodNS = 1_000_000_000 / 25_000
	}

	duty := uint64(math.Round(float64(d.periodNS) * (p / 100.0)))
	if duty > d.periodNS {
		duty = d.periodNS
	}
	if err := d.writeUint("duty_cycle", duty); err != nil {
		return err
	}
	if !d.enabled {
		_ = d.writeBool("enable", true)
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	// Use O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation flags even when mode bits allow writes. Right after export,
	// udev may still be adjusting permissions, so retry transient failures.
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		if werr != nil {
			lastErr = werr
		} else {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		if werr != nil && cerr != nil {
			return errors.Join(werr, cerr)
		}
		if werr != nil {
			return werr
		}
		return cerr
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
