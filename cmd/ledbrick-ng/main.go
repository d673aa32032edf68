package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledbrick-ng/internal/astro"
	"ledbrick-ng/internal/config"
	"ledbrick-ng/internal/fanout"
	"ledbrick-ng/internal/i2c"
	"ledbrick-ng/internal/mqttfeed"
	"ledbrick-ng/internal/schedule"
	"ledbrick-ng/internal/sensors/mcp9808"
	"ledbrick-ng/internal/sim"
	"ledbrick-ng/internal/thermal"
)

type sensorReader struct {
	name string
	read func() (float64, error)
}

type remoteSample struct {
	name  string
	tempC float64
}

func main() {
	var configPath string
	var simulateFor time.Duration
	flag.StringVar(&configPath, "config", "./ledbrick.yaml", "Path to YAML config")
	flag.DurationVar(&simulateFor, "simulate", 0,
		"Run against the simulated fixture for this much simulated time, then exit (0 = hardware mode)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if simulateFor > 0 {
		cfg.Sim.Enable = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	calc := astro.NewCalculator(astro.Location{
		LatDeg: cfg.Location.LatDeg,
		LonDeg: cfg.Location.LonDeg,
	}, cfg.Location.TimezoneOffsetHours)
	if cfg.Location.Projection.Enable {
		calc.SetProjection(astro.Projection{
			Enabled:      true,
			ShiftHours:   cfg.Location.Projection.ShiftHours,
			ShiftMinutes: cfg.Location.Projection.ShiftMinutes,
		})
	}

	sched := schedule.New(cfg.Schedule.Channels)
	if cfg.Schedule.Path != "" {
		b, err := os.ReadFile(cfg.Schedule.Path)
		if err != nil {
			log.Fatalf("schedule load failed: %v", err)
		}
		if err := sched.ImportJSON(b); err != nil {
			log.Fatalf("schedule import failed: %v", err)
		}
	} else {
		preset := cfg.Schedule.Preset
		if preset == "" {
			preset = "default"
		}
		if err := sched.LoadPreset(preset); err != nil {
			log.Fatalf("schedule preset failed: %v", err)
		}
	}

	ctrl := thermal.New(cfg.ThermalControllerConfig())

	fan := fanout.New(fanout.Config{
		Enable:      cfg.Fan.Enable,
		Backend:     cfg.Fan.Backend,
		Pin:         cfg.Fan.Pin,
		FrequencyHz: cfg.Fan.FrequencyHz,
		MinDuty:     cfg.Fan.MinDuty,
	})
	if err := fan.Start(ctx); err != nil {
		log.Fatalf("fan init failed: %v", err)
	}
	defer fan.Close()

	// Callbacks run inside ctrl.Update on the loop goroutine.
	fanOn := false
	fanDuty := 0.0
	ctrl.SetFanEnableFunc(func(on bool) {
		fanOn = on
		fan.Apply(fanOn, fanDuty)
	})
	ctrl.SetFanPWMFunc(func(percent float64) {
		fanDuty = percent
		fan.Apply(fanOn, fanDuty)
	})
	ctrl.SetEmergencyFunc(func(active bool) {
		log.Printf("thermal emergency active=%v", active)
	})

	now := time.Now
	var fixture *sim.Fixture
	var readers []sensorReader

	if cfg.Sim.Enable {
		clock := sim.NewClock(time.Now(), cfg.Sim.TimeScale)
		now = clock.Now
		fixture = sim.NewFixture(cfg.Sim.AmbientTempC, cfg.Sim.HeatRateCPerPct, cfg.Sim.CoolRateCPerPct)
		readers = append(readers, sensorReader{
			name: "sim",
			read: func() (float64, error) { return fixture.TempC(), nil },
		})
		log.Printf("simulation enabled ambient=%.1fC time_scale=%.0fx", cfg.Sim.AmbientTempC, cfg.Sim.TimeScale)
	} else {
		bus, err := i2c.Open(cfg.Sensors.Bus)
		if err != nil {
			log.Printf("i2c open %s failed: %v, running without temperature sensors", cfg.Sensors.Bus, err)
		} else {
			defer bus.Close()
			devices := cfg.Sensors.Devices
			if len(devices) == 0 {
				devices = []config.SensorDevice{{Name: "board", Addr: mcp9808.DefaultAddress()}}
			}
			for _, d := range devices {
				dev, err := mcp9808.New(bus.Dev(d.Addr))
				if err != nil {
					log.Printf("sensor %s init failed: %v", d.Name, err)
					continue
				}
				readers = append(readers, sensorReader{name: d.Name, read: dev.ReadTemperature})
			}
		}
	}
	for _, r := range readers {
		ctrl.AddSensor(r.name)
	}
	ctrl.Enable(true)

	var pub mqttfeed.Publisher
	remoteSamples := make(chan remoteSample, 64)
	if cfg.MQTT.Enable {
		p, err := mqttfeed.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
		if err != nil {
			log.Printf("mqtt connect failed: %v, continuing without publishing", err)
		} else {
			pub = p
			defer pub.Close()
		}
	}
	if pub != nil && len(cfg.MQTT.Sensors) > 0 {
		for _, name := range cfg.MQTT.Sensors {
			ctrl.AddSensor(name)
		}
		// Delivered on the client goroutine; hand off to the loop.
		err := pub.SubscribeSensors(cfg.MQTT.Sensors, func(name string, tempC float64) {
			select {
			case remoteSamples <- remoteSample{name: name, tempC: tempC}:
			default:
			}
		})
		if err != nil {
			log.Printf("mqtt sensor subscribe failed: %v", err)
		}
	}

	log.Printf("ledbrick-ng starting")
	log.Printf("location lat=%.4f lon=%.4f tz=%+.1fh channels=%d sensors=%d",
		cfg.Location.LatDeg, cfg.Location.LonDeg, cfg.Location.TimezoneOffsetHours,
		sched.NumChannels(), len(readers))

	ticker := time.NewTicker(cfg.Schedule.Interval)
	defer ticker.Stop()

	var times astro.Times
	var lastAstro time.Time
	var lastPub time.Time
	lastTick := now()
	simStart := lastTick
	lastMinute := -1

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		t := now()
		nowMs := t.UnixMilli()

		if lastAstro.IsZero() || t.Sub(lastAstro) >= cfg.Schedule.AstroRefresh {
			times = calc.Times(dateTimeOf(t))
			lastAstro = t
			log.Printf("astro refresh sunrise=%s sunset=%s moon_phase=%.2f",
				hhmm(times.SunriseMinutes), hhmm(times.SunsetMinutes), times.MoonPhase)
		}

		minute := t.Hour()*60 + t.Minute()
		vals, err := sched.ValuesAtWithAstro(minute, times)
		if err != nil {
			log.Printf("schedule evaluation failed: %v", err)
			continue
		}
		if minute != lastMinute {
			log.Printf("%s pwm=%s current=%s", hhmm(minute), fmtVals(vals.PWM, "%.1f"), fmtVals(vals.Current, "%.2f"))
			lastMinute = minute
		}

	drain:
		for {
			select {
			case s := <-remoteSamples:
				if err := ctrl.UpdateSensor(s.name, s.tempC, nowMs); err != nil {
					log.Printf("remote sensor %s update failed: %v", s.name, err)
				}
			default:
				break drain
			}
		}

		for _, r := range readers {
			v, err := r.read()
			if err != nil {
				log.Printf("sensor %s read failed: %v", r.name, err)
				continue
			}
			if err := ctrl.UpdateSensor(r.name, v, nowMs); err != nil {
				log.Printf("sensor %s update failed: %v", r.name, err)
			}
		}
		ctrl.Update(nowMs)

		if fixture != nil {
			duty := 0.0
			if fanOn {
				duty = fanDuty
			}
			fixture.Step(t.Sub(lastTick).Seconds(), mean(vals.PWM), duty)
		}
		lastTick = t

		if pub != nil && (lastPub.IsZero() || t.Sub(lastPub) >= cfg.MQTT.Interval) {
			st := ctrl.Status()
			if err := pub.PublishChannels(mqttfeed.ChannelEvent{
				Timestamp: t,
				PWM:       vals.PWM,
				Current:   vals.Current,
				MoonPhase: times.MoonPhase,
			}); err != nil {
				log.Printf("mqtt channel publish failed: %v", err)
			}
			if err := pub.PublishThermal(mqttfeed.ThermalEvent{
				Timestamp:    t,
				TempC:        st.CurrentTempC,
				TargetC:      st.TargetTempC,
				FanPWM:       st.FanPWMPercent,
				FanRPM:       st.FanRPM,
				FanEnabled:   st.FanEnabled,
				Emergency:    st.ThermalEmergency,
				Enabled:      st.Enabled,
				SensorsValid: st.SensorsValid,
				SensorsTotal: st.SensorsTotal,
			}); err != nil {
				log.Printf("mqtt thermal publish failed: %v", err)
			}
			lastPub = t
		}

		if simulateFor > 0 && t.Sub(simStart) >= simulateFor {
			log.Printf("simulated %s, done", simulateFor)
			break loop
		}
	}

	log.Printf("ledbrick-ng stopping")
}

func dateTimeOf(t time.Time) astro.DateTime {
	return astro.DateTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

func hhmm(minutes int) string {
	minutes = ((minutes % 1440) + 1440) % 1440
	h := minutes / 60
	m := minutes % 60
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}

func fmtVals(vs []float64, format string) string {
	out := "["
	for i, v := range vs {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf(format, v)
	}
	return out + "]"
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
