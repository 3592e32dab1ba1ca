// Command mailbox-monitor is the node firmware: it watches the enclosure's
// orientation, keeps the LCD page upright and reports the sensors over the
// radio link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tinygo.org/x/drivers/shtc3"

	"mailbox-monitor/bus"
	"mailbox-monitor/devices/accel"
	"mailbox-monitor/devices/button"
	"mailbox-monitor/devices/lcd"
	"mailbox-monitor/devices/led"
	"mailbox-monitor/devices/tags"
	"mailbox-monitor/drivers/aht20"
	"mailbox-monitor/drivers/lis2dh12"
	"mailbox-monitor/drivers/mpl3115a2"
	"mailbox-monitor/platform"
	"mailbox-monitor/sched"
	"mailbox-monitor/services/config"
	"mailbox-monitor/services/heartbeat"
	"mailbox-monitor/services/mailbox"
	"mailbox-monitor/services/radio"
	"mailbox-monitor/x/logx"
)

func main() {
	cfgPath := flag.String("config", "", "YAML configuration overlay")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logx.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(log)

	ctx, stop := signalContext()
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	acfg, err := mailbox.FromConfig(cfg)
	if err != nil {
		return err
	}
	res, err := platform.Open(cfg.Platform)
	if err != nil {
		return err
	}
	defer res.Close()
	if res.I2C == nil {
		return errors.New("platform: no i2c bus configured")
	}

	b := bus.NewBus(16)
	config.Publish(b.NewConnection("config"), cfg)
	s := sched.New(sched.NewSystemClock())

	lis := lis2dh12.New(res.I2C)
	if err := lis.Configure(lis2dh12.Config{
		Resolution: lis2dh12.Resolution8Bit,
		Scale:      lis2dh12.Scale4G,
		Rate:       lis2dh12.Rate10Hz,
	}); err != nil {
		return fmt.Errorf("lis2dh12: %w", err)
	}
	acc := accel.New(s, &lis, log)
	if err := res.OnAccelIRQ(func() { acc.Interrupt() }); err != nil {
		log.Warn("accelerometer interrupt unavailable", "err", err)
	}

	deps := mailbox.Deps{
		Sched:  s,
		Accel:  acc,
		Bus:    b.NewConnection("mailbox"),
		Logger: log,
	}

	var leds led.Driver = led.DriverFunc(func(ch int, on bool) {
		if ch >= 0 && ch < len(res.LEDs) && res.LEDs[ch] != nil {
			res.LEDs[ch](on)
		}
	})
	if cfg.Display.Enabled && res.SPI != nil {
		panel := lcd.NewPanel(lcd.LSBFirst(res.SPI), res.LCDCS)
		if err := panel.Clear(); err != nil {
			log.Warn("lcd clear failed", "err", err)
		}
		mod := lcd.New(panel, lcd.Config{
			LEDs:         res.LEDs,
			VCOMInterval: cfg.Display.VCOMInterval,
			Logger:       log,
		})
		go mod.Run(ctx)
		deps.Display = mod
		leds = mod.LEDDriver()
	}
	deps.LED = led.NewVirtual(s, leds, lcd.LEDGreen, false)
	if res.Button != nil {
		deps.Button = button.New(s, res.Button)
	}
	openSensors(s, res, cfg.Sensors, &deps, log)

	var node *radio.Node
	if cfg.Radio.Transport.Type != "none" {
		radio.UARTDial = platform.DialUART
		node = radio.New(radio.FromConfig(cfg.Radio), s, b.NewConnection("radio"), log)
		deps.Radio = node
	}

	app := mailbox.New(acfg, deps)
	if err := app.Init(); err != nil {
		return err
	}

	if node != nil {
		go node.Run(ctx)
	}
	hb := heartbeat.New(s, app.Heartbeat, log)
	go func() {
		if err := hb.Run(ctx, b.NewConnection("heartbeat"), cfg.Heartbeat.Schedule); err != nil {
			log.Error("heartbeat stopped", "err", err)
		}
	}()

	log.Info("running", "boot", time.Now().Format(time.RFC3339))
	s.Run(ctx)
	return nil
}

// openSensors configures the enabled sensor chips. A chip that does not
// answer is logged and left out.
func openSensors(s *sched.Scheduler, res *platform.Resources, sc config.SensorsConfig, deps *mailbox.Deps, log *slog.Logger) {
	if c := sc.Temperature; c.Enabled {
		t := tags.NewTMP(res.I2C, c.Address)
		if err := t.Configure(); err != nil {
			log.Error("tmp112 unavailable", "err", err)
		} else {
			deps.Temperature = tags.NewTemperature(s, t, log)
		}
	}
	if c := sc.Barometer; c.Enabled {
		p := mpl3115a2.New(res.I2C)
		if c.Address != 0 {
			p.Address = c.Address
		}
		if err := p.Configure(); err != nil {
			log.Error("mpl3115a2 unavailable", "err", err)
		} else {
			deps.Pressure = tags.NewPressure(s, &p, log)
		}
	}
	if c := sc.Humidity; c.Enabled {
		switch c.Chip {
		case "aht20":
			h := aht20.New(res.I2C)
			if err := h.Configure(c.Address); err != nil {
				log.Error("aht20 unavailable", "err", err)
				return
			}
			deps.Humidity = tags.NewAHT20(s, &h, log)
		default:
			h := shtc3.New(res.I2C)
			deps.Humidity = tags.NewSHTC3(s, &h, log)
		}
	}
}
