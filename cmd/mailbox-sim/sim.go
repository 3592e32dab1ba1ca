package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"mailbox-monitor/bus"
	"mailbox-monitor/devices/accel"
	"mailbox-monitor/devices/button"
	"mailbox-monitor/devices/lcd"
	"mailbox-monitor/devices/led"
	"mailbox-monitor/drivers/lis2dh12"
	"mailbox-monitor/gfx"
	"mailbox-monitor/orient"
	"mailbox-monitor/sched"
	"mailbox-monitor/services/config"
	"mailbox-monitor/services/mailbox"
	"mailbox-monitor/services/radio"
	"mailbox-monitor/types"
)

// faceVectors lays the enclosure on each face.
var faceVectors = map[orient.Face]types.Vector{
	orient.Face1: {Z: 1},
	orient.Face2: {X: 1},
	orient.Face3: {Y: 1},
	orient.Face4: {Y: -1},
	orient.Face5: {X: -1},
	orient.Face6: {Z: -1},
}

type sim struct {
	out io.Writer
	log *slog.Logger
	cfg mailbox.Config

	clk    *sched.ManualClock
	s      *sched.Scheduler
	sensor *simAccel
	acc    *accel.Device
	panel  *lcd.Mirror
	mod    *lcd.Module
	btn    *button.Button
	led    *led.LED
	faults *mailbox.Recorder
	app    *mailbox.App

	stop context.CancelFunc
	wg   sync.WaitGroup
}

func newSim(c config.Config, out io.Writer, log *slog.Logger) (*sim, error) {
	acfg, err := mailbox.FromConfig(c)
	if err != nil {
		return nil, err
	}
	m := &sim{out: out, log: log, cfg: acfg, clk: &sched.ManualClock{}}
	m.s = sched.New(m.clk)
	m.sensor = &simAccel{v: faceVectors[orient.Face1]}
	m.acc = accel.New(m.s, m.sensor, log)

	m.panel = lcd.NewMirror(128, 128)
	var leds [3]func(bool)
	for i, name := range []string{"red", "green", "blue"} {
		leds[i] = func(on bool) { fmt.Fprintf(out, "led %s %v\n", name, on) }
	}
	m.mod = lcd.New(lcd.NewPanel(m.panel, nil), lcd.Config{LEDs: leds, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.mod.Run(ctx)
	}()

	m.btn = button.New(m.s, nil)
	m.led = led.NewVirtual(m.s, m.mod.LEDDriver(), lcd.LEDGreen, false)
	m.faults = &mailbox.Recorder{}
	b := bus.NewBus(8)
	m.app = mailbox.New(acfg, mailbox.Deps{
		Sched:   m.s,
		Accel:   m.acc,
		Display: m.mod,
		LED:     m.led,
		Button:  m.btn,
		Radio:   &consoleRadio{out: out},
		Bus:     b.NewConnection("mailbox"),
		Fault:   m.faults.Func(),
		Logger:  log,
	})
	if err := m.app.Init(); err != nil {
		m.Close()
		return nil, err
	}
	m.pump()
	return m, nil
}

func (m *sim) Close() {
	m.stop()
	m.wg.Wait()
}

// Exec runs one console line and reports whether the console should exit.
func (m *sim) Exec(line string) bool {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintln(m.out, "error:", err)
		return false
	}
	if len(args) == 0 {
		return false
	}
	if err := m.exec(strings.ToLower(args[0]), args[1:]); err != nil {
		if errors.Is(err, errQuit) {
			return true
		}
		fmt.Fprintln(m.out, "error:", err)
	}
	return false
}

var errQuit = errors.New("quit")

func (m *sim) exec(cmd string, args []string) error {
	switch cmd {
	case "accel":
		f, err := floats(args, 3)
		if err != nil {
			return err
		}
		m.setVector(types.Vector{X: f[0], Y: f[1], Z: f[2]})
	case "tilt":
		if len(args) != 1 {
			return fmt.Errorf("usage: tilt <1..6>")
		}
		n, err := strconv.Atoi(args[0])
		v, ok := faceVectors[orient.Face(n)]
		if err != nil || !ok {
			return fmt.Errorf("face must be 1..6")
		}
		m.setVector(v)
	case "in", "out":
		f, err := floats(args, 1)
		if err != nil {
			return err
		}
		id := mailbox.SubIndoorTemperature
		if cmd == "out" {
			id = mailbox.SubOutdoorTemperature
		}
		m.deliver(id, radio.FloatValue(f[0]))
	case "notify":
		if len(args) != 1 {
			return fmt.Errorf("usage: notify true|false")
		}
		on, err := strconv.ParseBool(args[0])
		if err != nil {
			return err
		}
		m.deliver(mailbox.SubNotification, radio.BoolValue(on))
	case "click":
		m.click()
	case "advance":
		if len(args) != 1 {
			return fmt.Errorf("usage: advance <duration>")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return err
		}
		m.advance(sched.Ticks(d))
	case "show":
		fmt.Fprint(m.out, m.Screen())
	case "state":
		st := m.app.State()
		fmt.Fprintf(m.out, "t=%s face=%s rotation=%d alarm=%+v led=%s draws=%d\n",
			m.clk.Now().Duration(), st.Face, st.Rotation.Degrees(), st.Alarm, m.led.Mode(), m.app.Draws())
	case "faults":
		for _, err := range m.faults.Faults() {
			fmt.Fprintln(m.out, err)
		}
	case "help":
		fmt.Fprintln(m.out, "accel x y z | tilt n | in c | out c | notify b | click | advance d | show | state | faults | quit")
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func floats(args []string, n int) ([]float32, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers", n)
	}
	out := make([]float32, n)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// setVector changes the acceleration and raises the interrupt when the armed
// alarm condition now holds.
func (m *sim) setVector(v types.Vector) {
	m.sensor.set(v)
	if _, active, _ := m.sensor.AlarmSource(); active {
		m.acc.Interrupt()
	}
	m.pump()
}

func (m *sim) deliver(id radio.SubID, v radio.Value) {
	for _, s := range mailbox.Subs {
		if s.ID == id {
			m.app.OnRadioUpdate(id, s.Topic, v)
		}
	}
	m.pump()
}

func (m *sim) click() {
	steps := []struct {
		pressed bool
		after   sched.Tick
	}{{true, 0}, {true, button.DebounceTime}, {false, 80}, {false, button.DebounceTime}}
	for _, st := range steps {
		m.advance(st.after)
		m.btn.Feed(st.pressed)
	}
	m.pump()
}

// advance moves the clock to each due task in turn, then to now+d.
func (m *sim) advance(d sched.Tick) {
	target := m.clk.Now() + d
	for i := 0; i < 100000; i++ {
		next := m.s.NextDue()
		if next > target {
			break
		}
		if next > m.clk.Now() {
			m.clk.Set(next)
		}
		m.pump()
	}
	m.clk.Set(target)
	m.pump()
}

// pump runs everything due, waiting for LCD flushes so that display
// retries land within the retry delay.
func (m *sim) pump() {
	for i := 0; i < 100; i++ {
		m.s.Settle(100)
		deadline := time.Now().Add(200 * time.Millisecond)
		for !m.mod.IsReady() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		next := m.s.NextDue()
		if next == sched.Infinity || next-m.clk.Now() > m.cfg.RetryDelay {
			return
		}
		if next > m.clk.Now() {
			m.clk.Set(next)
		}
	}
}

// Screen renders the panel memory as the viewer sees it.
func (m *sim) Screen() string {
	w, h := m.panel.Size()
	buf := gfx.NewBuffer(w, h)
	for y := int16(0); y < h; y++ {
		for x := int16(0); x < w; x++ {
			buf.SetPixel(x, y, m.panel.Pixel(x, y))
		}
	}
	return buf.String()
}

// simAccel is a LIS2DH12 stand-in with a settable vector. Its alarm source
// evaluates the armed low-axis condition against that vector.
type simAccel struct {
	mu    sync.Mutex
	v     types.Vector
	alarm *lis2dh12.Alarm
}

func (a *simAccel) set(v types.Vector) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *simAccel) SetResolution(lis2dh12.Resolution) error { return nil }
func (a *simAccel) SetScale(lis2dh12.Scale) error           { return nil }

func (a *simAccel) ReadAcceleration() (x, y, z float32, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v.X, a.v.Y, a.v.Z, nil
}

func (a *simAccel) SetAlarm(al *lis2dh12.Alarm) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if al == nil {
		a.alarm = nil
		return nil
	}
	c := *al
	a.alarm = &c
	return nil
}

func (a *simAccel) AlarmSource() (byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	al := a.alarm
	if al == nil {
		return 0, false, nil
	}
	low := func(on bool, c float32) bool { return on && float32(math.Abs(float64(c))) < al.Threshold }
	if low(al.XLow, a.v.X) || low(al.YLow, a.v.Y) || low(al.ZLow, a.v.Z) {
		return 0x40, true, nil
	}
	return 0, false, nil
}

// consoleRadio prints what the node would transmit.
type consoleRadio struct {
	out io.Writer
}

func (r *consoleRadio) SetSubs(subs []radio.Sub) error {
	for _, s := range subs {
		fmt.Fprintf(r.out, "radio sub %s (%s)\n", s.Topic, s.Type)
	}
	return nil
}

func (r *consoleRadio) SetHandler(radio.Handler) {}

func (r *consoleRadio) PairingRequest(name, version string) {
	fmt.Fprintf(r.out, "radio pairing %s %s\n", name, version)
}

func (r *consoleRadio) PubTemperature(ch radio.Channel, c float32) error {
	fmt.Fprintf(r.out, "radio pub thermometer/%s %.2f\n", ch, c)
	return nil
}

func (r *consoleRadio) PubBarometer(ch radio.Channel, pa, m float32) error {
	fmt.Fprintf(r.out, "radio pub barometer/%s %.0f Pa %.1f m\n", ch, pa, m)
	return nil
}

func (r *consoleRadio) PubHumidity(ch radio.Channel, rh float32) error {
	fmt.Fprintf(r.out, "radio pub hygrometer/%s %.1f\n", ch, rh)
	return nil
}

func (r *consoleRadio) PubUptime(s uint32) error {
	fmt.Fprintf(r.out, "radio pub uptime %d\n", s)
	return nil
}
