// Package mailbox is the node application: it classifies the enclosure's
// orientation, keeps the accelerometer alarm armed for leaving the current
// face, rotates and redraws the LCD page, and glues the sensors, button and
// notification LED to the radio.
//
// Every method runs on the scheduler goroutine. Callbacks from other
// goroutines (radio, interrupts, heartbeat) arrive through sched.Post.
package mailbox

import (
	"log/slog"
	"math"
	"time"

	"mailbox-monitor/bus"
	"mailbox-monitor/devices/accel"
	"mailbox-monitor/devices/button"
	"mailbox-monitor/devices/led"
	"mailbox-monitor/devices/tags"
	"mailbox-monitor/drivers/lis2dh12"
	"mailbox-monitor/errcode"
	"mailbox-monitor/gfx"
	"mailbox-monitor/orient"
	"mailbox-monitor/sched"
	"mailbox-monitor/services/radio"
	"mailbox-monitor/types"
	"mailbox-monitor/x/timex"
)

// Subscription ids.
const (
	SubNotification radio.SubID = iota
	SubIndoorTemperature
	SubOutdoorTemperature
)

// Subs is the node's subscription table.
var Subs = []radio.Sub{
	{Topic: "update/-/notif/state", Type: radio.PayloadBool, ID: SubNotification},
	{Topic: "update/-/indoor/temperature", Type: radio.PayloadFloat, ID: SubIndoorTemperature},
	{Topic: "update/-/outdoor/temperature", Type: radio.PayloadFloat, ID: SubOutdoorTemperature},
}

// Display is the LCD surface the redraw task needs; *lcd.Module satisfies it.
type Display interface {
	IsReady() bool
	SetRotation(orient.Rotation)
	GFX() *gfx.Context
}

// Radio is the node radio; *radio.Node satisfies it.
type Radio interface {
	SetSubs([]radio.Sub) error
	SetHandler(radio.Handler)
	PairingRequest(name, version string)
	PubTemperature(ch radio.Channel, celsius float32) error
	PubBarometer(ch radio.Channel, pascal, meter float32) error
	PubHumidity(ch radio.Channel, percent float32) error
	PubUptime(seconds uint32) error
}

// DisplayData holds the remote readings shown on the page. A NaN value is
// never shown.
type DisplayData struct {
	InTemp  float32
	InAt    sched.Tick
	OutTemp float32
	OutAt   sched.Tick
}

// State is everything the controller mutates.
type State struct {
	Face     orient.Face
	Alarm    types.Alarm
	Rotation orient.Rotation
	Display  DisplayData
}

// Config holds the application tunables, in scheduler ticks where timed.
type Config struct {
	Name     string
	Version  string
	Revision orient.Revision

	Threshold    float32
	MinRatio     float32
	PollInterval sched.Tick

	StaleAfter sched.Tick
	RetryDelay sched.Tick
	Indoor     string
	Outdoor    string

	TemperatureInterval sched.Tick
	BarometerInterval   sched.Tick
	HumidityInterval    sched.Tick
}

// DefaultConfig mirrors the embedded defaults.
func DefaultConfig() Config {
	return Config{
		Name:                "mailbox-monitor",
		Version:             "v1.0.0",
		Revision:            orient.RevisionA,
		Threshold:           0.5,
		MinRatio:            orient.DefaultMinRatio,
		PollInterval:        5000,
		StaleAfter:          60 * 60 * 1000,
		RetryDelay:          10,
		Indoor:              "Inne",
		Outdoor:             "Ute",
		TemperatureInterval: 10000,
		BarometerInterval:   10000,
		HumidityInterval:    10000,
	}
}

// Deps are the collaborators. Only Sched and Accel are required.
type Deps struct {
	Sched   *sched.Scheduler
	Accel   *accel.Device
	Display Display
	LED     *led.LED
	Button  *button.Button
	Radio   Radio

	Temperature *tags.Temperature
	Pressure    *tags.Pressure
	Humidity    *tags.Humidity

	Bus    *bus.Connection
	Fault  FaultFunc
	Logger *slog.Logger
}

// App is the node application.
type App struct {
	cfg Config
	d   Deps
	s   *sched.Scheduler
	log *slog.Logger

	dice   *orient.Dice
	table  orient.Table
	state  State
	redraw sched.TaskID
	draws  int

	orientTopic bus.Topic
}

// New builds the application. Nothing runs until Init.
func New(cfg Config, d Deps) *App {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	if d.Fault == nil {
		d.Fault = Trap(log)
	}
	nan := float32(math.NaN())
	return &App{
		cfg:         cfg,
		d:           d,
		s:           d.Sched,
		log:         log.With("service", "mailbox"),
		table:       orient.RotationTable(cfg.Revision),
		redraw:      sched.NoTask,
		state:       State{Display: DisplayData{InTemp: nan, OutTemp: nan}},
		orientTopic: bus.T("orientation", "state"),
	}
}

// Init wires handlers and starts the boot sequence: first page, periodic
// accelerometer polling until the face is known, sensors, and the radio
// pairing request.
func (a *App) Init() error {
	if a.d.Display != nil {
		a.redraw = a.s.Register(a.redrawTask, a.s.Now())
	}

	a.dice = orient.NewDice(orient.Unknown)
	if a.cfg.MinRatio > 0 {
		a.dice.MinRatio = a.cfg.MinRatio
	}
	acc := a.d.Accel
	if err := acc.SetResolution(lis2dh12.Resolution8Bit); err != nil {
		return err
	}
	if err := acc.SetScale(lis2dh12.Scale4G); err != nil {
		return err
	}
	acc.SetEventHandler(a.OnAccelEvent)
	// Unarmed: records the threshold only.
	if err := acc.SetAlarm(&types.Alarm{Threshold: a.cfg.Threshold}); err != nil {
		return err
	}
	acc.SetUpdateInterval(a.cfg.PollInterval)

	if a.d.LED != nil {
		a.d.LED.SetMode(types.LEDOff)
	}
	if a.d.Button != nil {
		a.d.Button.SetEventHandler(a.onButton)
	}
	a.initSensors()

	if r := a.d.Radio; r != nil {
		if err := r.SetSubs(Subs); err != nil {
			return err
		}
		r.SetHandler(a.OnRadioUpdate)
		r.PairingRequest(a.cfg.Name, a.cfg.Version)
	}
	a.log.Info("initialised", "name", a.cfg.Name, "version", a.cfg.Version, "revision", a.cfg.Revision.String())
	return nil
}

// State returns a copy of the controller state.
func (a *App) State() State { return a.state }

// Draws counts completed page renders.
func (a *App) Draws() int { return a.draws }

// OnAccelEvent is the accelerometer handler.
func (a *App) OnAccelEvent(d *accel.Device, ev accel.Event) {
	if ev != accel.EventUpdate {
		return
	}
	v := d.Result()
	old := a.dice.Face()
	nf := a.dice.Feed(v)
	a.log.Debug("face", "from", int(old), "to", int(nf), "x", v.X, "y", v.Y, "z", v.Z)
	if nf == old {
		return
	}
	a.faceChanged(nf, v)
}

// faceChanged re-arms the alarm for leaving f and, for upright faces,
// rotates the display.
func (a *App) faceChanged(f orient.Face, v types.Vector) {
	a.state.Face = f
	// The alarm now covers departures; polling was only for the unknown start.
	a.d.Accel.SetUpdateInterval(sched.Infinity)

	al, err := orient.AlarmFromFace(f, a.cfg.Threshold)
	if err != nil {
		a.d.Fault(err)
	} else {
		a.state.Alarm = al
		// Arming samples again, producing a second update for the same face.
		if err := a.d.Accel.SetAlarm(&al); err != nil {
			a.log.Error("set alarm failed", "err", err)
		}
	}

	if rot, ok := a.table.Rotation(f); ok {
		a.state.Rotation = rot
		a.RequestRedraw()
	}
	a.publishOrientation(v)
}

// RequestRedraw plans the redraw task now. Repeated requests before it runs
// coalesce into one draw.
func (a *App) RequestRedraw() {
	if a.redraw != sched.NoTask {
		a.s.PlanNow(a.redraw)
	}
}

func (a *App) redrawTask() {
	disp := a.d.Display
	disp.SetRotation(a.state.Rotation)
	if !disp.IsReady() {
		a.log.Debug("display not ready")
		a.s.PlanCurrentFromNow(a.cfg.RetryDelay)
		return
	}
	g := disp.GFX()
	a.drawPage(g, a.s.Now())
	a.draws++
	if err := g.Update(); err != nil {
		a.log.Error("display update failed", "err", err)
	}
}

// Fresh reports whether a reading taken at at is shown at now.
func Fresh(v float32, at, now, staleAfter sched.Tick) bool {
	return !math.IsNaN(float64(v)) && now-at < staleAfter
}

func (a *App) drawPage(g *gfx.Context, now sched.Tick) {
	dd := a.state.Display
	g.Clear()

	g.SetFont(gfx.FontSmall)
	g.DrawString(0, 8, a.cfg.Indoor, true)
	g.SetFont(gfx.FontLarge)
	if Fresh(dd.InTemp, dd.InAt, now, a.cfg.StaleAfter) {
		g.Printf(12, 24, true, "%.1f °C", dd.InTemp)
	}

	g.DrawLine(8, 64, 120, 64, true)

	g.SetFont(gfx.FontSmall)
	g.DrawString(0, 72, a.cfg.Outdoor, true)
	g.SetFont(gfx.FontLarge)
	if Fresh(dd.OutTemp, dd.OutAt, now, a.cfg.StaleAfter) {
		g.Printf(12, 88, true, "%.1f °C", dd.OutTemp)
	}
}

// OnRadioUpdate handles subscription updates.
func (a *App) OnRadioUpdate(id radio.SubID, topic string, v radio.Value) {
	switch id {
	case SubNotification:
		a.log.Info("notification", "topic", topic, "value", v.Bool)
		if a.d.LED == nil {
			return
		}
		if v.Bool {
			a.d.LED.SetMode(types.LEDOn)
		} else {
			a.d.LED.SetMode(types.LEDOff)
		}
	case SubIndoorTemperature:
		a.log.Info("indoor temperature", "topic", topic, "value", v.Float)
		a.state.Display.InTemp, a.state.Display.InAt = v.Float, a.s.Now()
		a.RequestRedraw()
	case SubOutdoorTemperature:
		a.log.Info("outdoor temperature", "topic", topic, "value", v.Float)
		a.state.Display.OutTemp, a.state.Display.OutAt = v.Float, a.s.Now()
		a.RequestRedraw()
	default:
		a.d.Fault(&errcode.E{C: errcode.InvalidParams, Op: "mailbox.OnRadioUpdate", Msg: topic})
	}
}

func (a *App) onButton(_ *button.Button, ev button.Event) {
	a.log.Info("button", "event", ev.String())
	if ev == button.EventClick && a.d.LED != nil {
		a.d.LED.SetMode(types.LEDOff)
	}
}

// Heartbeat logs liveness and publishes the uptime.
func (a *App) Heartbeat(uptime time.Duration) {
	a.log.Info("heartbeat", "uptime", uptime.Truncate(time.Second).String(),
		"face", a.state.Face.String(), "rotation", a.state.Rotation.Degrees())
	if a.d.Radio != nil {
		if err := a.d.Radio.PubUptime(timex.Seconds(uptime)); err != nil {
			a.log.Warn("uptime publish failed", "err", err)
		}
	}
}

func (a *App) publishOrientation(v types.Vector) {
	if a.d.Bus == nil {
		return
	}
	st := types.OrientationState{
		Face:     int(a.state.Face),
		Rotation: a.state.Rotation.Degrees(),
		Alarm:    a.state.Alarm,
		Sample:   v,
		TSms:     int64(a.s.Now()),
	}
	a.d.Bus.Publish(a.d.Bus.NewMessage(a.orientTopic, st, true))
}
