// Package acquisition runs the forced mode measurement cycle: configure
// once, then trigger, wait, read and emit until the context is done.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/bme280"
)

// Sensor is the part of a device session the loop drives.
type Sensor interface {
	Init(ctx context.Context) error
	Configure(ctx context.Context, s bme280.Settings) error
	TriggerForced(ctx context.Context) error
	Read(ctx context.Context) (bme280.Reading, error)
}

var _ Sensor = &bme280.Device{}

// Emitter receives one reading per successful cycle.
type Emitter interface {
	Emit(ctx context.Context, r bme280.Reading) error
}

type EmitterFunc func(ctx context.Context, r bme280.Reading) error

func (f EmitterFunc) Emit(ctx context.Context, r bme280.Reading) error {
	return f(ctx, r)
}

// Observer is told about every finished cycle, failed or not.
type Observer interface {
	Observe(res CycleResult)
}

type ObserverFunc func(res CycleResult)

func (f ObserverFunc) Observe(res CycleResult) {
	f(res)
}

type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateConfiguring
	StateTriggering
	StateWaiting
	StateReading
	StateEmitting
	StateStopped
)

var stateNames = [...]string{"idle", "initializing", "configuring", "triggering", "waiting", "reading", "emitting", "stopped"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CycleResult describes one trigger/wait/read/emit pass. Phase is the state
// the cycle failed in, or StateEmitting when it completed.
type CycleResult struct {
	Seq      uint64
	Started  time.Time
	Duration time.Duration
	Reading  bme280.Reading
	Phase    State
	Err      error
}

func (r CycleResult) OK() bool {
	return r.Err == nil
}

type Opts struct {
	Settings bme280.Settings
	// Settle is the wait between trigger and read. Zero means the datasheet
	// measurement time for Settings.
	Settle time.Duration
	// Interval is an extra pause after each cycle.
	Interval time.Duration
	// SkipInit is for sensors initialized by the caller.
	SkipInit  bool
	Delay     weather.Delayer
	Logger    *slog.Logger
	Observers []Observer
}

type Opt func(*Opts)

func WithSettings(s bme280.Settings) Opt {
	return func(o *Opts) {
		o.Settings = s
	}
}

func WithSettle(d time.Duration) Opt {
	return func(o *Opts) {
		o.Settle = d
	}
}

func WithInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = d
	}
}

func WithoutInit() Opt {
	return func(o *Opts) {
		o.SkipInit = true
	}
}

func WithDelay(d weather.Delayer) Opt {
	return func(o *Opts) {
		o.Delay = d
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

func WithObserver(obs Observer) Opt {
	return func(o *Opts) {
		o.Observers = append(o.Observers, obs)
	}
}

var ErrRunning = errors.New("acquisition loop already running")

// Loop owns its sensor for as long as Run is active.
type Loop struct {
	sensor   Sensor
	emitter  Emitter
	settings bme280.Settings
	settle   time.Duration
	interval time.Duration
	skipInit bool
	delay    weather.Delayer
	log      *slog.Logger
	obs      []Observer

	state   atomic.Int32
	running atomic.Bool
	seq     atomic.Uint64

	mx         sync.Mutex
	configured bool
}

func New(sensor Sensor, emitter Emitter, opts ...Opt) *Loop {
	config := Opts{
		Settings: bme280.DefaultSettings,
		Delay:    weather.Sleep,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Settle <= 0 {
		config.Settle = bme280.MeasurementTime(config.Settings)
	}
	return &Loop{
		sensor:   sensor,
		emitter:  emitter,
		settings: config.Settings,
		settle:   config.Settle,
		interval: config.Interval,
		skipInit: config.SkipInit,
		delay:    config.Delay,
		log:      config.Logger,
		obs:      config.Observers,
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run initializes the sensor and cycles until ctx is done. An init failure
// is returned and no cycle is attempted. Configure and cycle failures are
// logged and the loop carries on. Every cycle suspends for at least the
// settle time, failed ones included.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	defer l.setState(StateStopped)

	if !l.skipInit {
		l.setState(StateInitializing)
		if err := l.sensor.Init(ctx); err != nil {
			l.log.Error("sensor init failed", "error", err)
			return fmt.Errorf("sensor init failed: %w", err)
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.isConfigured() {
			if err := l.Configure(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.log.Warn("sensor configuration failed, retrying", "error", err)
				if err := l.delay.Delay(ctx, l.settle); err != nil {
					return err
				}
				continue
			}
		}
		res := l.Cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if res.Err != nil {
			l.log.Warn("measurement cycle failed", "seq", res.Seq, "phase", res.Phase, "error", res.Err)
			// a failed trigger skipped the settle wait; keep the cycle cadence
			if res.Phase == StateTriggering {
				if err := l.delay.Delay(ctx, l.settle); err != nil {
					return err
				}
			}
		}
		if l.interval > 0 {
			if err := l.delay.Delay(ctx, l.interval); err != nil {
				return err
			}
		}
	}
}

// Configure pushes the loop settings to the sensor. It is done once by Run
// and can be called again to force a re-push.
func (l *Loop) Configure(ctx context.Context) error {
	l.setState(StateConfiguring)
	err := l.sensor.Configure(ctx, l.settings)
	l.mx.Lock()
	l.configured = err == nil
	l.mx.Unlock()
	return err
}

func (l *Loop) isConfigured() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.configured
}

// Cycle runs a single trigger, wait, read, emit pass.
func (l *Loop) Cycle(ctx context.Context) CycleResult {
	res := CycleResult{Seq: l.seq.Add(1), Started: time.Now()}
	res.Phase, res.Reading, res.Err = l.cycle(ctx)
	res.Duration = time.Since(res.Started)
	for _, o := range l.obs {
		o.Observe(res)
	}
	return res
}

func (l *Loop) cycle(ctx context.Context) (State, bme280.Reading, error) {
	l.setState(StateTriggering)
	if err := l.sensor.TriggerForced(ctx); err != nil {
		return StateTriggering, bme280.Reading{}, err
	}
	l.setState(StateWaiting)
	if err := l.delay.Delay(ctx, l.settle); err != nil {
		return StateWaiting, bme280.Reading{}, err
	}
	l.setState(StateReading)
	r, err := l.sensor.Read(ctx)
	if err != nil {
		return StateReading, r, err
	}
	l.setState(StateEmitting)
	if l.emitter != nil {
		if err := l.emitter.Emit(ctx, r); err != nil {
			return StateEmitting, r, fmt.Errorf("emit failed: %w", err)
		}
	}
	return StateEmitting, r, nil
}
