// engine.go
//
// Defines the Engine: the goroutine that owns a World. All mutations arrive
// as Commands on a buffered channel drained at the start of each tick, so
// the World keeps a single writer. Telemetry fans out to subscribers through
// buffered channels that drop frames instead of blocking the tick loop.

package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineConfig controls the tick loop.
type EngineConfig struct {
	TickRate      float64 // Hz
	CommandBuffer int     // capacity of the command channel
	AutoStart     bool    // advance time as soon as Run starts
}

// DefaultEngineConfig returns a paused 10 Hz engine.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickRate:      10,
		CommandBuffer: 256,
	}
}

// Subscription receives every published Frame until the engine stops.
// Frames are shared between subscribers and must be treated as read-only.
type Subscription struct {
	name    string
	ch      chan Frame
	dropped atomic.Int64
}

// C returns the frame channel. It is closed when Run returns.
func (s *Subscription) C() <-chan Frame { return s.ch }

// Dropped returns how many frames were discarded because the subscriber lagged.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

type result struct {
	value any
	err   error
}

type envelope struct {
	cmd   Command
	reply chan result // nil for fire-and-forget commands
}

// Engine runs a World on a fixed-rate tick loop.
type Engine struct {
	world *World
	cfg   EngineConfig
	dt    float64

	cmds chan envelope
	done chan struct{}

	subsMu sync.Mutex
	subs   []*Subscription

	running atomic.Bool
	state   atomic.Pointer[WorldState]
}

// NewEngine wraps w. The engine takes ownership: w must not be touched
// directly once Run or Step has been called.
func NewEngine(w *World, cfg EngineConfig) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultEngineConfig().TickRate
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultEngineConfig().CommandBuffer
	}
	e := &Engine{
		world: w,
		cfg:   cfg,
		dt:    1 / cfg.TickRate,
		cmds:  make(chan envelope, cfg.CommandBuffer),
		done:  make(chan struct{}),
	}
	e.running.Store(cfg.AutoStart)
	e.publishState()
	return e
}

// TickRate returns the configured tick rate in Hz.
func (e *Engine) TickRate() float64 { return e.cfg.TickRate }

// Subscribe registers a telemetry consumer with the given channel capacity.
// Subscribing to a stopped engine yields an already closed channel.
func (e *Engine) Subscribe(name string, buffer int) *Subscription {
	s := &Subscription{name: name, ch: make(chan Frame, buffer)}
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	select {
	case <-e.done:
		close(s.ch)
	default:
		e.subs = append(e.subs, s)
	}
	return s
}

// Run ticks until ctx is cancelled. A paused engine keeps draining commands
// but does not advance time. Cancellation takes effect after the current tick.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / e.cfg.TickRate))
	defer ticker.Stop()

	logrus.Infof("Engine started at %.1f Hz (running=%v)", e.cfg.TickRate, e.running.Load())
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("Engine stopped at tick %d (sim time %.2fs)", e.world.TickCount(), e.world.SimTime())
			return nil
		case <-ticker.C:
			e.drain()
			if e.running.Load() {
				e.advance()
			} else {
				e.publishState()
			}
		}
	}
}

// Step drains pending commands and advances exactly one tick regardless of the
// running flag. For headless runs; must not be called while Run is active.
func (e *Engine) Step() Frame {
	e.drain()
	return e.advance()
}

func (e *Engine) advance() Frame {
	e.world.Tick(e.dt)
	frame := e.world.Telemetry()
	e.publishState()
	e.publish(frame)
	return frame
}

// drain applies the commands queued before this tick started.
func (e *Engine) drain() {
	for n := len(e.cmds); n > 0; n-- {
		env := <-e.cmds
		value, err := env.cmd.execute(e)
		if env.reply != nil {
			env.reply <- result{value: value, err: err}
			continue
		}
		if err != nil {
			logrus.Debugf("command %T ignored: %v", env.cmd, err)
		}
	}
}

func (e *Engine) publish(frame Frame) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, s := range e.subs {
		select {
		case s.ch <- frame:
		default:
			if s.dropped.Add(1)%100 == 1 {
				logrus.WithFields(logrus.Fields{
					"subscriber": s.name,
					"tick":       frame.Tick,
					"dropped":    s.dropped.Load(),
				}).Warn("subscriber lagging, dropping telemetry frame")
			}
		}
	}
}

func (e *Engine) publishState() {
	s := e.world.Snapshot()
	s.Running = e.running.Load()
	e.state.Store(&s)
}

func (e *Engine) setRunning(running bool) {
	if e.running.Swap(running) != running {
		logrus.Infof("Simulation running=%v at sim time %.2fs", running, e.world.SimTime())
	}
}

func (e *Engine) shutdown() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	close(e.done)
	for _, s := range e.subs {
		close(s.ch)
	}
	e.subs = nil
}

// Running reports whether time is advancing.
func (e *Engine) Running() bool { return e.running.Load() }

// State returns the snapshot published after the most recent tick or command drain.
func (e *Engine) State() WorldState { return *e.state.Load() }

// Submit queues cmd and waits for the tick loop to apply it. ctx bounds both
// the wait for queue space and the wait for the result.
func (e *Engine) Submit(ctx context.Context, cmd Command) (any, error) {
	env := envelope{cmd: cmd, reply: make(chan result, 1)}
	select {
	case e.cmds <- env:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrEngineBusy, ctx.Err())
	case <-e.done:
		return nil, ErrEngineStopped
	}
	select {
	case r := <-env.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrEngineStopped
	}
}

// Post queues cmd without waiting for it to be applied.
func (e *Engine) Post(cmd Command) error {
	select {
	case e.cmds <- envelope{cmd: cmd}:
		return nil
	case <-e.done:
		return ErrEngineStopped
	default:
		return ErrEngineBusy
	}
}

// Apply feeds a coordination decision back into the world. The decision
// takes effect on the next tick; unknown and overridden robots are ignored.
func (e *Engine) Apply(ctx context.Context, robotID RobotID, action Action) error {
	select {
	case e.cmds <- envelope{cmd: ApplyDecision{RobotID: robotID, Action: action}}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrEngineBusy, ctx.Err())
	case <-e.done:
		return ErrEngineStopped
	}
}
