// Package indicator drives the single status LED through named programs.
//
// An Engine is ticked from the controller loop. Blinking programs toggle the
// LED every program interval and either repeat or fall back to the idle ramp
// once they have completed their blink count. Starting a program always
// replaces whatever was running.
package indicator

import (
	"time"

	"go.uber.org/zap"
)

// Output is the LED the engine drives. Brightness 0 is off, 255 fully on.
// Polarity is the output's concern.
type Output interface {
	SetBrightness(b uint8) error
}

// State is a point-in-time copy of the engine.
type State struct {
	Active      bool
	Program     Program
	ToggleCount uint
	LastTick    time.Time
	Interval    time.Duration
	Level       bool
	Brightness  uint8
}

// Engine is the indicator state machine. Not safe for concurrent use.
type Engine struct {
	out    Output
	logger *zap.Logger

	st      State
	pattern pattern

	rampLevel int
	rampDelta int
	lastRamp  time.Time

	writeFailed bool
}

// New returns an engine showing the idle ramp.
func New(out Output, logger *zap.Logger) *Engine {
	e := &Engine{
		out:       out,
		logger:    logger.With(zap.String("component", "indicator")),
		rampDelta: RampDelta,
	}
	e.st.Program = Idle
	e.pattern = Idle.pattern()
	e.st.Interval = e.pattern.interval
	return e
}

// Start replaces the running program.
func (e *Engine) Start(p Program, now time.Time) {
	pat := p.pattern()

	e.pattern = pat
	e.st.Program = p
	e.st.ToggleCount = 0
	e.st.Level = false
	e.st.LastTick = now
	e.st.Interval = pat.interval

	switch pat.kind {
	case kindBlink:
		e.st.Active = true
		e.write(0)
	case kindSteady:
		e.st.Active = true
		e.st.Level = true
		e.write(255)
	case kindRamp:
		e.st.Active = false
		e.lastRamp = now
		e.write(uint8(e.rampLevel))
	default:
		e.st.Active = false
		e.write(0)
	}

	e.logger.Debug("program started", zap.Stringer("program", p))
}

// Tick advances the running program to now.
func (e *Engine) Tick(now time.Time) {
	switch e.pattern.kind {
	case kindBlink:
		e.tickBlink(now)
	case kindRamp:
		e.tickRamp(now)
	}
}

func (e *Engine) tickBlink(now time.Time) {
	if !e.st.Active {
		return
	}
	if now.Sub(e.st.LastTick) < e.st.Interval {
		return
	}

	e.st.LastTick = now
	e.st.Level = !e.st.Level
	if e.st.Level {
		e.write(255)
	} else {
		e.write(0)
	}
	e.st.ToggleCount++

	if e.st.ToggleCount < 2*e.pattern.blinks {
		return
	}
	if e.pattern.repeat {
		e.st.ToggleCount = 0
		return
	}
	e.Start(Idle, now)
}

// tickRamp moves the idle brightness one step along a triangle wave between
// 0 and 255.
func (e *Engine) tickRamp(now time.Time) {
	if now.Sub(e.lastRamp) < RampStep {
		return
	}
	e.lastRamp = now

	e.rampLevel += e.rampDelta
	if e.rampLevel >= 255 {
		e.rampLevel = 255
		e.rampDelta = -RampDelta
	} else if e.rampLevel <= 0 {
		e.rampLevel = 0
		e.rampDelta = RampDelta
	}
	e.write(uint8(e.rampLevel))
}

func (e *Engine) write(b uint8) {
	e.st.Brightness = b
	if e.out == nil {
		return
	}
	if err := e.out.SetBrightness(b); err != nil {
		if !e.writeFailed {
			e.logger.Warn("led write failed", zap.Error(err))
			e.writeFailed = true
		}
		return
	}
	e.writeFailed = false
}

// Program returns the running program.
func (e *Engine) Program() Program { return e.st.Program }

// State returns a copy of the engine state.
func (e *Engine) State() State { return e.st }
