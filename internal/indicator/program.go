package indicator

import "time"

// Program is one of the closed set of LED patterns.
type Program int

const (
	None Program = iota
	Setup
	Success
	Error
	WiFiConnecting
	CloudConnecting
	Reset
	Active
	Idle
)

// Timing for the blinking programs.
const (
	BlinkInterval      = 200 * time.Millisecond
	QuickBlinkInterval = 100 * time.Millisecond
	SlowBlinkInterval  = 500 * time.Millisecond
	ErrorBlinkInterval = 150 * time.Millisecond

	// RampStep is the idle ramp period; it is independent of any program interval.
	RampStep = 30 * time.Millisecond
	// RampDelta is the brightness change per ramp step.
	RampDelta = 5
)

type kind int

const (
	kindBlink kind = iota
	kindSteady
	kindRamp
	kindOff
)

// pattern describes how a program drives the LED.
type pattern struct {
	kind     kind
	blinks   uint
	interval time.Duration
	repeat   bool
}

func (p Program) pattern() pattern {
	switch p {
	case Setup:
		return pattern{kind: kindBlink, blinks: 2, interval: QuickBlinkInterval, repeat: true}
	case Success:
		return pattern{kind: kindBlink, blinks: 3, interval: BlinkInterval}
	case Error:
		return pattern{kind: kindBlink, blinks: 5, interval: ErrorBlinkInterval}
	case WiFiConnecting:
		return pattern{kind: kindBlink, blinks: 2, interval: SlowBlinkInterval, repeat: true}
	case CloudConnecting:
		return pattern{kind: kindBlink, blinks: 3, interval: BlinkInterval, repeat: true}
	case Reset:
		return pattern{kind: kindBlink, blinks: 5, interval: QuickBlinkInterval}
	case Active:
		return pattern{kind: kindSteady}
	case Idle:
		return pattern{kind: kindRamp, interval: RampStep}
	default:
		return pattern{kind: kindOff}
	}
}

// Blinks returns the blink count of a blinking program, or 0.
func (p Program) Blinks() uint { return p.pattern().blinks }

// Interval returns the toggle interval of a blinking program, or the ramp
// step for Idle.
func (p Program) Interval() time.Duration { return p.pattern().interval }

// Repeating reports whether the program cycles until replaced.
func (p Program) Repeating() bool { return p.pattern().repeat }

func (p Program) String() string {
	switch p {
	case None:
		return "none"
	case Setup:
		return "setup"
	case Success:
		return "success"
	case Error:
		return "error"
	case WiFiConnecting:
		return "wifi_connecting"
	case CloudConnecting:
		return "cloud_connecting"
	case Reset:
		return "reset"
	case Active:
		return "active"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}
