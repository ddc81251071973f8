//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Relays is not available on non-Linux platforms.
type Relays struct{}

// NewRelays returns an error on non-Linux platforms.
func NewRelays(chip string, pins []int, activeLow bool, initial []bool) (*Relays, error) {
	return nil, errUnsupported
}

// InspectRelays returns an error on non-Linux platforms.
func InspectRelays(chip string, pins []int, activeLow bool) (*Relays, error) {
	return nil, errUnsupported
}

// Write is not implemented on non-Linux platforms.
func (r *Relays) Write(index int, on bool) error { return errUnsupported }

// Len returns 0 on non-Linux platforms.
func (r *Relays) Len() int { return 0 }

// Read is not implemented on non-Linux platforms.
func (r *Relays) Read() ([]bool, error) { return nil, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *Relays) Close() error { return nil }

// LED is not available on non-Linux platforms.
type LED struct{}

// NewLED returns an error on non-Linux platforms.
func NewLED(chip string, pin int, activeLow bool) (*LED, error) {
	return nil, errUnsupported
}

// SetBrightness is not implemented on non-Linux platforms.
func (l *LED) SetBrightness(b uint8) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (l *LED) Close() error { return nil }
