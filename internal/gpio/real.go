//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Relays drives relay outputs on actual hardware using the Linux GPIO character device.
type Relays struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// lineOptions returns the request options for an output line starting at
// logical level v. With activeLow the kernel inverts the physical level, so
// callers always deal in logical values.
func lineOptions(activeLow bool, v int) []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(v)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	return opts
}

// NewRelays requests one output line per pin on the named chip. Each line
// starts at its entry in initial, so outputs restored on do not drop out
// while the daemon starts; missing entries start off.
// Most relay boards are active-low: pulling the pin low energises the coil.
func NewRelays(chip string, pins []int, activeLow bool, initial []bool) (*Relays, error) {
	values := Levels(initial, len(pins))
	return requestRelays(chip, pins, func(i int) []gpiocdev.LineReqOption {
		return lineOptions(activeLow, values[i])
	})
}

// InspectRelays requests the lines as they are, without changing direction
// or level, so Read reports what the relays are currently doing. Write on
// the result is not meaningful.
func InspectRelays(chip string, pins []int, activeLow bool) (*Relays, error) {
	return requestRelays(chip, pins, func(int) []gpiocdev.LineReqOption {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsIs}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		return opts
	})
}

func requestRelays(chip string, pins []int, options func(i int) []gpiocdev.LineReqOption) (*Relays, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &Relays{chip: c}
	for i, pin := range pins {
		line, err := c.RequestLine(pin, options(i)...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request relay %d pin %d: %w", i, pin, err)
		}
		r.lines = append(r.lines, line)
	}
	return r, nil
}

// Write drives relay index to the logical state on.
func (r *Relays) Write(index int, on bool) error {
	if index < 0 || index >= len(r.lines) {
		return fmt.Errorf("relay %d out of range", index)
	}
	v := 0
	if on {
		v = 1
	}
	if err := r.lines[index].SetValue(v); err != nil {
		return fmt.Errorf("set relay %d: %w", index, err)
	}
	return nil
}

// Len returns the number of requested relay lines.
func (r *Relays) Len() int { return len(r.lines) }

// Read returns the current logical level of every relay line.
func (r *Relays) Read() ([]bool, error) {
	out := make([]bool, len(r.lines))
	for i, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read relay %d: %w", i, err)
		}
		out[i] = v == 1
	}
	return out, nil
}

// Close releases the relay lines and the chip. Released lines keep their
// last driven level until another consumer claims them.
func (r *Relays) Close() error {
	var errs []error
	for i, line := range r.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay %d: %w", i, err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	return errors.Join(errs...)
}

// LED is a binary status LED on a single output line. Brightness at or
// above half scale lights it.
type LED struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	lit  bool
}

// NewLED requests the LED line on the named chip, starting dark.
func NewLED(chip string, pin int, activeLow bool) (*LED, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := c.RequestLine(pin, lineOptions(activeLow, 0)...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}
	return &LED{chip: c, line: line}, nil
}

// SetBrightness lights or darkens the LED. Writes that would not change the
// line are skipped; the idle ramp calls this every few milliseconds.
func (l *LED) SetBrightness(b uint8) error {
	lit := b >= ledThreshold
	if lit == l.lit {
		return nil
	}
	v := 0
	if lit {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	l.lit = lit
	return nil
}

// Close turns the LED off and releases it.
func (l *LED) Close() error {
	var errs []error
	if l.line != nil {
		if err := l.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear led: %w", err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
