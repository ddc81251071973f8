package gpio

import "fmt"

// OutputWrite records one physical write made through FakeOutputs.
type OutputWrite struct {
	Index int
	On    bool
}

// FakeOutputs is a test double that records relay writes.
type FakeOutputs struct {
	// States holds the current logical level of each output.
	States []bool

	// Writes contains every successful write, in order.
	Writes []OutputWrite

	// WriteError, if set, will be returned by Write().
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutputs creates n outputs, all off.
func NewFakeOutputs(n int) *FakeOutputs {
	return &FakeOutputs{States: make([]bool, n)}
}

// Write records the write and updates States.
func (f *FakeOutputs) Write(index int, on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if index < 0 || index >= len(f.States) {
		return fmt.Errorf("output %d out of range", index)
	}
	f.States[index] = on
	f.Writes = append(f.Writes, OutputWrite{Index: index, On: on})
	return nil
}

// Len returns the number of outputs.
func (f *FakeOutputs) Len() int { return len(f.States) }

// Close marks the outputs as closed.
func (f *FakeOutputs) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes and restores all outputs to off.
func (f *FakeOutputs) Reset() {
	for i := range f.States {
		f.States[i] = false
	}
	f.Writes = nil
	f.WriteError = nil
	f.Closed = false
}

// FakeLED records brightness writes.
type FakeLED struct {
	Writes     []uint8
	WriteError error
	Closed     bool
}

// NewFakeLED creates a FakeLED.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// SetBrightness records b.
func (f *FakeLED) SetBrightness(b uint8) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, b)
	return nil
}

// Last returns the most recent brightness, or 0 if nothing was written.
func (f *FakeLED) Last() uint8 {
	if len(f.Writes) == 0 {
		return 0
	}
	return f.Writes[len(f.Writes)-1]
}

// Lit reports whether a binary LED would currently be on.
func (f *FakeLED) Lit() bool {
	return f.Last() >= ledThreshold
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.Closed = true
	return nil
}
