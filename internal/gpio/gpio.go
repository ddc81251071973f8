// Package gpio drives relay outputs and the status LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Outputs writes logical relay states. Index 0 is the first configured pin.
// Polarity is applied by the implementation: on=true always means energised.
type Outputs interface {
	// Write drives output index to the logical state on.
	Write(index int, on bool) error

	// Len returns the number of configured outputs.
	Len() int

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultChip   = "gpiochip0"
	DefaultLEDPin = 18
)

// ledThreshold is the brightness at or above which a binary LED is lit.
const ledThreshold = 128

// Levels converts logical states into line values for n outputs. Entries
// beyond initial are 0.
func Levels(initial []bool, n int) []int {
	out := make([]int, n)
	for i := 0; i < n && i < len(initial); i++ {
		if initial[i] {
			out[i] = 1
		}
	}
	return out
}
