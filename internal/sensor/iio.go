package sensor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultIIORoot is where the kernel exposes industrial-I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// IIOSource reads sensors through kernel IIO drivers.
//
// Climate channels use the dht11 driver: Pin selects iio:device<Pin>, which
// reports milli-degrees and milli-percent. Analog channels read
// in_voltage<Pin>_raw on the ADC device (e.g. an MCP3008, 10-bit).
type IIOSource struct {
	Root      string
	ADCDevice int
}

// NewIIOSource returns a source rooted at root.
func NewIIOSource(root string, adcDevice int) *IIOSource {
	return &IIOSource{Root: root, ADCDevice: adcDevice}
}

// ReadClimate reads temperature and humidity. The dht11 driver fails a read
// with EIO when the sensor misses its timing window; a failed half is
// returned as NaN so the other half can still be used.
func (s *IIOSource) ReadClimate(ch Channel) (float64, float64, error) {
	dir := filepath.Join(s.Root, fmt.Sprintf("iio:device%d", ch.Pin))
	temp, terr := readMilli(filepath.Join(dir, "in_temp_input"))
	hum, herr := readMilli(filepath.Join(dir, "in_humidityrelative_input"))
	if terr != nil && herr != nil {
		return 0, 0, fmt.Errorf("read climate pin %d: %w", ch.Pin, terr)
	}
	return temp, hum, nil
}

// ReadAnalog reads the raw ADC value of channel ch.Pin.
func (s *IIOSource) ReadAnalog(ch Channel) (int, error) {
	path := filepath.Join(s.Root, fmt.Sprintf("iio:device%d", s.ADCDevice), fmt.Sprintf("in_voltage%d_raw", ch.Pin))
	raw, err := readInt(path)
	if err != nil {
		return 0, fmt.Errorf("read analog pin %d: %w", ch.Pin, err)
	}
	return raw, nil
}

// readMilli returns the value at path divided by 1000, or NaN and an error.
func readMilli(path string) (float64, error) {
	v, err := readInt(path)
	if err != nil {
		return math.NaN(), err
	}
	return float64(v) / 1000, nil
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
