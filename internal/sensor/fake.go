package sensor

import "errors"

// ClimateSample is one scripted climate read.
type ClimateSample struct {
	Temperature float64
	Humidity    float64
	Err         error
}

// AnalogSample is one scripted analog read.
type AnalogSample struct {
	Raw int
	Err error
}

// FakeSource returns scripted values keyed by channel pin. Each read consumes
// the next sample for that pin; the last sample repeats once exhausted.
type FakeSource struct {
	Climate map[int][]ClimateSample
	Analog  map[int][]AnalogSample

	climateIdx map[int]int
	analogIdx  map[int]int
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Climate:    make(map[int][]ClimateSample),
		Analog:     make(map[int][]AnalogSample),
		climateIdx: make(map[int]int),
		analogIdx:  make(map[int]int),
	}
}

// ReadClimate returns the next scripted climate sample for ch.Pin.
func (f *FakeSource) ReadClimate(ch Channel) (float64, float64, error) {
	samples := f.Climate[ch.Pin]
	if len(samples) == 0 {
		return 0, 0, errors.New("no climate samples configured")
	}
	i := f.climateIdx[ch.Pin]
	if i < len(samples)-1 {
		f.climateIdx[ch.Pin] = i + 1
	}
	s := samples[i]
	return s.Temperature, s.Humidity, s.Err
}

// ReadAnalog returns the next scripted analog sample for ch.Pin.
func (f *FakeSource) ReadAnalog(ch Channel) (int, error) {
	samples := f.Analog[ch.Pin]
	if len(samples) == 0 {
		return 0, errors.New("no analog samples configured")
	}
	i := f.analogIdx[ch.Pin]
	if i < len(samples)-1 {
		f.analogIdx[ch.Pin] = i + 1
	}
	s := samples[i]
	return s.Raw, s.Err
}
