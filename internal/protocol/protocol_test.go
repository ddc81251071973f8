package protocol

import (
	"errors"
	"testing"
)

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"relay","index":0,"state":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != NewRelay(0, true) {
		t.Errorf("got %+v", cmd)
	}
}

func TestDecodeCommandErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"malformed", `{"type":`, nil},
		{"unknown type", `{"type":"status","state":"ON"}`, ErrUnknownType},
		{"unknown type with numeric index", `{"type":"sensor","index":"3","state":1}`, ErrUnknownType},
		{"relay with string state", `{"type":"relay","index":0,"state":"ON"}`, nil},
		{"type is not a string", `{"type":7,"index":0,"state":true}`, nil},
		{"missing type", `{"index":0,"state":true}`, ErrUnknownType},
		{"missing index", `{"type":"relay","state":true}`, nil},
		{"missing state", `{"type":"relay","index":1}`, nil},
		{"negative index", `{"type":"relay","index":-1,"state":true}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRelayEncode(t *testing.T) {
	data, err := NewRelay(2, false).Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"type":"relay","index":2,"state":false}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSensorReadingOmitsOtherKinds(t *testing.T) {
	tests := []struct {
		name string
		msg  SensorReading
		want string
	}{
		{
			"climate",
			SensorReading{Sensor: 0, Type: 1, Temperature: Float(21.5), Humidity: Float(40)},
			`{"sensor":0,"type":1,"temperature":21.5,"humidity":40}`,
		},
		{
			"light",
			SensorReading{Sensor: 1, Type: 2, Light: Float(50)},
			`{"sensor":1,"type":2,"light":50}`,
		},
		{
			"moisture",
			SensorReading{Sensor: 2, Type: 3, Moisture: Float(0)},
			`{"sensor":2,"type":3,"moisture":0}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.msg.Encode()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}
