package co2kit

import (
	"fmt"

	"github.com/pkg/errors"
)

// Metric codes reported by the sensor. Anything else is surfaced as an
// unknown reading and never forwarded to a sink.
const (
	CodeTamb byte = 0x42 // ambient temperature
	CodeCntR byte = 0x50 // relative CO2 concentration
)

const (
	frameMinLen   = 5
	frameSentinel = 0x0d

	// Readings above this are spurious (uninitialized sensor memory) and
	// are dropped before they reach the cache or a sink.
	co2Ceiling = 3000
)

// Reading is one decoded sensor value: the metric code and the raw 16-bit
// quantity carried in the frame, before any unit conversion.
type Reading struct {
	Code byte
	Raw  uint16
}

// DecodeFrame validates a raw device frame and extracts the reading from it.
// A frame is at least five bytes: {code, hi, lo, checksum, sentinel}, where
// the checksum is 8-bit wraparound addition of the first three bytes and the
// sentinel byte must be 0x0d.
func DecodeFrame(buf []byte) (Reading, error) {
	if len(buf) < frameMinLen {
		return Reading{}, errors.Errorf("short frame from device (%d bytes, want at least %d)", len(buf), frameMinLen)
	}
	if buf[4] != frameSentinel {
		return Reading{}, errors.Errorf("unexpected data from device (data[4] = %02x, want 0x0d)", buf[4])
	}
	checksum := buf[0] + buf[1] + buf[2]
	if checksum != buf[3] {
		return Reading{}, errors.Errorf("checksum error (%02x, await %02x)", checksum, buf[3])
	}

	return Reading{
		Code: buf[0],
		Raw:  uint16(buf[1])<<8 | uint16(buf[2]),
	}, nil
}

// Recognized reports whether the reading carries a metric this collector
// knows how to decode and forward.
func (r Reading) Recognized() bool {
	return r.Code == CodeTamb || r.Code == CodeCntR
}

// Temperature converts the raw value to degrees Celsius. Only meaningful
// for CodeTamb readings.
func (r Reading) Temperature() float64 {
	return float64(r.Raw)*0.0625 - 273.15
}

// CO2 returns the concentration in ppm. Only meaningful for CodeCntR readings.
func (r Reading) CO2() int {
	return int(r.Raw)
}

// FormatValue renders the reading the way it is written to sinks and echoed
// to the console: temperature with four decimal places, CO2 as an integer.
// Unknown codes format as their raw value.
func (r Reading) FormatValue() string {
	switch r.Code {
	case CodeTamb:
		return fmt.Sprintf("%.4f", r.Temperature())
	case CodeCntR:
		return fmt.Sprintf("%d", r.CO2())
	}
	return fmt.Sprintf("%d", r.Raw)
}

// MetricName is the per-metric file name used by the file sink.
func (r Reading) MetricName() string {
	switch r.Code {
	case CodeTamb:
		return "Tamb"
	case CodeCntR:
		return "CntR"
	}
	return ""
}

// Measurement is the telemetry measurement name for the reading.
func (r Reading) Measurement() string {
	switch r.Code {
	case CodeTamb:
		return "temp"
	case CodeCntR:
		return "co2"
	}
	return ""
}
