// Package co2kit is a collector daemon for a USB CO2/temperature sensor.
// It polls the device for frames, validates and decodes them, and forwards
// changed values to flat per-metric files or an InfluxDB telemetry backend.
package co2kit

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/co2kit/co2kit/drivers"
)

// Kit is the collector configuration root, unmarshalled straight from the
// JSON config file. Zero value runs in console-echo mode: no sink, no
// HomeKit, device found by discovery.
type Kit struct {
	// Daemon marks the process as running detached: console echo is
	// suppressed and a sink destination becomes mandatory.
	Daemon bool

	// PrintUnknown echoes readings with unrecognized metric codes.
	PrintUnknown bool

	// DataDir enables the file sink.
	DataDir string

	// Device is an explicit device node path (e.g. /dev/hidraw0); empty
	// means discovery by vendor/product id.
	Device string

	// DeviceKey is hex-encoded init key material for the device, all-zero
	// when empty.
	DeviceKey string

	PidFile string
	LogFile string

	// Influx enables the telemetry sink when its Database is set; the file
	// sink and the heartbeat are disabled then.
	Influx *InfluxConfig

	// HomeKit exposes current readings as HomeKit accessories when its Pin
	// is set.
	HomeKit *HomeKitConfig

	// RetryInterval is the pause between device open attempts, parsed as a
	// time.Duration string. Default one second.
	RetryInterval string
}

func (k *Kit) telemetryActive() bool {
	return k.Influx != nil && k.Influx.Database != ""
}

// Validate checks the configuration surface before anything starts. Errors
// here are fatal: the process should exit with a usage message.
func (k *Kit) Validate() error {
	if k.Daemon && k.DataDir == "" && !k.telemetryActive() {
		return errors.New("daemon mode without a data directory or telemetry database produces no output")
	}

	if k.DataDir != "" {
		abs, err := filepath.Abs(k.DataDir)
		if err != nil {
			return errors.Wrapf(err, "bad data directory %s", k.DataDir)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return errors.Wrapf(err, "bad data directory %s", k.DataDir)
		}
		if !info.IsDir() {
			return errors.Errorf("data directory %s is not a directory", k.DataDir)
		}
		k.DataDir = abs
	}

	if k.DeviceKey != "" {
		key, err := hex.DecodeString(k.DeviceKey)
		if err != nil {
			return errors.Wrap(err, "bad device key")
		}
		if len(key) > 8 {
			return errors.Errorf("device key too long (%d bytes, want at most 8)", len(key))
		}
	}

	if k.HomeKit != nil && len(k.HomeKit.Pin) != 8 {
		return errors.New("HomeKit pin must be 8 digits")
	}

	if k.RetryInterval != "" {
		if _, err := time.ParseDuration(k.RetryInterval); err != nil {
			return errors.Wrap(err, "bad retry interval")
		}
	}

	return nil
}

// buildSink picks the single sink for the process lifetime: telemetry wins
// over files, and with neither configured values are only echoed.
func (k *Kit) buildSink() Sink {
	if k.telemetryActive() {
		return NewInfluxSink(*k.Influx)
	}
	if k.DataDir != "" {
		return NewFileSink(k.DataDir)
	}
	return discardSink{}
}

func (k *Kit) deviceKey() []byte {
	key := make([]byte, 8)
	if k.DeviceKey != "" {
		decoded, err := hex.DecodeString(k.DeviceKey)
		if err == nil {
			copy(key, decoded)
		}
	}
	return key
}

func (k *Kit) retryInterval() time.Duration {
	if k.RetryInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(k.RetryInterval)
	if err != nil {
		return 0
	}
	return d
}

// Run wires the supervisor, session, sink and optional HomeKit bridge
// together and blocks until ctx is cancelled. Validate must have passed.
func (k *Kit) Run(ctx context.Context) error {
	logger := log.Default()

	sink := k.buildSink()
	defer sink.Close()
	logger.Info("sink selected", "sink", sink.String())

	var echo io.Writer
	if !k.Daemon {
		echo = os.Stdout
	}

	session := &Session{
		Cache:        NewCache(),
		Sink:         sink,
		Logger:       logger,
		Echo:         echo,
		PrintUnknown: k.PrintUnknown,
		Key:          k.deviceKey(),
	}

	if k.HomeKit != nil {
		bridge, err := NewHomeKitBridge(*k.HomeKit)
		if err != nil {
			return errors.Wrap(err, "failed to set up HomeKit")
		}
		session.Observer = bridge
		go func() {
			if err := bridge.Serve(ctx); err != nil && ctx.Err() == nil {
				logger.Error("HomeKit server stopped", "err", err)
			}
		}()
	}

	supervisor := &Supervisor{
		Transport:  &drivers.HidRaw{},
		DevicePath: k.Device,
		Session:    session,
		Logger:     logger,
		Retry:      k.retryInterval(),
	}

	return supervisor.Run(ctx)
}
