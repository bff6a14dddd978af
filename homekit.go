package co2kit

import (
	"context"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/pkg/errors"
)

const (
	defaultHomeKitDirectory = "./homekit"
	homeKitBridgeName       = "co2kit"

	// CO2 concentration above which the HomeKit sensor reports the
	// "abnormal level" state, overridable per config.
	defaultCO2AlarmLevel = 1400
)

type HomeKitConfig struct {
	Pin       string
	Directory string
	Address   string

	CO2AlarmLevel int
}

// HomeKitBridge mirrors the collector's accepted readings into HomeKit as a
// thermometer and a carbon dioxide sensor. It observes the session; it is
// never a sink and never touches the dedup cache.
type HomeKitBridge struct {
	cfg HomeKitConfig

	thermometer *accessory.Thermometer
	co2         *accessory.A
	co2Sensor   *service.CarbonDioxideSensor
	co2Level    *characteristic.CarbonDioxideLevel
}

func NewHomeKitBridge(cfg HomeKitConfig) (*HomeKitBridge, error) {
	if len(cfg.Pin) != 8 {
		return nil, errors.Errorf("HomeKit pin must be 8 digits, got %d characters", len(cfg.Pin))
	}
	if cfg.CO2AlarmLevel == 0 {
		cfg.CO2AlarmLevel = defaultCO2AlarmLevel
	}

	bridge := &HomeKitBridge{cfg: cfg}

	bridge.thermometer = accessory.NewTemperatureSensor(accessory.Info{
		Name:         "Ambient Temperature",
		SerialNumber: "co2kit:tamb",
	})
	bridge.thermometer.Id = 2

	bridge.co2 = accessory.New(accessory.Info{
		Name:         "CO2 Concentration",
		SerialNumber: "co2kit:cntr",
	}, accessory.TypeSensor)
	bridge.co2.Id = 3

	bridge.co2Sensor = service.NewCarbonDioxideSensor()
	bridge.co2Level = characteristic.NewCarbonDioxideLevel()
	bridge.co2Sensor.AddC(bridge.co2Level.C)
	bridge.co2.AddS(bridge.co2Sensor.S)

	return bridge, nil
}

// Observe feeds one accepted reading into the HomeKit characteristics.
func (b *HomeKitBridge) Observe(r Reading) {
	switch r.Code {
	case CodeTamb:
		b.thermometer.TempSensor.CurrentTemperature.SetValue(r.Temperature())
	case CodeCntR:
		b.co2Level.SetValue(float64(r.CO2()))
		if r.CO2() >= b.cfg.CO2AlarmLevel {
			b.co2Sensor.CarbonDioxideDetected.SetValue(1)
		} else {
			b.co2Sensor.CarbonDioxideDetected.SetValue(0)
		}
	}
}

// Serve runs the HomeKit accessory server until ctx is cancelled.
func (b *HomeKitBridge) Serve(ctx context.Context) error {
	bridge := accessory.NewBridge(accessory.Info{
		Name:         homeKitBridgeName,
		Manufacturer: "co2kit",
	})

	dir := b.cfg.Directory
	if dir == "" {
		dir = defaultHomeKitDirectory
	}

	server, err := hap.NewServer(hap.NewFsStore(dir), bridge.A, b.thermometer.A, b.co2)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	server.Pin = b.cfg.Pin
	if b.cfg.Address != "" {
		server.Addr = b.cfg.Address
	}

	return server.ListenAndServe(ctx)
}
