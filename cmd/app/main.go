package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/hubertat/servicemaker"

	"github.com/co2kit/co2kit"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "", "path of the JSON configuration file")
	flagInstall = flag.Bool("install", false, "install service in os")

	flagDaemon  = flag.Bool("daemon", false, "run detached: suppress console echo, require a sink")
	flagUnknown = flag.Bool("unknown", false, "print values for unknown metric codes")
	flagDataDir = flag.String("datadir", "", "store values from the sensor in this directory")
	flagDevice  = flag.String("device", "", "path to the sensor device (e.g. /dev/hidraw0)")
	flagPidFile = flag.String("pidfile", "", "write PID to this file")
	flagLogFile = flag.String("logfile", "", "write diagnostic output to this file")
	flagDB      = flag.String("influx-db", "", "InfluxDB database (needed to turn on telemetry delivery)")

	service = servicemaker.ServiceMaker{
		User:               "co2kit",
		ServicePath:        "/etc/systemd/system/co2kit.service",
		ServiceDescription: "co2kit service: CO2/temperature sensor collector",
		ExecDir:            "/srv/co2kit",
		ExecName:           "co2kit",
	}
)

func fatalUsage(err error) {
	fmt.Fprintf(os.Stderr, "co2kit: %v\n\n", err)
	flag.Usage()
	os.Exit(1)
}

func main() {
	log.Printf("co2kit %s started", Version)
	flag.Parse()

	if *flagInstall {
		err := service.InstallService()
		if err != nil {
			log.Fatal("service install failed", "err", err)
		}
		log.Print("service installed!")
		return
	}

	kit := &co2kit.Kit{}
	if *config != "" {
		configFile, err := os.Open(*config)
		if err != nil {
			log.Fatalf("can't find/open config file (%s), will terminate. Reason: \n%v", *config, err)
		}
		cBuff, err := io.ReadAll(configFile)
		configFile.Close()
		if err != nil {
			log.Fatalf("failed reading config file: %v", err)
		}
		if err := json.Unmarshal(cBuff, kit); err != nil {
			log.Fatalf("failed unmarshalling json config: %v", err)
		}
	}

	applyFlagOverrides(kit)

	if err := kit.Validate(); err != nil {
		fatalUsage(err)
	}

	if kit.LogFile != "" {
		f, err := os.OpenFile(kit.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("can't open logfile %s: %v", kit.LogFile, err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if kit.PidFile != "" {
		if err := writePidFile(kit.PidFile); err != nil {
			log.Fatal("failed to write pidfile", "err", err)
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		signal.Stop(c)
		cancel()
	}()

	if err := kit.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("collector stopped", "err", err)
	}
	log.Print("co2kit stopped")
}

func applyFlagOverrides(kit *co2kit.Kit) {
	if *flagDaemon {
		kit.Daemon = true
	}
	if *flagUnknown {
		kit.PrintUnknown = true
	}
	if *flagDataDir != "" {
		kit.DataDir = *flagDataDir
	}
	if *flagDevice != "" {
		kit.Device = *flagDevice
	}
	if *flagLogFile != "" {
		kit.LogFile = *flagLogFile
	}
	if *flagPidFile != "" {
		kit.PidFile = *flagPidFile
	}
	if *flagDB != "" {
		if kit.Influx == nil {
			kit.Influx = &co2kit.InfluxConfig{}
		}
		kit.Influx.Database = *flagDB
	}
}

// writePidFile rewrites the pidfile under the same advisory lock discipline
// the file sink uses, so monitoring tools never read a torn value.
func writePidFile(path string) error {
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0666)
}
