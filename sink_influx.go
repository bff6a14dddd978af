package co2kit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
)

const (
	defaultInfluxHost = "influxdb"
	defaultInfluxPort = 8086

	influxWriteTimeout = 5 * time.Second
)

// InfluxConfig selects the telemetry sink. A non-empty Database turns the
// sink on; host and port fall back to the conventional local defaults.
type InfluxConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

func (ic InfluxConfig) serverURL() string {
	host := ic.Host
	if host == "" {
		host = defaultInfluxHost
	}
	port := ic.Port
	if port == 0 {
		port = defaultInfluxPort
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// InfluxSink posts one data point per changed reading to an InfluxDB
// endpoint. It talks to 1.8+ servers through the v2 client's compatibility
// mode: username:password as the token, the database name as the bucket.
// Failed writes are dropped; there is no spool or retry.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	url    string
}

func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	token := ""
	if cfg.User != "" {
		token = cfg.User + ":" + cfg.Password
	}
	client := influxdb2.NewClient(cfg.serverURL(), token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking("", cfg.Database),
		url:    cfg.serverURL(),
	}
}

func (is *InfluxSink) Write(r Reading, value string) error {
	fields := map[string]interface{}{}
	switch r.Code {
	case CodeTamb:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "bad temperature value %q", value)
		}
		fields["value"] = v
	case CodeCntR:
		v, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(err, "bad co2 value %q", value)
		}
		fields["value"] = v
	default:
		return errors.Errorf("no measurement mapping for metric code 0x%02x", r.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
	defer cancel()

	point := influxdb2.NewPoint(r.Measurement(), nil, fields, time.Now())
	if err := is.write.WritePoint(ctx, point); err != nil {
		return errors.Wrapf(err, "failed to post %s point to %s", r.Measurement(), is.url)
	}
	return nil
}

// Heartbeat is a no-op: the telemetry backend tracks liveness through the
// points themselves.
func (is *InfluxSink) Heartbeat() error { return nil }

func (is *InfluxSink) Close() error {
	is.client.Close()
	return nil
}

func (is *InfluxSink) String() string { return "influx:" + is.url }
