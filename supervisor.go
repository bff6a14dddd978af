package co2kit

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/co2kit/co2kit/drivers"
)

const defaultRetryInterval = time.Second

// Supervisor owns the device lifecycle: open, run a session to completion,
// release, reconnect. Open failures are retried indefinitely with a fixed
// interval, logging "unable to open" once per consecutive failure streak
// rather than once per attempt. It returns only when ctx is cancelled.
type Supervisor struct {
	Transport  drivers.Transport
	DevicePath string
	Session    *Session
	Logger     *log.Logger

	// Retry is the pause between failed open attempts, defaultRetryInterval
	// when zero.
	Retry time.Duration
}

func (sv *Supervisor) Run(ctx context.Context) error {
	retry := sv.Retry
	if retry == 0 {
		retry = defaultRetryInterval
	}

	errorShown := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := sv.open()
		if err != nil {
			if !errorShown {
				sv.Logger.Error("unable to open CO2 device", "err", err)
				errorShown = true
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry):
			}
			continue
		}
		errorShown = false

		// Session failures are logged inside the session; here they just
		// mean the device must be reopened.
		sv.Session.Run(ctx, conn)
		conn.Close()
	}
}

func (sv *Supervisor) open() (drivers.Conn, error) {
	if sv.DevicePath != "" {
		return sv.Transport.OpenPath(sv.DevicePath)
	}
	return sv.Transport.Open()
}
