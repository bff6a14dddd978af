package co2kit

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/co2kit/co2kit/drivers"
)

// ReadingObserver is notified of every accepted reading, changed or not.
// Observers are purely informational; they never influence dispatch or the
// dedup cache.
type ReadingObserver interface {
	Observe(Reading)
}

// Session drives one open device: arms it, pulls frames, decodes them and
// forwards changed values to the sink. It owns the dedup cache for its
// lifetime and exits only on transport failure or cancellation.
type Session struct {
	Cache  *Cache
	Sink   Sink
	Logger *log.Logger

	// Echo receives a console line for every accepted reading. Left nil when
	// the process runs detached.
	Echo io.Writer

	// PrintUnknown enables diagnostic output for unrecognized metric codes.
	PrintUnknown bool

	// Key is the init payload sent to the device before reading.
	Key []byte

	Observer ReadingObserver

	seen map[byte]uint16
}

// Run arms the device and processes frames until the transport fails or ctx
// is cancelled. The blocking device read runs in its own goroutine so a
// cancelled context ends the session without waiting for the next frame; the
// reader goroutine unblocks once the caller closes the device.
func (s *Session) Run(ctx context.Context, conn drivers.Conn) error {
	if s.seen == nil {
		s.seen = make(map[byte]uint16)
	}

	if err := conn.Arm(s.Key); err != nil {
		s.Logger.Error("unable to send magic table to CO2 device", "err", err)
		return errors.Wrap(err, "failed to arm device")
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		for {
			buf, err := conn.ReadFrame()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- buf:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			s.Logger.Error("error while reading data from device", "err", err)
			return errors.Wrap(err, "device read failed")
		case buf := <-frames:
			s.handle(buf)
		}
	}
}

// handle runs one frame through decode, range filter, dedup and dispatch.
// Frame-level problems are logged and skipped; a single bad frame is never
// fatal to the session.
func (s *Session) handle(buf []byte) {
	r, err := DecodeFrame(buf)
	if err != nil {
		s.Logger.Error(err.Error())
		return
	}

	if !r.Recognized() {
		if s.PrintUnknown && s.Echo != nil {
			fmt.Fprintf(s.Echo, "0x%02x\t%d\n", r.Code, r.Raw)
		}
		s.seen[r.Code] = r.Raw
		return
	}

	if r.Code == CodeCntR && r.CO2() > co2Ceiling {
		// Spurious value, most likely uninitialized sensor memory.
		return
	}

	value := r.FormatValue()

	if s.Echo != nil {
		fmt.Fprintf(s.Echo, "%s\t%s\n", r.MetricName(), value)
	}

	if s.Observer != nil {
		s.Observer.Observe(r)
	}

	if s.Cache.Changed(r.Code, r.Raw) {
		if err := s.Sink.Write(r, value); err != nil {
			// Reading dropped, cache left alone so the next identical
			// reading is attempted again.
			s.Logger.Error("sink write failed", "metric", r.MetricName(), "err", err)
		} else {
			s.Cache.Commit(r.Code, r.Raw)
		}
	}

	if err := s.Sink.Heartbeat(); err != nil {
		s.Logger.Error("heartbeat write failed", "err", err)
	}
}

// LastSeen returns the shadow value recorded for an unrecognized metric
// code. Diagnostic only; shadow values are never dispatched to a sink.
func (s *Session) LastSeen(code byte) (uint16, bool) {
	raw, ok := s.seen[code]
	return raw, ok
}
