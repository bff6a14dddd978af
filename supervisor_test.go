package co2kit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/co2kit/co2kit/drivers"
)

func newTestSupervisor(transport drivers.Transport) (*Supervisor, *bytes.Buffer) {
	logBuf := &bytes.Buffer{}
	logger := log.New(logBuf)
	return &Supervisor{
		Transport: transport,
		Session: &Session{
			Cache:  NewCache(),
			Sink:   &countingSink{},
			Logger: logger,
			Key:    make([]byte, 8),
		},
		Logger: logger,
		Retry:  time.Millisecond,
	}, logBuf
}

func waitForOpens(t *testing.T, transport *drivers.MockTransport, want int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return transport.OpenCount() >= want
	}, 2*time.Second, time.Millisecond, "supervisor never reached %d open attempts", want)
}

func TestSupervisorLogsOncePerFailureStreak(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	// three open failures, then a device that blocks until the test ends
	transport := &drivers.MockTransport{Script: []*drivers.MockConn{
		nil, nil, nil,
		{Hold: hold},
	}}
	sv, logBuf := newTestSupervisor(transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sv.Run(ctx)
	}()

	waitForOpens(t, transport, 4)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, 1, strings.Count(logBuf.String(), "unable to open CO2 device"),
		"a failure streak must be logged exactly once")
}

func TestSupervisorLogsEachNewStreak(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	// streak of one failure, a session that ends at once, a second streak,
	// then a device that blocks
	transport := &drivers.MockTransport{Script: []*drivers.MockConn{
		nil,
		{},
		nil,
		{Hold: hold},
	}}
	sv, logBuf := newTestSupervisor(transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sv.Run(ctx)
	}()

	waitForOpens(t, transport, 4)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, 2, strings.Count(logBuf.String(), "unable to open CO2 device"),
		"each new failure streak must be logged")
}

func TestSupervisorReleasesDeviceAfterSession(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	first := &drivers.MockConn{}
	transport := &drivers.MockTransport{Script: []*drivers.MockConn{
		first,
		{Hold: hold},
	}}
	sv, _ := newTestSupervisor(transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sv.Run(ctx)
	}()

	waitForOpens(t, transport, 2)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.True(t, first.Closed(), "device must be released after the session ends")
}

func TestSupervisorOpensByPathWhenConfigured(t *testing.T) {
	transport := &drivers.MockTransport{}
	sv, _ := newTestSupervisor(transport)
	sv.DevicePath = "/dev/hidraw3"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sv.Run(ctx)
	}()

	waitForOpens(t, transport, 2)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	for _, path := range transport.Paths() {
		require.Equal(t, "/dev/hidraw3", path)
	}
}
