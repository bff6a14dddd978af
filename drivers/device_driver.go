// Package drivers contains the low-level device transports the collector
// reads sensor frames from. The core treats every transport failure the same
// way: release the device and let the supervisor reconnect.
package drivers

// Transport opens sensor devices, either by scanning the system for a known
// sensor or by an explicit device node path.
type Transport interface {
	Open() (Conn, error)
	OpenPath(path string) (Conn, error)
}

// Conn is one open device. Arm must be called once with the key material the
// device needs before it starts streaming; afterwards ReadFrame blocks until
// the next raw frame arrives or the transport fails.
type Conn interface {
	Arm(key []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}
