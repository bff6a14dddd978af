package drivers

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// MockTransport replays a scripted sequence of open results, one entry per
// Open/OpenPath call. A nil entry means the open fails; after the script is
// exhausted every further open fails too.
type MockTransport struct {
	Script []*MockConn

	mu    sync.Mutex
	opens int
	paths []string
}

func (mt *MockTransport) Open() (Conn, error) {
	return mt.next("")
}

func (mt *MockTransport) OpenPath(path string) (Conn, error) {
	return mt.next(path)
}

func (mt *MockTransport) next(path string) (Conn, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	i := mt.opens
	mt.opens++
	mt.paths = append(mt.paths, path)

	if i >= len(mt.Script) || mt.Script[i] == nil {
		return nil, errors.New("mock device open failed")
	}
	return mt.Script[i], nil
}

// OpenCount returns how many opens were attempted so far.
func (mt *MockTransport) OpenCount() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.opens
}

// Paths returns the device paths requested so far, "" for discovery opens.
func (mt *MockTransport) Paths() []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return append([]string{}, mt.paths...)
}

// MockConn feeds scripted frames to a session. After the frames run out,
// ReadFrame blocks on Hold when set, then fails with ReadErr (io.EOF by
// default) so the session sees a transport failure.
type MockConn struct {
	Frames  [][]byte
	ArmErr  error
	ReadErr error
	Hold    chan struct{}

	mu     sync.Mutex
	keys   [][]byte
	reads  int
	closed bool
}

func (mc *MockConn) Arm(key []byte) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.keys = append(mc.keys, append([]byte{}, key...))
	return mc.ArmErr
}

func (mc *MockConn) ReadFrame() ([]byte, error) {
	mc.mu.Lock()
	i := mc.reads
	mc.reads++
	mc.mu.Unlock()

	if i < len(mc.Frames) {
		return mc.Frames[i], nil
	}

	if mc.Hold != nil {
		<-mc.Hold
	}
	if mc.ReadErr != nil {
		return nil, mc.ReadErr
	}
	return nil, io.EOF
}

func (mc *MockConn) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.closed = true
	return nil
}

func (mc *MockConn) Closed() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.closed
}

// ArmedKeys returns the key material received by Arm calls.
func (mc *MockConn) ArmedKeys() [][]byte {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return append([][]byte{}, mc.keys...)
}

// ReadCount returns how many ReadFrame calls happened so far.
func (mc *MockConn) ReadCount() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.reads
}
