package co2kit

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

const heartbeatFile = "heartbeat"

// FileSink keeps one flat file per metric under a data directory, each
// holding a single newline-terminated value. Files are rewritten in place
// under an exclusive advisory lock so an external reader never observes a
// half-written value.
type FileSink struct {
	dir string
	now func() time.Time
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir, now: time.Now}
}

func (fs *FileSink) Write(r Reading, value string) error {
	name := r.MetricName()
	if name == "" {
		return errors.Errorf("no file mapping for metric code 0x%02x", r.Code)
	}
	return fs.writeLocked(name, value)
}

// Heartbeat stores the current Unix timestamp, updated after every processed
// reading regardless of whether the value changed.
func (fs *FileSink) Heartbeat() error {
	return fs.writeLocked(heartbeatFile, strconv.FormatInt(fs.now().Unix(), 10))
}

func (fs *FileSink) Close() error { return nil }

func (fs *FileSink) String() string { return "file:" + fs.dir }

func (fs *FileSink) writeLocked(name, value string) error {
	path := filepath.Join(fs.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "failed to lock %s", path)
	}
	defer lock.Unlock()

	if err := f.Truncate(0); err != nil {
		return errors.Wrapf(err, "failed to truncate %s", path)
	}
	if _, err := f.WriteString(value + "\n"); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}
