package drivers

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Holtek USB-zyTemp, the chip inside the CO2 monitor.
const (
	hidVendorID  = "04D9"
	hidProductID = "A052"
)

const (
	sysHidRaw = "/sys/class/hidraw"
	devDir    = "/dev"

	frameLen  = 8
	keyLen    = 8
	reportLen = keyLen + 1 // report ID byte + key

	// HIDIOCSFEATURE(reportLen): _IOC(_IOC_READ|_IOC_WRITE, 'H', 0x06, len)
	hidIocSFeature = (3 << 30) | (reportLen << 16) | ('H' << 8) | 0x06
)

// HidRaw opens the sensor through the Linux hidraw interface. Discovery scans
// the hidraw class for the known vendor/product pair, so no udev rule or
// explicit path is required on a typical setup.
type HidRaw struct{}

func (h *HidRaw) Open() (Conn, error) {
	path, err := discover()
	if err != nil {
		return nil, err
	}
	return h.OpenPath(path)
}

func (h *HidRaw) OpenPath(path string) (Conn, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open device %s", path)
	}
	return &hidConn{fd: fd, path: path}, nil
}

// discover walks /sys/class/hidraw and matches each device's HID_ID against
// the sensor's vendor/product pair.
func discover() (string, error) {
	entries, err := os.ReadDir(sysHidRaw)
	if err != nil {
		return "", errors.Wrap(err, "failed to scan hidraw devices")
	}

	for _, entry := range entries {
		uevent := filepath.Join(sysHidRaw, entry.Name(), "device", "uevent")
		if matchUevent(uevent) {
			return filepath.Join(devDir, entry.Name()), nil
		}
	}

	return "", errors.Errorf("no %s:%s sensor found under %s", hidVendorID, hidProductID, sysHidRaw)
}

func matchUevent(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := scan.Text()
		if !strings.HasPrefix(line, "HID_ID=") {
			continue
		}
		id := strings.ToUpper(line)
		return strings.Contains(id, ":0000"+hidVendorID+":") &&
			strings.HasSuffix(id, ":0000"+hidProductID)
	}
	return false
}

type hidConn struct {
	fd   int
	path string
	key  [keyLen]byte
}

// Arm sends the key material to the device as a feature report, which makes
// it start streaming frames. The key is retained for descrambling frames
// from devices with encrypting firmware.
func (c *hidConn) Arm(key []byte) error {
	copy(c.key[:], key)

	report := make([]byte, reportLen)
	copy(report[1:], c.key[:])

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), uintptr(hidIocSFeature), uintptr(unsafe.Pointer(&report[0])))
	if errno != 0 {
		return errors.Wrapf(errno, "failed to send feature report to %s", c.path)
	}
	return nil
}

// ReadFrame blocks until the device delivers the next 8-byte report.
// Firmware newer than 2015 sends frames in the clear; older firmware
// scrambles them with the key, recognizable by a misplaced sentinel byte.
func (c *hidConn) ReadFrame() ([]byte, error) {
	buf := make([]byte, frameLen)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read from %s", c.path)
	}
	if n <= 0 {
		return nil, errors.Errorf("empty read from %s", c.path)
	}
	buf = buf[:n]

	if n == frameLen && buf[4] != 0x0d {
		return descramble(c.key, buf), nil
	}
	return buf, nil
}

func (c *hidConn) Close() error {
	return unix.Close(c.fd)
}

// descramble undoes the obfuscation applied by older sensor firmware:
// a fixed byte shuffle, XOR with the key, a 3-bit rotate across the frame,
// and subtraction of a nibble-swapped fixed phrase.
func descramble(key [keyLen]byte, data []byte) []byte {
	phrase := [frameLen]byte{'H', 't', 'e', 'm', 'p', '9', '9', 'e'}
	shuffle := [frameLen]byte{2, 4, 0, 7, 1, 6, 5, 3}

	var phase1, phase2, phase3, result [frameLen]byte

	for i, pos := range shuffle {
		phase1[pos] = data[i]
	}
	for i := range phase1 {
		phase2[i] = phase1[i] ^ key[i]
	}
	for i := range phase2 {
		phase3[i] = (phase2[i] >> 3) | (phase2[(i+frameLen-1)%frameLen] << 5)
	}
	for i := range phase3 {
		tmp := (phrase[i] >> 4) | (phrase[i] << 4)
		result[i] = phase3[i] - tmp
	}

	return result[:]
}
