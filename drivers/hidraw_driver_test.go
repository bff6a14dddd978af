package drivers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// scramble applies the inverse of descramble, reproducing what an
// encrypting-firmware device puts on the wire for a given plain frame.
func scramble(key [keyLen]byte, plain []byte) []byte {
	phrase := [frameLen]byte{'H', 't', 'e', 'm', 'p', '9', '9', 'e'}
	shuffle := [frameLen]byte{2, 4, 0, 7, 1, 6, 5, 3}

	var phase3, phase2, phase1, data [frameLen]byte

	for i := range plain {
		tmp := (phrase[i] >> 4) | (phrase[i] << 4)
		phase3[i] = plain[i] + tmp
	}
	for i := range phase3 {
		phase2[i] = (phase3[i] << 3) | (phase3[(i+1)%frameLen] >> 5)
	}
	for i := range phase2 {
		phase1[i] = phase2[i] ^ key[i]
	}
	for i, pos := range shuffle {
		data[i] = phase1[pos]
	}

	return data[:]
}

func TestDescrambleRoundTrip(t *testing.T) {
	// CntR frame carrying raw 412 with a valid checksum
	plain := []byte{0x50, 0x01, 0x9c, 0xed, 0x0d, 0x00, 0x00, 0x00}

	keys := [][keyLen]byte{
		{},
		{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	}

	for _, key := range keys {
		wire := scramble(key, plain)
		got := descramble(key, wire)
		if !bytes.Equal(got, plain) {
			t.Errorf("key %x: got % x, want % x", key, got, plain)
		}
	}
}

func TestMatchUevent(t *testing.T) {
	writeUevent := func(content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "uevent")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	sensor := writeUevent("DRIVER=hid-generic\nHID_ID=0003:000004D9:0000A052\nHID_NAME=USB-zyTemp\n")
	if !matchUevent(sensor) {
		t.Error("sensor uevent not matched")
	}

	keyboard := writeUevent("DRIVER=hid-generic\nHID_ID=0003:0000046D:0000C31C\n")
	if matchUevent(keyboard) {
		t.Error("foreign device matched")
	}

	empty := writeUevent("DRIVER=hid-generic\n")
	if matchUevent(empty) {
		t.Error("uevent without HID_ID matched")
	}

	if matchUevent(filepath.Join(t.TempDir(), "missing")) {
		t.Error("missing uevent matched")
	}
}
