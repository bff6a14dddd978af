package co2kit

import "testing"

func TestCacheEmpty(t *testing.T) {
	c := NewCache()

	if _, ok := c.Get(CodeTamb); ok {
		t.Error("fresh cache reports a value")
	}
	if !c.Changed(CodeTamb, 100) {
		t.Error("fresh cache suppresses a first reading")
	}
}

func TestCacheCommit(t *testing.T) {
	c := NewCache()
	c.Commit(CodeCntR, 412)

	raw, ok := c.Get(CodeCntR)
	if !ok || raw != 412 {
		t.Errorf("got (%d, %v), want (412, true)", raw, ok)
	}

	if c.Changed(CodeCntR, 412) {
		t.Error("identical value reported as changed")
	}
	if !c.Changed(CodeCntR, 413) {
		t.Error("different value not reported as changed")
	}
}

func TestCacheZeroValueIsDispatched(t *testing.T) {
	// a first reading of raw 0 must not be mistaken for "unchanged"
	c := NewCache()

	if !c.Changed(CodeCntR, 0) {
		t.Error("first raw-0 reading suppressed")
	}

	c.Commit(CodeCntR, 0)
	if c.Changed(CodeCntR, 0) {
		t.Error("committed raw-0 reading reported as changed")
	}
}

func TestCacheSlotsIndependent(t *testing.T) {
	c := NewCache()
	c.Commit(CodeTamb, 4218)

	if _, ok := c.Get(CodeCntR); ok {
		t.Error("commit leaked into another code's slot")
	}
}
