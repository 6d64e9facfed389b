package engine

import (
	"path/filepath"
	"strings"
	"testing"
)

func openTest(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return e
}

func TestSetThenGet(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	if err := e.Set("key1", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := e.Get("key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected key1 to be present")
	}
	if value != "value1" {
		t.Errorf("expected value1, got %s", value)
	}
}

func TestOverwriteValue(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	if err := e.Set("key1", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := e.Set("key1", "value2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := e.Get("key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "value2" {
		t.Errorf("expected value2, got %q (ok=%v)", value, ok)
	}
}

func TestGetAbsentKey(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	_, ok, err := e.Get("missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Errorf("expected missing key to be absent")
	}
}

func TestRemoveKey(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	if err := e.Set("key1", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := e.Remove("key1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	_, ok, err := e.Get("key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Errorf("expected key1 to be gone after Remove")
	}
}

func TestRemoveAbsentKey(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	err := e.Remove("missing")
	if err == nil {
		t.Fatalf("expected error removing absent key")
	}
	if !strings.Contains(err.Error(), "Key not found") {
		t.Errorf("expected 'Key not found' error, got %v", err)
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	e := openTest(t, dir)
	if err := e.Set("key1", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := e.Set("key2", "value2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := e.Remove("key1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if _, ok, _ := reopened.Get("key1"); ok {
		t.Errorf("expected key1 to stay removed across reopen")
	}
	value, ok, err := reopened.Get("key2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "value2" {
		t.Errorf("expected key2=value2 after reopen, got %q (ok=%v)", value, ok)
	}
}

func TestCompactionReclaimsSpace(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(Options{Dir: dir, CompactionThreshold: 4096})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	value := strings.Repeat("x", 512)
	for i := 0; i < 200; i++ {
		if err := e.Set("hot-key", value); err != nil {
			t.Fatalf("Set failed on iteration %d: %v", i, err)
		}
	}

	if e.UncompactedBytes() >= 4096 {
		t.Errorf("expected a compaction to have fired, uncompacted=%d", e.UncompactedBytes())
	}

	got, ok, err := e.Get("hot-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || got != value {
		t.Errorf("expected hot-key to survive compaction with its latest value")
	}
}

func TestCompactionPreservesStateAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(Options{Dir: dir, CompactionThreshold: 2048})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		if err := e.Set("key", strings.Repeat("v", 64)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := e.Set("other", "other-value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(Options{Dir: dir, CompactionThreshold: 2048})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get("other")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "other-value" {
		t.Errorf("expected other=other-value after reopen, got %q (ok=%v)", value, ok)
	}
}

func TestCompressedValueRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	big := strings.Repeat("large-value-payload-", 50)
	if len(big) <= InlineValueThreshold {
		t.Fatalf("test value too small to exercise compression, len=%d", len(big))
	}

	if err := e.Set("big", big); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := e.Get("big")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || got != big {
		t.Errorf("compressed value did not round-trip correctly")
	}
}

func TestLogPathNaming(t *testing.T) {
	dir := t.TempDir()
	got := logPath(dir, 7)
	want := filepath.Join(dir, "7.log")
	if got != want {
		t.Errorf("logPath(%q, 7) = %q, want %q", dir, got, want)
	}
}
