package platutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	ts := FromUnix(now)
	back := ToUnix(ts)

	if back.Unix() != now.Unix() {
		t.Fatalf("round trip mismatch: %v != %v", back, now)
	}
}

func TestTimestampEpochIsZeroAt2001(t *testing.T) {
	epoch := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := FromUnix(epoch)

	if ts < -0.001 || ts > 0.001 {
		t.Fatalf("expected ~0 at the libernet epoch, got %v", ts)
	}
}

func TestSymlinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")

	ok, err := Symlink(target, link)
	if err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if !ok {
		t.Skip("platform does not support symlinks")
	}

	got, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if got != target {
		t.Fatalf("Readlink = %q, want %q", got, target)
	}
}

func TestPrefDirCreatesDirectory(t *testing.T) {
	dir, err := PrefDir("")
	if err != nil {
		t.Fatalf("PrefDir: %v", err)
	}
	if dir == "" {
		t.Fatalf("expected a non-empty preference directory")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected %s to exist as a directory: %v", dir, err)
	}
}
