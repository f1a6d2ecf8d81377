// Package platutil collects the small platform-specific helpers bundle
// and backup need: libernet's 2001-epoch timestamps, best-effort symlink
// creation, and a per-OS preferences directory.
//
// Grounded on libernet/plat/timestamp.py, libernet/plat/files.py, and
// libernet/plat/dirs.py, from _examples/original_source.
package platutil

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// epochOffset is the number of seconds between the Unix epoch
// (1970-01-01T00:00:00Z) and libernet's own epoch (2001-01-01T00:00:00Z).
var epochOffset = float64(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC).Unix())

// Now returns the current time as a libernet timestamp: seconds since
// 2001-01-01T00:00:00Z.
func Now() float64 {
	return FromUnix(time.Now())
}

// FromUnix converts a time.Time into a libernet timestamp.
func FromUnix(t time.Time) float64 {
	return float64(t.UnixNano())/1e9 - epochOffset
}

// ToUnix converts a libernet timestamp back into a time.Time.
func ToUnix(timestamp float64) time.Time {
	seconds := timestamp + epochOffset
	whole := int64(seconds)
	frac := seconds - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

// Symlink creates a symlink at dst pointing to src, returning whether the
// platform supports symlinks (it does everywhere except Windows, matching
// the source's posture of silently no-op'ing there instead of failing).
func Symlink(src, dst string) (bool, error) {
	if runtime.GOOS == "windows" {
		return false, nil
	}

	if err := os.Symlink(src, dst); err != nil {
		return false, err
	}

	return true, nil
}

// PrefDir returns the directory libernet stores its own preferences and
// settings in, creating it if necessary. If filename is non-empty, it is
// joined onto the directory (and, on Linux, dot-prefixed).
func PrefDir(filename string) (string, error) {
	var dir string

	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
	case "darwin":
		dir = filepath.Join(os.Getenv("HOME"), "Library", "Preferences")
	default:
		dir = os.Getenv("HOME")
		if filename != "" {
			filename = "." + filename
		}
	}

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = home
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if filename == "" {
		return dir, nil
	}

	return filepath.Join(dir, filename), nil
}

// rsrcForkName is the path component macOS uses to expose a file's
// resource fork as a readable/writable sub-path.
const rsrcForkName = "..namedfork/rsrc"

// RsrcForkPath returns the path to path's resource fork on platforms that
// have one. If verify is true, it also confirms the fork actually exists.
// Returns ("", false) on platforms without resource forks.
func RsrcForkPath(path string, verify bool) (string, bool) {
	if runtime.GOOS != "darwin" {
		return "", false
	}

	rsrcPath := filepath.Join(path, rsrcForkName)

	if verify {
		info, err := os.Stat(rsrcPath)
		if err != nil || info.IsDir() {
			return "", false
		}
	}

	return rsrcPath, true
}
