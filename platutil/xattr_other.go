//go:build !linux && !darwin

package platutil

// ListXAttr is a no-op on platforms without extended attribute support.
func ListXAttr(path string) ([]string, error) { return nil, nil }

// GetXAttr is a no-op on platforms without extended attribute support.
func GetXAttr(path, name string) ([]byte, error) { return nil, nil }

// SetXAttr is a no-op on platforms without extended attribute support.
func SetXAttr(path, name string, value []byte) error { return nil }
