//go:build linux || darwin

package platutil

import "golang.org/x/sys/unix"

// ListXAttr lists the extended attribute names set on path.
func ListXAttr(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Listxattr(path, buf)
	if err != nil {
		return nil, err
	}

	return splitNullTerminated(buf[:n]), nil
}

// GetXAttr returns the value of the extended attribute name on path.
func GetXAttr(path, name string) ([]byte, error) {
	size, err := unix.Getxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Getxattr(path, name, buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// SetXAttr sets the extended attribute name on path to value.
func SetXAttr(path, name string, value []byte) error {
	return unix.Setxattr(path, name, value, 0)
}

func splitNullTerminated(buf []byte) []string {
	var names []string
	start := 0

	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}

	return names
}
