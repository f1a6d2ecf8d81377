package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/codec"
	"github.com/marcpage/libernet/platutil"
)

// Restore recreates, under destinationRoot, every file described by the
// bundle named by url. If any block needed to do so is unavailable,
// nothing is written and the missing block addresses are returned;
// otherwise the returned slice is empty.
//
// Grounded on libernet/tools/bundle.py's Path.restore_file and the
// missing-blocks-before-restore pattern in libernet/tools/contents.py.
func Restore(url string, destinationRoot string, store blockstore.Store) ([]string, error) {
	missing, err := MissingBlocks(url, store)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return missing, nil
	}

	description, err := Inflate(url, store, true)
	if err != nil {
		return nil, err
	}
	if description == nil {
		return nil, fmt.Errorf("bundle: %s could not be loaded despite no missing blocks", url)
	}

	for name := range description.Directories {
		if err := restoreDirectory(destinationRoot, name, description.Directories[name]); err != nil {
			return nil, err
		}
	}

	for name, desc := range description.Files {
		if err := restoreFile(destinationRoot, name, desc, store); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

func restoreDirectory(destinationRoot, relPath string, entry DirEntry) error {
	fullPath := filepath.Join(destinationRoot, filepath.FromSlash(relPath))

	if entry.Link != "" {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return err
		}
		_, err := platutil.Symlink(entry.Link, fullPath)
		return err
	}

	return os.MkdirAll(fullPath, 0o755)
}

func restoreFile(destinationRoot, relPath string, desc FileDescription, store blockstore.Store) error {
	fullPath := filepath.Join(destinationRoot, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("bundle: creating directory for %s: %w", relPath, err)
	}

	if desc.Link != "" {
		_, err := platutil.Symlink(desc.Link, fullPath)
		return err
	}

	if err := restoreFileParts(fullPath, desc.Parts, store); err != nil {
		return err
	}

	if len(desc.Rsrc) > 0 {
		if rsrcPath, ok := platutil.RsrcForkPath(fullPath, false); ok {
			if err := restoreFileParts(rsrcPath, desc.Rsrc, store); err != nil {
				return err
			}
		}
	}

	for name, url := range desc.XAttr {
		value, err := codec.Fetch(url, store, false, "")
		if err != nil {
			return fmt.Errorf("bundle: fetching xattr %s for %s: %w", name, relPath, err)
		}
		if value != nil {
			if err := platutil.SetXAttr(fullPath, name, value); err != nil {
				return fmt.Errorf("bundle: setting xattr %s on %s: %w", name, relPath, err)
			}
		}
	}

	if desc.ReadOnly || desc.Executable {
		mode := os.FileMode(0o644)
		if desc.ReadOnly {
			mode &^= 0o200
		}
		if desc.Executable {
			mode |= 0o100
		}
		if err := os.Chmod(fullPath, mode); err != nil {
			return fmt.Errorf("bundle: chmod %s: %w", relPath, err)
		}
	}

	return nil
}

func restoreFileParts(destinationPath string, parts []Part, store blockstore.Store) error {
	file, err := os.OpenFile(destinationPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bundle: creating %s: %w", destinationPath, err)
	}
	defer file.Close()

	for _, part := range parts {
		data, err := codec.Fetch(part.URL, store, false, "")
		if err != nil {
			return fmt.Errorf("bundle: fetching block %s: %w", part.URL, err)
		}
		if data == nil {
			return fmt.Errorf("bundle: block not found: %s", part.URL)
		}
		if len(data) != part.Size {
			return fmt.Errorf("bundle: block %s is %d bytes, expected %d", part.URL, len(data), part.Size)
		}

		if _, err := file.Write(data); err != nil {
			return fmt.Errorf("bundle: writing %s: %w", destinationPath, err)
		}
	}

	return nil
}
