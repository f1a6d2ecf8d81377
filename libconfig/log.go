package libconfig

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// MaxLogSize is the size log.txt is allowed to reach before RollLog moves
// it into a dated zip archive.
const MaxLogSize = 1024 * 1024

// RollLog checks logPath's size and, if it's at or above MaxLogSize,
// compresses its current contents into logPath_YYYY-MM.zip (named for the
// current month) and truncates logPath back to empty. It is a no-op if
// logPath doesn't exist or is still under the size limit.
func RollLog(logPath string, now time.Time) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("libconfig: stat %s: %w", logPath, err)
	}
	if info.Size() < MaxLogSize {
		return nil
	}

	archivePath := fmt.Sprintf("%s_%s.zip", logPath, now.Format("2006-01"))
	if err := appendToZip(archivePath, logPath); err != nil {
		return err
	}

	if err := os.Truncate(logPath, 0); err != nil {
		return fmt.Errorf("libconfig: truncating %s: %w", logPath, err)
	}

	return nil
}

// appendToZip adds the current contents of sourcePath into archivePath,
// preserving any entries the archive already holds (a machine rolling
// logs more than once in the same month accumulates entries rather than
// overwriting).
func appendToZip(archivePath, sourcePath string) error {
	existing, err := os.ReadFile(archivePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("libconfig: reading %s: %w", archivePath, err)
	}

	out, err := os.Create(archivePath + ".tmp")
	if err != nil {
		return fmt.Errorf("libconfig: creating %s: %w", archivePath, err)
	}
	defer out.Close()

	writer := zip.NewWriter(out)

	if len(existing) > 0 {
		reader, err := zip.NewReader(bytes.NewReader(existing), int64(len(existing)))
		if err != nil {
			return fmt.Errorf("libconfig: reading archive %s: %w", archivePath, err)
		}

		for _, entry := range reader.File {
			if err := copyZipEntry(writer, entry); err != nil {
				return err
			}
		}
	}

	entryName := filepath.Base(sourcePath) + "." + time.Now().UTC().Format("20060102T150405")
	entryWriter, err := writer.Create(entryName)
	if err != nil {
		return fmt.Errorf("libconfig: adding %s to archive: %w", entryName, err)
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("libconfig: opening %s: %w", sourcePath, err)
	}
	defer source.Close()

	if _, err := io.Copy(entryWriter, source); err != nil {
		return fmt.Errorf("libconfig: compressing %s: %w", sourcePath, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("libconfig: finalizing %s: %w", archivePath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("libconfig: closing %s: %w", archivePath, err)
	}

	return os.Rename(archivePath+".tmp", archivePath)
}

func copyZipEntry(writer *zip.Writer, entry *zip.File) error {
	dst, err := writer.CreateHeader(&entry.FileHeader)
	if err != nil {
		return fmt.Errorf("libconfig: copying archive entry %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("libconfig: opening archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}

