package bundle

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	concurrently "github.com/tejzpr/ordered-concurrently/v3"
	"k8s.io/klog/v2"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/codec"
	"github.com/marcpage/libernet/platutil"
)

// DefaultWorkers is the concurrency used by Create when callers don't
// specify their own.
var DefaultWorkers = runtime.NumCPU()

// CreateOptions configures Create.
type CreateOptions struct {
	// Previous, if non-empty, is the url of a prior bundle; files whose
	// size and modification time are unchanged from it are not re-read or
	// re-stored.
	Previous string
	// Index names the file (must be a root-level file, no path
	// separators) returned when a bundle is addressed with no path.
	Index string
	// Workers bounds file-processing concurrency. Zero means
	// DefaultWorkers.
	Workers int
	// Encrypt selects the encoding used to store bundle document blocks
	// (root and sub-bundles). Zero value means content-key encryption.
	Encrypt codec.Encryption
}

// Create snapshots the directory at sourcePath into one or more bundle
// blocks stored in store, returning the URLs of every block written (the
// root bundle's URL first).
func Create(sourcePath string, store blockstore.Store, opts CreateOptions) ([]string, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	encrypt := opts.Encrypt
	if encrypt.Mode == codec.NoEncryption && encrypt.Passphrase == "" {
		encrypt = codec.WithContentKey()
	}

	previous := Description{Files: map[string]FileDescription{}}
	if opts.Previous != "" {
		loaded, err := loadRaw(opts.Previous, store)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			previous = *loaded
		}
	}

	if opts.Index != "" && filepath.Base(opts.Index) != opts.Index {
		return nil, fmt.Errorf("bundle: index %q must be a file in the root", opts.Index)
	}

	relFiles, emptyDirs, err := discover(sourcePath)
	if err != nil {
		return nil, err
	}

	files, storedURLs, err := processFiles(sourcePath, relFiles, previous, store, workers)
	if err != nil {
		return nil, err
	}

	description := Description{
		Files:       files,
		Directories: emptyDirs,
		Timestamp:   platutil.Now(),
		Index:       opts.Index,
	}

	if opts.Index != "" {
		if _, ok := files[opts.Index]; !ok {
			return nil, fmt.Errorf("bundle: requested index %q is not in the bundle", opts.Index)
		}
	}

	subURLs, err := finalizeBundle(description, store, encrypt)
	if err != nil {
		return nil, err
	}

	return append(subURLs, storedURLs...), nil
}

// discover walks sourcePath, returning every regular file (and every
// symlink not pointing at a directory) as a path relative to sourcePath,
// plus a description of every directory that has no descendant files (an
// "empty" directory, or a symlink to a directory, recorded with its
// target).
func discover(sourcePath string) ([]string, map[string]DirEntry, error) {
	var files []string
	var dirs []string

	err := filepath.WalkDir(sourcePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == sourcePath {
			return nil
		}

		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}

		if entry.IsDir() {
			dirs = append(dirs, rel)
			return nil
		}

		if entry.Type()&fs.ModeSymlink != 0 {
			if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
				dirs = append(dirs, rel)
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: scanning %s: %w", sourcePath, err)
	}

	empty := map[string]DirEntry{}

	for _, dir := range dirs {
		hasChild := false
		prefix := dir + string(filepath.Separator)

		for _, file := range files {
			if len(file) > len(prefix) && file[:len(prefix)] == prefix {
				hasChild = true
				break
			}
		}

		if hasChild {
			continue
		}

		entry := DirEntry{}
		fullPath := filepath.Join(sourcePath, dir)

		if info, err := os.Lstat(fullPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(fullPath); err == nil {
				entry.Link = target
			}
		}

		empty[filepath.ToSlash(dir)] = entry
	}

	return files, empty, nil
}

type fileJob struct {
	sourcePath string
	relPath    string
	previous   Description
	store      blockstore.Store
}

type fileJobResult struct {
	relPath string
	desc    FileDescription
	urls    []string
	err     error
}

func (j fileJob) Run(ctx context.Context) interface{} {
	desc, urls, err := processFile(j.sourcePath, j.relPath, j.previous, j.store)
	return fileJobResult{relPath: filepath.ToSlash(j.relPath), desc: desc, urls: urls, err: err}
}

// processFiles processes every relative path in relFiles concurrently,
// using a bounded worker pool, and returns the assembled file map plus
// every block URL newly written while doing so.
func processFiles(sourcePath string, relFiles []string, previous Description, store blockstore.Store, workers int) (map[string]FileDescription, []string, error) {
	input := make(chan concurrently.WorkFunction, workers)
	output := concurrently.Process(context.Background(), input, &concurrently.Options{
		PoolSize:         workers,
		OutChannelBuffer: workers,
	})

	go func() {
		for _, relPath := range relFiles {
			input <- fileJob{sourcePath: sourcePath, relPath: relPath, previous: previous, store: store}
		}
		close(input)
	}()

	files := map[string]FileDescription{}
	var urls []string
	var firstErr error

	for result := range output {
		r, ok := result.Value.(fileJobResult)
		if !ok {
			continue
		}

		if r.err != nil {
			klog.Errorf("bundle: processing %s: %v", r.relPath, r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}

		files[r.relPath] = r.desc
		urls = append(urls, r.urls...)
	}

	if firstErr != nil {
		return nil, nil, firstErr
	}

	sort.Strings(urls)
	return files, urls, nil
}

func processFile(sourcePath, relPath string, previous Description, store blockstore.Store) (FileDescription, []string, error) {
	fullPath := filepath.Join(sourcePath, relPath)
	slashPath := filepath.ToSlash(relPath)

	desc, changed, err := describeFile(fullPath, slashPath, previous)
	if err != nil {
		return FileDescription{}, nil, err
	}

	if !changed {
		return previous.Files[slashPath], nil, nil
	}

	var urls []string

	if desc.Link == "" {
		parts, partURLs, err := storeFileParts(fullPath, store)
		if err != nil {
			return FileDescription{}, nil, err
		}
		desc.Parts = parts
		urls = append(urls, partURLs...)
	}

	if rsrcPath, ok := platutil.RsrcForkPath(fullPath, true); ok {
		parts, partURLs, err := storeFileParts(rsrcPath, store)
		if err != nil {
			return FileDescription{}, nil, err
		}
		desc.Rsrc = parts
		urls = append(urls, partURLs...)
	}

	attrs, attrURLs, err := storeXAttr(fullPath, store)
	if err != nil {
		return FileDescription{}, nil, err
	}
	if len(attrs) > 0 {
		desc.XAttr = attrs
		urls = append(urls, attrURLs...)
	}

	return desc, urls, nil
}

func describeFile(fullPath, relPath string, previous Description) (FileDescription, bool, error) {
	info, err := os.Lstat(fullPath)
	if err != nil {
		return FileDescription{}, false, fmt.Errorf("bundle: stat %s: %w", fullPath, err)
	}

	isLink := info.Mode()&os.ModeSymlink != 0
	isReadOnly := info.Mode().Perm()&0o200 == 0
	isExecutable := info.Mode().Perm()&0o100 != 0
	sizeInfo := info

	if isLink {
		sizeInfo, err = os.Stat(fullPath)
		if err != nil {
			return FileDescription{}, false, fmt.Errorf("bundle: stat link target %s: %w", fullPath, err)
		}
	}

	size := sizeInfo.Size()
	modified := platutil.FromUnix(sizeInfo.ModTime())

	if prior, ok := previous.Files[relPath]; ok {
		sizeMatch := size == prior.Size
		modifiedMatch := absFloat(modified-prior.Modified) < 0.0001

		if sizeMatch && modifiedMatch {
			return FileDescription{}, false, nil
		}
	}

	desc := FileDescription{Size: size, Modified: modified}

	if isLink {
		target, err := os.Readlink(fullPath)
		if err != nil {
			return FileDescription{}, false, fmt.Errorf("bundle: readlink %s: %w", fullPath, err)
		}
		desc.Link = target
	}
	if isReadOnly {
		desc.ReadOnly = true
	}
	if isExecutable {
		desc.Executable = true
	}

	return desc, true, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func storeFileParts(path string, store blockstore.Store) ([]Part, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: opening %s: %w", path, err)
	}
	defer file.Close()

	var parts []Part
	var urls []string
	buf := make([]byte, MaxBundleSize)

	for {
		n, err := file.Read(buf)
		if n > 0 {
			url, _, storeErr := codec.Store(buf[:n], store, codec.WithContentKey(), nil, 0)
			if storeErr != nil {
				return nil, nil, fmt.Errorf("bundle: storing part of %s: %w", path, storeErr)
			}
			parts = append(parts, Part{URL: url, Size: n})
			urls = append(urls, url)
		}
		if err != nil {
			break
		}
	}

	return parts, urls, nil
}

func storeXAttr(path string, store blockstore.Store) (map[string]string, []string, error) {
	names, err := platutil.ListXAttr(path)
	if err != nil || len(names) == 0 {
		return nil, nil, nil
	}

	attrs := map[string]string{}
	var urls []string

	for _, name := range names {
		value, err := platutil.GetXAttr(path, name)
		if err != nil {
			continue
		}

		url, _, err := codec.Store(value, store, codec.WithContentKey(), nil, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("bundle: storing xattr %s of %s: %w", name, path, err)
		}

		attrs[name] = url
		urls = append(urls, url)
	}

	return attrs, urls, nil
}
