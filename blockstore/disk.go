// Package blockstore defines the Store capability interface used
// throughout libernet and a disk-backed implementation of it: blocks are
// sharded into two-level directories by address prefix, written
// atomically, and "like" queries are served from a per-shard cache
// sidecar rebuilt from whatever is actually on disk.
//
// Grounded on libernet/disk.py (Storage.__setitem__, .get, .like,
// .__contains__, __safe_save, __find_like_files, __save_like_cache), from
// _examples/original_source.
package blockstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/moby/sys/atomicwriter"
	"k8s.io/klog/v2"

	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/digest"
)

// groupNibbles is the length, in hex characters, of the first directory
// level of the shard layout: data/{addr[:groupNibbles]}/{addr[groupNibbles:]}.
const groupNibbles = 3

// MaxLike bounds how many entries a "like" query keeps, trimmed to the
// entries with the highest match score against the target.
const MaxLike = 100

// Store is the capability every block-addressable backend (disk-local or
// HTTP-proxied) implements. It is the only interface codec, bundle, and
// backup depend on, so a proxystore.Proxy and a Disk are interchangeable
// everywhere a Store is accepted.
type Store interface {
	// Put writes data under the address named by url. url must not be a
	// Like-kind url.
	Put(url string, data []byte) error
	// Get returns the stored bytes named by url's address and whether
	// they were found.
	Get(url string) ([]byte, bool, error)
	// Contains reports whether a block exists at url's address.
	Contains(url string) (bool, error)
	// Like returns URLs near target (including the seed entries in
	// initial), keyed to their stored size, keeping only the MaxLike
	// closest by digest.MatchScore.
	Like(target digest.Identifier, initial map[string]int64) (map[string]int64, error)
	// Shutdown requests that any background activity stop.
	Shutdown()
	// Join blocks until background activity started by this Store has
	// stopped.
	Join()
}

// Disk is a Store backed by a directory tree.
type Disk struct {
	root string
	// mu serializes only the operations that must not interleave: picking
	// a unique tempfile name and renaming it into place on Put, and
	// rewriting a shard's like-cache sidecar. Reads (Get, Contains, the
	// scan in Like) run lock-free; the atomic rename guarantees a reader
	// always sees either the complete prior block or the complete new one.
	mu sync.Mutex
}

// NewDisk opens (creating if necessary) a disk-backed Store rooted at
// root/data.
func NewDisk(root string) (*Disk, error) {
	dataDir := filepath.Join(root, "data")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("blockstore: creating %s: %w", dataDir, err)
	}

	return &Disk{root: dataDir}, nil
}

func (d *Disk) dirOf(id digest.Identifier) string {
	hex := id.String()
	return filepath.Join(d.root, hex[:groupNibbles])
}

func (d *Disk) pathOf(id digest.Identifier) string {
	hex := id.String()
	return filepath.Join(d.dirOf(id), hex[groupNibbles:])
}

func likeCachePath(id digest.Identifier, dataDir string) string {
	hex := id.String()
	return filepath.Join(dataDir, hex[groupNibbles:]+".like.json")
}

// Put implements Store.
func (d *Disk) Put(url string, data []byte) error {
	parsed, err := blockurl.Parse(url)
	if err != nil {
		return err
	}

	if parsed.Kind == blockurl.Like {
		return fmt.Errorf("blockstore: cannot Put a like url")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dir := d.dirOf(parsed.Addr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blockstore: creating %s: %w", dir, err)
	}

	// The existing copy (if any) might be a corrupt remnant from an
	// interrupted previous write, so it is always overwritten.
	if err := atomicwriter.WriteFile(d.pathOf(parsed.Addr), data, 0o644); err != nil {
		return fmt.Errorf("blockstore: writing %s: %w", url, err)
	}

	klog.V(4).Infof("blockstore: wrote %s (%d bytes)", url, len(data))
	return nil
}

// Get implements Store.
func (d *Disk) Get(url string) ([]byte, bool, error) {
	parsed, err := blockurl.Parse(url)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(d.pathOf(parsed.Addr))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: reading %s: %w", url, err)
	}

	return data, true, nil
}

// Contains implements Store.
func (d *Disk) Contains(url string) (bool, error) {
	parsed, err := blockurl.Parse(url)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(d.pathOf(parsed.Addr))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return !info.IsDir(), nil
}

// Like implements Store. It merges initial, the persisted cache, and
// whatever siblings are presently in the shard directory, keeping the
// MaxLike entries with the best match score against target.
func (d *Disk) Like(target digest.Identifier, initial map[string]int64) (map[string]int64, error) {
	dataDir := d.dirOf(target)
	likePath := likeCachePath(target, dataDir)

	cached, err := d.loadLikeCache(likePath)
	if err != nil {
		return nil, err
	}

	onDisk, err := d.findLikeFiles(target, dataDir)
	if err != nil {
		return nil, err
	}

	merged := map[string]int64{}
	for k, v := range initial {
		merged[k] = v
	}
	for k, v := range cached {
		merged[k] = v
	}
	for k, v := range onDisk {
		merged[k] = v
	}

	return d.saveLikeCache(target, likePath, merged)
}

func (d *Disk) loadLikeCache(likePath string) (map[string]int64, error) {
	data, err := os.ReadFile(likePath)
	if os.IsNotExist(err) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blockstore: reading like cache %s: %w", likePath, err)
	}

	cache := map[string]int64{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("blockstore: decoding like cache %s: %w", likePath, err)
	}

	return cache, nil
}

func (d *Disk) findLikeFiles(target digest.Identifier, dataDir string) (map[string]int64, error) {
	entries, err := os.ReadDir(dataDir)
	if os.IsNotExist(err) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blockstore: listing %s: %w", dataDir, err)
	}

	prefix := target.String()[:groupNibbles]
	found := map[string]int64{}

	for _, entry := range entries {
		if entry.IsDir() || len(entry.Name()) != digest.HexSize-groupNibbles {
			continue
		}

		id, err := digest.FromHex(prefix + entry.Name())
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		found[blockurl.ForData(id, false)] = info.Size()
	}

	return found, nil
}

func (d *Disk) saveLikeCache(target digest.Identifier, likePath string, merged map[string]int64) (map[string]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	urls := make([]string, 0, len(merged))
	for url := range merged {
		urls = append(urls, url)
	}

	sort.Slice(urls, func(i, j int) bool {
		a, errA := blockurl.Parse(urls[i])
		b, errB := blockurl.Parse(urls[j])
		if errA != nil || errB != nil {
			return false
		}
		return digest.MatchScore(a.Addr, target) > digest.MatchScore(b.Addr, target)
	})

	if len(urls) > MaxLike {
		for _, dropped := range urls[MaxLike:] {
			delete(merged, dropped)
		}
		urls = urls[:MaxLike]
	}

	if err := os.MkdirAll(filepath.Dir(likePath), 0o755); err != nil {
		return nil, fmt.Errorf("blockstore: creating %s: %w", filepath.Dir(likePath), err)
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("blockstore: encoding like cache: %w", err)
	}

	if err := atomicwriter.WriteFile(likePath, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("blockstore: writing like cache %s: %w", likePath, err)
	}

	return merged, nil
}

// Shutdown implements Store. A disk-backed store has no background
// goroutine to stop.
func (d *Disk) Shutdown() {}

// Join implements Store.
func (d *Disk) Join() {}

var _ Store = (*Disk)(nil)
