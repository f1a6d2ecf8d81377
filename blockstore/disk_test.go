package blockstore

import (
	"testing"

	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/digest"
)

func newTestDisk(t *testing.T) *Disk {
	t.Helper()
	store, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return store
}

func TestDiskPutGetRoundTrip(t *testing.T) {
	store := newTestDisk(t)
	id := digest.Sum([]byte("payload"))
	url := blockurl.ForData(id, false)

	if err := store.Put(url, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, found, err := store.Get(url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("expected block to be found")
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestDiskGetMissing(t *testing.T) {
	store := newTestDisk(t)
	id := digest.Sum([]byte("never written"))

	data, found, err := store.Get(blockurl.ForData(id, false))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found || data != nil {
		t.Fatalf("expected a miss, got found=%v data=%q", found, data)
	}
}

func TestDiskContains(t *testing.T) {
	store := newTestDisk(t)
	id := digest.Sum([]byte("contained"))
	url := blockurl.ForData(id, false)

	ok, err := store.Contains(url)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatalf("expected Contains to be false before Put")
	}

	if err := store.Put(url, []byte("contained")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err = store.Contains(url)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !ok {
		t.Fatalf("expected Contains to be true after Put")
	}
}

func TestDiskOverwriteReplacesCorruptCopy(t *testing.T) {
	store := newTestDisk(t)
	id := digest.Sum([]byte("v1"))
	url := blockurl.ForData(id, false)

	if err := store.Put(url, []byte("garbage")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(url, []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, found, err := store.Get(url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(data) != "v1" {
		t.Fatalf("expected overwrite to win, got found=%v data=%q", found, data)
	}
}

func TestDiskLikeFindsShardSiblings(t *testing.T) {
	store := newTestDisk(t)
	target := digest.Sum([]byte("like target"))

	// Plant a handful of blocks sharing target's 3-hex-nibble shard prefix
	// by brute-forcing small seeds; this keeps the test fast since only
	// the shard directory needs to match, not a high match score.
	prefix := target.String()[:groupNibbles]
	planted := 0

	for i := 0; planted < 5 && i < 200000; i++ {
		candidate := digest.Sum([]byte{byte(i), byte(i >> 8), byte(i >> 16)})
		if candidate.String()[:groupNibbles] != prefix {
			continue
		}

		url := blockurl.ForData(candidate, false)
		if err := store.Put(url, []byte("sibling")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		planted++
	}

	if planted == 0 {
		t.Skip("could not plant a shard sibling within the search budget")
	}

	results, err := store.Like(target, nil)
	if err != nil {
		t.Fatalf("Like: %v", err)
	}

	if len(results) == 0 {
		t.Fatalf("expected at least one like result")
	}

	for url := range results {
		parsed, err := blockurl.Parse(url)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if parsed.Addr.String()[:groupNibbles] != prefix {
			t.Fatalf("like result %s does not share target's shard prefix", url)
		}
	}
}

func TestDiskLikeMergesInitialSeeds(t *testing.T) {
	store := newTestDisk(t)
	target := digest.Sum([]byte("seed target"))
	seedID := digest.Sum([]byte("seed entry"))
	seedURL := blockurl.ForData(seedID, false)

	results, err := store.Like(target, map[string]int64{seedURL: 42})
	if err != nil {
		t.Fatalf("Like: %v", err)
	}

	if size, ok := results[seedURL]; !ok || size != 42 {
		t.Fatalf("expected seed entry to survive merge, got %v", results)
	}

	// A second call should see the persisted cache without needing the
	// seed again.
	again, err := store.Like(target, nil)
	if err != nil {
		t.Fatalf("Like: %v", err)
	}

	if _, ok := again[seedURL]; !ok {
		t.Fatalf("expected cached like entry to persist across calls")
	}
}

func TestDiskPutRejectsLikeURL(t *testing.T) {
	store := newTestDisk(t)
	id := digest.Sum([]byte("x"))

	if err := store.Put(blockurl.ForData(id, true), []byte("x")); err == nil {
		t.Fatalf("expected Put to reject a like url")
	}
}
