package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/msgcenter"
)

func newTestStore(t *testing.T) blockstore.Store {
	t.Helper()
	store, err := blockstore.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	doc := &Document{
		User:       "alice",
		Passphrase: "correct horse battery staple",
		Backup: map[string]map[string]*SourceState{
			"laptop": {"/home/alice/docs": nil},
		},
	}

	url, err := Save(doc, store)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if url == "" {
		t.Fatal("Save returned an empty url")
	}

	confirmCalled := false
	confirm := func(string) (bool, error) {
		confirmCalled = true
		return false, nil
	}

	loaded, err := Load("alice", "correct horse battery staple", store, 5, now, confirm)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if confirmCalled {
		t.Error("Load prompted to create a new document despite finding one")
	}
	if loaded.User != "alice" {
		t.Errorf("User = %q, want alice", loaded.User)
	}
	if _, ok := loaded.Backup["laptop"]["/home/alice/docs"]; !ok {
		t.Error("loaded document missing scheduled source")
	}
}

func TestLoadPromptsWhenNothingFound(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	called := false
	confirm := func(prompt string) (bool, error) {
		called = true
		return true, nil
	}

	doc, err := Load("bob", "hunter2", store, 2, now, confirm)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !called {
		t.Error("expected Load to ask for confirmation")
	}
	if doc.User != "bob" {
		t.Errorf("User = %q, want bob", doc.User)
	}
	if len(doc.Backup) != 0 {
		t.Errorf("new document should have no scheduled sources: %v", doc.Backup)
	}
}

func TestLoadReturnsErrorWhenDeclined(t *testing.T) {
	store := newTestStore(t)

	confirm := func(string) (bool, error) { return false, nil }

	if _, err := Load("carol", "pw", store, 1, time.Now(), confirm); err == nil {
		t.Fatal("expected an error when the user declines to create a new document")
	}
}

func TestAddAndRemove(t *testing.T) {
	doc := &Document{}
	dir := t.TempDir()

	changed, already, err := Add(doc, "laptop", []string{dir})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !changed {
		t.Error("expected changed=true adding a new source")
	}
	if len(already) != 0 {
		t.Errorf("unexpected already-tracked: %v", already)
	}

	changed, already, err = Add(doc, "laptop", []string{dir})
	if err != nil {
		t.Fatalf("Add again: %v", err)
	}
	if changed {
		t.Error("expected changed=false re-adding the same source")
	}
	if len(already) != 1 {
		t.Errorf("expected one already-tracked entry, got %v", already)
	}

	changed, missing, err := Remove(doc, "laptop", []string{dir})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !changed {
		t.Error("expected changed=true removing a tracked source")
	}
	if len(missing) != 0 {
		t.Errorf("unexpected missing: %v", missing)
	}

	changed, missing, err = Remove(doc, "laptop", []string{dir})
	if err != nil {
		t.Fatalf("Remove again: %v", err)
	}
	if changed {
		t.Error("expected changed=false removing an already-untracked source")
	}
	if len(missing) != 1 {
		t.Errorf("expected one missing entry, got %v", missing)
	}
}

func TestListReflectsBackupState(t *testing.T) {
	doc := &Document{
		Backup: map[string]map[string]*SourceState{
			"laptop": {
				"/a": nil,
				"/b": {URL: "/sha256/abc", Timestamp: 5},
			},
		},
	}

	listing := List(doc, "laptop")
	if len(listing) != 2 {
		t.Fatalf("got %d entries, want 2", len(listing))
	}

	byPath := map[string]SourceListing{}
	for _, entry := range listing {
		byPath[entry.Path] = entry
	}

	if byPath["/a"].Backed {
		t.Error("/a should not be marked backed up")
	}
	if !byPath["/b"].Backed || byPath["/b"].Bundle != "/sha256/abc" {
		t.Errorf("/b entry wrong: %+v", byPath["/b"])
	}
}

func TestRunBacksUpScheduledDirectories(t *testing.T) {
	store := newTestStore(t)
	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "file.txt"), []byte("contents"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc := &Document{Backup: map[string]map[string]*SourceState{"laptop": {source: nil}}}
	center := msgcenter.New()
	defer center.Shutdown()

	changed, err := Run(doc, "laptop", store, center)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Error("expected changed=true after backing up a source")
	}

	state := doc.Backup["laptop"][source]
	if state == nil || state.URL == "" {
		t.Fatalf("source state not recorded: %+v", state)
	}
}

func TestRunSkipsMissingDirectories(t *testing.T) {
	store := newTestStore(t)
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	doc := &Document{Backup: map[string]map[string]*SourceState{"laptop": {missing: nil}}}
	center := msgcenter.New()
	defer center.Shutdown()

	changed, err := Run(doc, "laptop", store, center)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if changed {
		t.Error("expected changed=false when the only source is missing")
	}
}

func TestRestoreTargetsSingleSourceGoesDirectlyToDestination(t *testing.T) {
	doc := &Document{Backup: map[string]map[string]*SourceState{
		"laptop": {"/home/alice/docs": {URL: "/sha256/abc"}},
	}}

	targets, missing := RestoreTargets(doc, "laptop", nil, "/restore/here")
	if len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	if targets[0].Destination != "/restore/here" {
		t.Errorf("Destination = %q, want /restore/here", targets[0].Destination)
	}
}

func TestRestoreTargetsReportsUnscheduledSources(t *testing.T) {
	doc := &Document{Backup: map[string]map[string]*SourceState{"laptop": {}}}

	_, missing := RestoreTargets(doc, "laptop", []string{"/not/tracked"}, "")
	if len(missing) != 1 {
		t.Fatalf("expected one missing source, got %v", missing)
	}
}

func TestRunRestoreEndToEnd(t *testing.T) {
	store := newTestStore(t)
	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc := &Document{Backup: map[string]map[string]*SourceState{"laptop": {source: nil}}}
	center := msgcenter.New()
	defer center.Shutdown()

	if _, err := Run(doc, "laptop", store, center); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dest := t.TempDir()
	targets, missing := RestoreTargets(doc, "laptop", []string{source}, dest)
	if len(missing) != 0 {
		t.Fatalf("unexpected missing sources: %v", missing)
	}

	results, err := RunRestore(doc, "laptop", targets, store, center)
	if err != nil {
		t.Fatalf("RunRestore: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("unexpected missing blocks: %v", results)
	}

	restored, err := os.ReadFile(filepath.Join(targets[0].Destination, "a.txt"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(restored) != "hello" {
		t.Errorf("restored contents = %q, want hello", restored)
	}
}
