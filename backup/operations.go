package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/bundle"
	"github.com/marcpage/libernet/msgcenter"
	"github.com/marcpage/libernet/platutil"
)

// realPath normalizes source the way os.path.realpath does: absolute,
// with any symlinks resolved. A path that doesn't exist yet is still
// made absolute, just not de-symlinked.
func realPath(source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("backup: resolving %s: %w", source, err)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	return abs, nil
}

// Add schedules every source directory for backup under machine,
// returning whether doc changed and which sources were already scheduled
// (and so left untouched).
func Add(doc *Document, machine string, sources []string) (changed bool, alreadyTracked []string, err error) {
	if doc.Backup == nil {
		doc.Backup = map[string]map[string]*SourceState{}
	}
	if doc.Backup[machine] == nil {
		doc.Backup[machine] = map[string]*SourceState{}
	}
	tracked := doc.Backup[machine]

	for _, source := range sources {
		real, err := realPath(source)
		if err != nil {
			return changed, alreadyTracked, err
		}

		if _, exists := tracked[real]; exists {
			alreadyTracked = append(alreadyTracked, real)
			continue
		}

		tracked[real] = nil
		changed = true
	}

	return changed, alreadyTracked, nil
}

// Remove unschedules every source directory for backup under machine,
// returning whether doc changed and which sources weren't tracked to
// begin with.
func Remove(doc *Document, machine string, sources []string) (changed bool, notTracked []string, err error) {
	tracked := doc.Backup[machine]

	for _, source := range sources {
		real, err := realPath(source)
		if err != nil {
			return changed, notTracked, err
		}

		if tracked == nil {
			notTracked = append(notTracked, real)
			continue
		}

		if _, exists := tracked[real]; !exists {
			notTracked = append(notTracked, real)
			continue
		}

		delete(tracked, real)
		changed = true
	}

	return changed, notTracked, nil
}

// SourceListing describes one scheduled source directory's backup state.
type SourceListing struct {
	Path    string
	Backed  bool
	Bundle  string
	Updated float64
}

// List returns every source directory scheduled for backup under machine.
func List(doc *Document, machine string) []SourceListing {
	tracked := doc.Backup[machine]
	listing := make([]SourceListing, 0, len(tracked))

	for path, state := range tracked {
		entry := SourceListing{Path: path}
		if state != nil {
			entry.Backed = true
			entry.Bundle = state.URL
			entry.Updated = state.Timestamp
		}
		listing = append(listing, entry)
	}

	return listing
}

// Run backs up every scheduled source directory under machine, reporting
// progress through messages, and returns whether doc changed. A source
// directory that no longer exists is skipped, not an error: it will
// reappear once it's available again, matching __backup's behavior of
// printing a warning and moving on.
func Run(doc *Document, machine string, store blockstore.Store, messages *msgcenter.Center) (bool, error) {
	tracked := doc.Backup[machine]
	changed := false

	for source, state := range tracked {
		messages.Send([2]string{"source", source})

		info, err := os.Stat(source)
		if err != nil || !info.IsDir() {
			continue
		}

		var previous string
		if state != nil {
			previous = state.URL
		}

		urls, err := bundle.Create(source, store, bundle.CreateOptions{Previous: previous})
		if err != nil {
			return changed, fmt.Errorf("backup: backing up %s: %w", source, err)
		}

		tracked[source] = &SourceState{URL: urls[0], Timestamp: platutil.Now()}
		changed = true
	}

	return changed, nil
}

// RestoreTarget names one scheduled source and the directory its bundle
// should be restored into.
type RestoreTarget struct {
	Source      string
	Destination string
}

// RestoreTargets resolves which scheduled sources to restore and where:
// every tracked source if requested is empty, else just the requested
// ones (reporting any that aren't tracked). destination mirrors
// __dest_path: empty restores each source back to itself; a single
// requested source restores directly to destination; multiple sources
// with unique base names restore under destination/name; otherwise under
// destination/full-path.
func RestoreTargets(doc *Document, machine string, requested []string, destination string) (targets []RestoreTarget, missing []string) {
	tracked := doc.Backup[machine]

	sources := requested
	if len(sources) == 0 {
		for path := range tracked {
			sources = append(sources, path)
		}
	} else {
		var present []string
		for _, path := range requested {
			if _, ok := tracked[path]; ok {
				present = append(present, path)
			} else {
				missing = append(missing, path)
			}
		}
		sources = present
	}

	for _, source := range sources {
		targets = append(targets, RestoreTarget{Source: source, Destination: destPath(source, destination, sources)})
	}

	return targets, missing
}

func destPath(source, destination string, sources []string) string {
	if destination == "" {
		return source
	}

	realDest, err := realPath(destination)
	if err != nil {
		realDest = destination
	}

	if len(sources) == 1 {
		return realDest
	}

	names := map[string]struct{}{}
	for _, s := range sources {
		names[filepath.Base(s)] = struct{}{}
	}

	if len(names) == len(sources) {
		return filepath.Join(realDest, filepath.Base(source))
	}

	return filepath.Join(realDest, filepath.FromSlash(source))
}

// RunRestore restores every target, reporting progress through messages.
// It returns, per source, any block addresses that were missing (nothing
// is written for a source with missing blocks). A source that has never
// been backed up is reported with the single entry "not backed up yet".
func RunRestore(doc *Document, machine string, targets []RestoreTarget, store blockstore.Store, messages *msgcenter.Center) (map[string][]string, error) {
	tracked := doc.Backup[machine]
	missingBySource := map[string][]string{}

	for _, target := range targets {
		messages.Send([2]string{"source", target.Source})

		state := tracked[target.Source]
		if state == nil || state.URL == "" {
			missingBySource[target.Source] = []string{"not backed up yet"}
			continue
		}

		missing, err := bundle.Restore(state.URL, target.Destination, store)
		if err != nil {
			return nil, fmt.Errorf("backup: restoring %s: %w", target.Source, err)
		}
		if len(missing) > 0 {
			missingBySource[target.Source] = missing
		}
	}

	return missingBySource, nil
}
