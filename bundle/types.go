// Package bundle implements libernet's directory-snapshot format: a JSON
// "bundle" document describing a tree of files (split into content-
// addressed parts), nested sub-bundles when the top-level document would
// outgrow a single block, and incremental reuse of unchanged files across
// snapshots.
//
// Grounded on libernet/tools/bundle.py, from _examples/original_source.
package bundle

import (
	"bytes"
	"encoding/json"

	"github.com/marcpage/libernet/codec"
)

// MaxBundleSize is the largest a single bundle block may be; it matches
// the block size limit, since a bundle document is itself stored as a
// block.
const MaxBundleSize = codec.MaxBlockSize

// Part names one content-addressed chunk of a file, in order.
type Part struct {
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// FileDescription records everything needed to restore a single file.
type FileDescription struct {
	Size       int64             `json:"size"`
	Modified   float64           `json:"modified"`
	Parts      []Part            `json:"parts"`
	Link       string            `json:"link,omitempty"`
	ReadOnly   bool              `json:"readonly,omitempty"`
	Executable bool              `json:"executable,omitempty"`
	Rsrc       []Part            `json:"rsrc,omitempty"`
	XAttr      map[string]string `json:"xattr,omitempty"`
}

// DirEntry records an empty directory (one with no descendant files),
// optionally itself a symlink.
type DirEntry struct {
	Link string `json:"link,omitempty"`
}

// Description is a bundle document: a directory snapshot, possibly split
// across sub-bundles.
type Description struct {
	Files       map[string]FileDescription `json:"files"`
	Directories map[string]DirEntry        `json:"directories,omitempty"`
	Bundles     []string                   `json:"bundles,omitempty"`
	Timestamp   float64                    `json:"timestamp"`
	Index       string                     `json:"index,omitempty"`
}

// serialize renders description the same way on every call: sorted keys,
// no extraneous whitespace. Bundle size limits are enforced against this
// exact encoding, so its stability matters as much as its content.
func serialize(description interface{}) ([]byte, error) {
	encoded, err := json.Marshal(description)
	if err != nil {
		return nil, err
	}

	// Struct fields marshal in declaration order; re-encoding the decoded
	// generic value makes encoding/json emit every object's keys sorted.
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()

	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}
