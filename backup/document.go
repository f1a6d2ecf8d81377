// Package backup implements libernet's per-user backup schedule: a small
// encrypted document, itself stored as a block discoverable by digest
// prefix, recording which directories a machine backs up and the bundle
// URL each was last snapshotted to.
//
// Grounded on libernet/backup.py, from _examples/original_source.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/codec"
	"github.com/marcpage/libernet/digest"
	"github.com/marcpage/libernet/platutil"
)

// DocumentType is the recorded "type" field of a backup document, used to
// reject unrelated blocks that happen to share an identifier prefix.
const DocumentType = "backup"

// SourceState records the outcome of the most recent successful backup of
// one source directory. A nil *SourceState (in Document.Backup) means the
// directory has been added to the schedule but never yet backed up.
type SourceState struct {
	URL       string  `json:"url"`
	Timestamp float64 `json:"timestamp"`
}

// Document is a user's backup schedule: the set of directories backed up
// per machine, and the bundle each was most recently snapshotted to.
type Document struct {
	Type       string                             `json:"type"`
	Timestamp  float64                            `json:"timestamp"`
	User       string                             `json:"user"`
	Passphrase string                             `json:"passphrase"`
	Previous   []string                           `json:"previous,omitempty"`
	Backup     map[string]map[string]*SourceState `json:"backup,omitempty"`
}

// SimilarIdentifier returns the digest prefix target under which user's
// backup document for the month containing at is discoverable: every
// machine backing up the same user publishes (and re-discovers) its
// document under this same identifier, via a "like" query.
func SimilarIdentifier(user string, at time.Time) digest.Identifier {
	text := fmt.Sprintf("USER:%s@%s", user, at.Format("2006-01"))
	return digest.Sum([]byte(text))
}

// TargetMatchScore returns the match score a new backup document's address
// must beat (by prefix-padding) to remain discoverable: as long as fewer
// than blockstore.MaxLike documents already share the target's prefix, the
// codec's default score suffices; once the slot is full, the bar is the
// worst surviving entry's score plus one.
func TargetMatchScore(target digest.Identifier, store blockstore.Store) (int, error) {
	existing, err := store.Like(target, nil)
	if err != nil {
		return 0, err
	}
	if len(existing) < blockstore.MaxLike {
		return codec.DefaultMatchScore, nil
	}

	best := -1
	for url := range existing {
		parsed, err := blockurl.Parse(url)
		if err != nil {
			return 0, fmt.Errorf("backup: parsing like result %q: %w", url, err)
		}

		score := digest.MatchScore(parsed.Addr, target)
		if best == -1 || score < best {
			best = score
		}
	}

	return best + 1, nil
}

// Save compresses and encrypts doc under the user's current-month
// identifier and stores it, padding for discoverability until it beats
// TargetMatchScore. The document's own compression is applied here, not
// left to codec: a passphrase-encrypted block (codec.WithPassphrase) never
// auto-compresses, since compression there would only help an attacker
// guess the plaintext, so backup documents - which gain real, deliberate
// benefit from compressing their JSON - do it themselves before handing
// bytes to codec, mirroring block.py's explicit zlib.compress call right
// before libernet.block.store in __save_backup.
func Save(doc *Document, store blockstore.Store) (string, error) {
	doc.Type = DocumentType
	doc.Timestamp = platutil.Now()

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("backup: encoding document: %w", err)
	}

	compressed, err := compress(raw)
	if err != nil {
		return "", err
	}

	similar := SimilarIdentifier(doc.User, platutil.ToUnix(doc.Timestamp))
	score, err := TargetMatchScore(similar, store)
	if err != nil {
		return "", err
	}

	url, _, err := codec.Store(compressed, store, codec.WithPassphrase(doc.Passphrase), &similar, score)
	if err != nil {
		return "", fmt.Errorf("backup: storing document: %w", err)
	}

	return url, nil
}

// loadSettingsData fetches and validates a single backup-document
// candidate. Any failure - missing block, wrong password, malformed JSON,
// a mismatched type/user/passphrase - simply rejects the candidate (nil,
// nil), mirroring __load_settings_data's broad except clause: digest
// collisions on the shared identifier prefix are expected, not errors.
func loadSettingsData(url string, store blockstore.Store, user, passphrase string) (*Document, error) {
	data, err := codec.Fetch(url, store, true, passphrase)
	if err != nil || data == nil {
		return nil, nil
	}

	uncompressed, err := decompress(data)
	if err != nil {
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(uncompressed, &doc); err != nil {
		return nil, nil
	}

	if doc.Type != DocumentType || doc.User != user || doc.Passphrase != passphrase {
		return nil, nil
	}

	return &doc, nil
}

// Confirmer asks the user whether to create a brand-new backup document
// when none could be found under the searched identifiers.
type Confirmer func(prompt string) (bool, error)

// monthDuration approximates libernet's ONE_MONTH_IN_SECONDS constant: a
// fixed fraction of a year, not a calendar month.
const monthDuration = 365 * 24 * time.Hour / 12

// Load discovers and merges every backup document published for user
// across the last months months, decrypting candidates with passphrase.
// If nothing is found, it asks confirm whether to start a fresh document,
// returning an error if the answer (or lack of one) is no.
func Load(user, passphrase string, store blockstore.Store, months int, now time.Time, confirm Confirmer) (*Document, error) {
	candidates := map[string]*Document{}

	for monthsAgo := 0; monthsAgo < months; monthsAgo++ {
		checkTime := now.Add(-time.Duration(monthsAgo) * monthDuration)
		target := SimilarIdentifier(user, checkTime)

		matches, err := store.Like(target, nil)
		if err != nil {
			return nil, err
		}

		for url := range matches {
			if _, seen := candidates[url]; seen {
				continue
			}

			doc, err := loadSettingsData(url, store, user, passphrase)
			if err != nil {
				return nil, err
			}
			candidates[url] = doc
		}
	}

	for url, doc := range candidates {
		if doc == nil {
			delete(candidates, url)
		}
	}

	for _, doc := range candidates {
		for _, previous := range doc.Previous {
			delete(candidates, previous)
		}
	}

	merged := mergeBackups(candidates)
	if len(merged.Backup) > 0 {
		return merged, nil
	}

	create, err := confirm(fmt.Sprintf("Unable to find backups in the last %d months, create new? ", months))
	if err != nil {
		return nil, err
	}
	if !create {
		return nil, fmt.Errorf("backup: previous backups not found")
	}

	return &Document{
		Type:       DocumentType,
		Timestamp:  platutil.Now(),
		User:       user,
		Passphrase: passphrase,
	}, nil
}

// mergeBackups folds every candidate document, oldest timestamp first,
// keeping the most recently backed-up state per (machine, path) and the
// most recent value of every scalar field. The merged document's Previous
// list records every identifier it supersedes.
func mergeBackups(candidates map[string]*Document) *Document {
	urls := make([]string, 0, len(candidates))
	for url := range candidates {
		urls = append(urls, url)
	}
	sort.Slice(urls, func(i, j int) bool {
		return candidates[urls[i]].Timestamp < candidates[urls[j]].Timestamp
	})

	merged := &Document{
		Backup:   map[string]map[string]*SourceState{},
		Previous: append([]string{}, urls...),
	}

	for _, url := range urls {
		doc := candidates[url]
		merged.Type = doc.Type
		merged.Timestamp = doc.Timestamp
		merged.User = doc.User
		merged.Passphrase = doc.Passphrase

		for machine, paths := range doc.Backup {
			if merged.Backup[machine] == nil {
				merged.Backup[machine] = map[string]*SourceState{}
			}

			for path, state := range paths {
				previous := merged.Backup[machine][path]
				previousTime := 0.0
				if previous != nil {
					previousTime = previous.Timestamp
				}
				thisTime := 0.0
				if state != nil {
					thisTime = state.Timestamp
				}

				if thisTime >= previousTime {
					merged.Backup[machine][path] = state
				}
			}
		}
	}

	return merged
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("backup: compressing document: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("backup: compressing document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("backup: compressing document: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(data))
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("backup: decompressing document: %w", err)
	}
	return out, nil
}
