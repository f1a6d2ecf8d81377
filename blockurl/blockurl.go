// Package blockurl parses and constructs the four content-URL shapes that
// name blocks in libernet:
//
//	/sha256/{addr}                       data
//	/sha256/{addr}/aes256/{content_id}   encrypted, key derived from content
//	/sha256/{addr}/passphrase/{key_id}   encrypted, key derived from a password
//	/sha256/like/{target}                a "like" query, not an address
//
// addr always names the digest of the bytes as stored; the storage layer
// keys on addr alone, the trailing segment only tells the codec how to
// interpret what it reads back.
package blockurl

import (
	"fmt"
	"strings"

	"github.com/marcpage/libernet/digest"
)

// Kind identifies which of the four URL shapes a URL has.
type Kind int

const (
	// Data names a URL of the form /sha256/{addr}.
	Data Kind = iota
	// AES256 names a URL whose key is derived from the plaintext's own digest.
	AES256
	// Passphrase names a URL whose key is derived from a password's digest.
	Passphrase
	// Like names a /sha256/like/{target} query, not a storage address.
	Like
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case AES256:
		return "aes256"
	case Passphrase:
		return "passphrase"
	case Like:
		return "like"
	default:
		return "unknown"
	}
}

const (
	sha256Segment     = "sha256"
	aes256Segment     = "aes256"
	passphraseSegment = "passphrase"
	likeSegment       = "like"
)

// URL is a parsed content URL.
type URL struct {
	// Addr is the digest of the stored bytes (or, for a Like URL, the
	// target identifier being searched for).
	Addr digest.Identifier
	// KeyID is the digest used to derive the decryption key. Present only
	// for AES256 and Passphrase kinds.
	KeyID digest.Identifier
	// ContentID is the digest of the decrypted, decompressed plaintext.
	// Present for Data and AES256 kinds; unknown (zero) for Passphrase,
	// since a password-encrypted block carries no plaintext digest.
	ContentID digest.Identifier
	Kind      Kind
}

// Parse decodes a content URL into its address, key id, content id and
// kind. It rejects anything not matching one of the four recognized
// shapes, or whose identifiers are not 64 hex characters.
func Parse(url string) (URL, error) {
	parts := strings.Split(url, "/")

	if len(parts) < 3 || parts[0] != "" || parts[1] != sha256Segment {
		return URL{}, fmt.Errorf("blockurl: malformed url %q", url)
	}

	isLike := parts[2] == likeSegment
	isData := len(parts) == 3 && !isLike
	isEncrypted := len(parts) == 5 && (parts[3] == aes256Segment || parts[3] == passphraseSegment)

	if !isData && !isLike && !isEncrypted {
		return URL{}, fmt.Errorf("blockurl: malformed url %q", url)
	}

	addrText := parts[2]
	if isLike {
		if len(parts) != 4 {
			return URL{}, fmt.Errorf("blockurl: malformed like url %q", url)
		}
		addrText = parts[3]
	}

	addr, err := digest.FromHex(addrText)
	if err != nil {
		return URL{}, fmt.Errorf("blockurl: %w", err)
	}

	result := URL{Addr: addr}

	switch {
	case isLike:
		result.Kind = Like
	case isEncrypted:
		keyID, err := digest.FromHex(parts[4])
		if err != nil {
			return URL{}, fmt.Errorf("blockurl: %w", err)
		}
		result.KeyID = keyID

		if parts[3] == aes256Segment {
			result.Kind = AES256
			result.ContentID = keyID
		} else {
			result.Kind = Passphrase
		}
	default:
		result.Kind = Data
		result.ContentID = addr
	}

	return result, nil
}

// ForData builds the URL for a plain (unencrypted) data block, or, if
// like is true, a "like" query for the given identifier.
func ForData(id digest.Identifier, like bool) string {
	if like {
		return fmt.Sprintf("/%s/%s/%s", sha256Segment, likeSegment, id)
	}

	return fmt.Sprintf("/%s/%s", sha256Segment, id)
}

// ForEncrypted builds the URL for an encrypted block stored at addr, whose
// key is identified by keyID, of the given kind (AES256 or Passphrase).
func ForEncrypted(addr digest.Identifier, keyID digest.Identifier, kind Kind) (string, error) {
	var segment string

	switch kind {
	case AES256:
		segment = aes256Segment
	case Passphrase:
		segment = passphraseSegment
	default:
		return "", fmt.Errorf("blockurl: invalid encrypted kind %v", kind)
	}

	return fmt.Sprintf("%s/%s/%s", ForData(addr, false), segment, keyID), nil
}

// Address drops any key suffix and returns the plain data URL for addr.
func Address(url string) (string, error) {
	parsed, err := Parse(url)
	if err != nil {
		return "", err
	}

	return ForData(parsed.Addr, false), nil
}
