// Package codec implements the block codec: compression, symmetric
// encryption, key selection, and the padding loop that lets a writer force
// a block's digest to share a chosen prefix with a target identifier.
//
// Grounded on libernet/block.py (store/unpack/fetch) and
// libernet/tools/encrypt.py (aes_encrypt/aes_decrypt), from
// _examples/original_source.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/klauspost/compress/flate"

	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/digest"
)

// MaxBlockSize is the largest a stored block may ever be.
const MaxBlockSize = 1024 * 1024

// DefaultMatchScore is the number of leading bits a padded block must
// share with its target identifier when no explicit score is requested.
const DefaultMatchScore = 12

// Mode selects how Store encrypts (or doesn't encrypt) a block.
type Mode int

const (
	// NoEncryption stores data as plaintext (after optional padding).
	NoEncryption Mode = iota
	// ContentKey encrypts with a key derived from the plaintext's own digest.
	ContentKey
	// PassphraseKey encrypts with a key derived from a caller-supplied passphrase.
	PassphraseKey
)

// Encryption describes how a block should be protected.
type Encryption struct {
	Mode       Mode
	Passphrase string // only meaningful when Mode == PassphraseKey
}

// Plain requests no encryption.
func Plain() Encryption { return Encryption{Mode: NoEncryption} }

// WithContentKey requests encryption with a key derived from the block's
// own plaintext digest (anyone who already knows the plaintext, or is
// given its digest, can derive the key).
func WithContentKey() Encryption { return Encryption{Mode: ContentKey} }

// WithPassphrase requests encryption with a key derived from passphrase.
func WithPassphrase(passphrase string) Encryption {
	return Encryption{Mode: PassphraseKey, Passphrase: passphrase}
}

func (e Encryption) encrypting() bool {
	return e.Mode != NoEncryption
}

// Putter is the minimal write capability Store needs from a block store.
type Putter interface {
	Put(url string, data []byte) error
}

// Getter is the minimal read capability Fetch needs from a block store.
type Getter interface {
	// Get returns the raw stored bytes for url's address, and whether
	// they were found.
	Get(url string) ([]byte, bool, error)
}

// paddingSuffixes draws the random suffix bytes used to perturb a block's
// digest when a target identifier must be matched. The delimiter 0x00 is
// prepended so the suffix can later be found and stripped unambiguously
// (the suffix itself never contains 0x00).
func paddingSuffixes(similar *digest.Identifier, encrypting bool, score int) (dataSuffix, encryptedSuffix []byte, err error) {
	if similar == nil {
		return nil, nil, nil
	}

	raw := make([]byte, score/8+1)
	if _, err := rand.Read(raw); err != nil {
		return nil, nil, fmt.Errorf("codec: drawing padding suffix: %w", err)
	}

	stripped := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b != 0 {
			stripped = append(stripped, b)
		}
	}

	suffix := append([]byte{0x00}, stripped...)

	if encrypting {
		return nil, suffix, nil
	}

	return suffix, nil, nil
}

// maybeCompress compresses padded with DEFLATE level 9 when encrypting
// with a content-derived key, keeping the compressed form only if it is
// not larger than the input. Unencrypted blocks and passphrase-encrypted
// blocks are never compressed here: an unencrypted block's address must
// equal the digest of exactly what gets stored (testable property 2), and
// a passphrase-encrypted block has no recoverable plaintext digest to
// later confirm a successful decompression against.
func maybeCompress(padded []byte, enc Encryption) ([]byte, error) {
	if enc.Mode != ContentKey {
		return padded, nil
	}

	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("codec: creating compressor: %w", err)
	}

	if _, err := writer.Write(padded); err != nil {
		return nil, fmt.Errorf("codec: compressing: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("codec: finishing compression: %w", err)
	}

	if buf.Len() >= len(padded) {
		return padded, nil
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(data))
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("codec: decompressing: %w", err)
	}

	return buf.Bytes(), nil
}

// pkcs7Pad pads data to a multiple of aes.BlockSize, PKCS#7 style.
func pkcs7Pad(data []byte) []byte {
	padLen := aes.BlockSize - (len(data) % aes.BlockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)

	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("codec: cannot unpad empty data")
	}

	padLen := int(data[len(data)-1])

	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("codec: invalid PKCS#7 padding")
	}

	return data[:len(data)-padLen], nil
}

// zeroIV is the fixed all-zero AES-CBC initialization vector used
// throughout libernet: the AES key is never reused across distinct
// plaintexts (it is itself derived from a digest of the content, or from a
// passphrase), so a fixed IV does not create a repeated key/IV pair.
var zeroIV = bytes.Repeat([]byte{'0'}, aes.BlockSize)

func aesEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: building AES cipher: %w", err)
	}

	padded := pkcs7Pad(data)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)
	return out, nil
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: building AES cipher: %w", err)
	}

	if len(data)%aes.BlockSize != 0 || len(data) == 0 {
		return nil, fmt.Errorf("codec: ciphertext is not a multiple of the block size")
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, data)
	return pkcs7Unpad(out)
}

func unpadTrailingZero(data []byte) ([]byte, error) {
	idx := bytes.LastIndexByte(data, 0x00)

	if idx < 0 {
		return nil, fmt.Errorf("codec: expected padding delimiter, found none")
	}

	return data[:idx], nil
}

// Store prepares data, writes it to store, and returns the URL under
// which it was written plus the exact bytes that were stored.
//
//   - data: plaintext, at most MaxBlockSize bytes
//   - enc: whether/how to encrypt
//   - similar: if non-nil, the block's address is padded until it shares
//     at least score leading bits with *similar
//   - score: bits required to match similar (only meaningful if similar != nil)
func Store(data []byte, store Putter, enc Encryption, similar *digest.Identifier, score int) (string, []byte, error) {
	if len(data) > MaxBlockSize {
		return "", nil, fmt.Errorf("codec: data is %d bytes, exceeds MaxBlockSize %d", len(data), MaxBlockSize)
	}

	if score <= 0 {
		score = DefaultMatchScore
	}

	for {
		dataSuffix, encryptedSuffix, err := paddingSuffixes(similar, enc.encrypting(), score)
		if err != nil {
			return "", nil, err
		}

		padded := append(append([]byte{}, data...), dataSuffix...)

		url, stored, addr, err := encode(padded, encryptedSuffix, enc)
		if err != nil {
			return "", nil, err
		}

		if similar == nil || digest.MatchScore(*similar, addr) >= score {
			if len(stored) > MaxBlockSize {
				return "", nil, fmt.Errorf("codec: stored block is %d bytes, exceeds MaxBlockSize %d", len(stored), MaxBlockSize)
			}

			if err := store.Put(url, stored); err != nil {
				return "", nil, fmt.Errorf("codec: storing block: %w", err)
			}

			return url, stored, nil
		}
	}
}

// encode runs the compress/key-select/encrypt pipeline once, for a single
// padding attempt.
func encode(padded, encryptedSuffix []byte, enc Encryption) (url string, stored []byte, addr digest.Identifier, err error) {
	compressed, err := maybeCompress(padded, enc)
	if err != nil {
		return "", nil, digest.Zero, err
	}

	switch enc.Mode {
	case NoEncryption:
		addr = digest.Sum(compressed)
		return blockurl.ForData(addr, false), compressed, addr, nil

	case ContentKey:
		contentID := digest.Sum(padded)
		encrypted, err := aesEncrypt(contentID[:], compressed)
		if err != nil {
			return "", nil, digest.Zero, err
		}

		stored = append(encrypted, encryptedSuffix...)
		addr = digest.Sum(stored)
		url, err = blockurl.ForEncrypted(addr, contentID, blockurl.AES256)
		if err != nil {
			return "", nil, digest.Zero, err
		}

		return url, stored, addr, nil

	case PassphraseKey:
		keyID := digest.Sum([]byte(enc.Passphrase))
		encrypted, err := aesEncrypt(keyID[:], compressed)
		if err != nil {
			return "", nil, digest.Zero, err
		}

		stored = append(encrypted, encryptedSuffix...)
		addr = digest.Sum(stored)
		url, err = blockurl.ForEncrypted(addr, keyID, blockurl.Passphrase)
		if err != nil {
			return "", nil, digest.Zero, err
		}

		return url, stored, addr, nil

	default:
		return "", nil, digest.Zero, fmt.Errorf("codec: unknown encryption mode %v", enc.Mode)
	}
}

// Fetch reads and decodes the block named by url from store.
//
//   - wasSimilar: whether url's address was chosen via the padding loop
//     (so stored bytes carry a stray suffix that must be stripped)
//   - password: if non-empty and url is a plain data URL, url is rewritten
//     to the passphrase-encrypted form before reading
//
// Returns (nil, nil) if the block is absent.
func Fetch(url string, store Getter, wasSimilar bool, password string) ([]byte, error) {
	parsed, err := blockurl.Parse(url)
	if err != nil {
		return nil, err
	}

	if password != "" && parsed.Kind == blockurl.Data {
		keyID := digest.Sum([]byte(password))
		rewritten, err := blockurl.ForEncrypted(parsed.Addr, keyID, blockurl.Passphrase)
		if err != nil {
			return nil, err
		}

		url = rewritten
		parsed, err = blockurl.Parse(url)
		if err != nil {
			return nil, err
		}
	}

	addrURL := blockurl.ForData(parsed.Addr, false)
	raw, found, err := store.Get(addrURL)
	if err != nil {
		return nil, fmt.Errorf("codec: reading block: %w", err)
	}

	if !found {
		return nil, nil
	}

	switch parsed.Kind {
	case blockurl.Data:
		data := raw

		if wasSimilar {
			data, err = unpadTrailingZero(data)
			if err != nil {
				return nil, fmt.Errorf("codec: corrupt block %s: %w", url, err)
			}
		}

		if digest.Sum(raw) != parsed.Addr {
			return nil, fmt.Errorf("codec: digest mismatch for %s: block corruption", url)
		}

		return data, nil

	case blockurl.AES256:
		ciphertext := raw

		if wasSimilar {
			ciphertext, err = unpadTrailingZero(ciphertext)
			if err != nil {
				return nil, fmt.Errorf("codec: corrupt block %s: %w", url, err)
			}
		}

		if digest.Sum(raw) != parsed.Addr {
			return nil, fmt.Errorf("codec: digest mismatch for %s: block corruption", url)
		}

		decrypted, err := aesDecrypt(parsed.KeyID[:], ciphertext)
		if err != nil {
			return nil, fmt.Errorf("codec: decrypting %s: %w", url, err)
		}

		plain := decrypted
		if digest.Sum(decrypted) != parsed.ContentID {
			plain, err = decompress(decrypted)
			if err != nil {
				return nil, fmt.Errorf("codec: decompressing %s: %w", url, err)
			}

			if digest.Sum(plain) != parsed.ContentID {
				return nil, fmt.Errorf("codec: digest mismatch after decompressing %s: block corruption", url)
			}
		}

		return plain, nil

	case blockurl.Passphrase:
		ciphertext := raw

		if wasSimilar {
			ciphertext, err = unpadTrailingZero(ciphertext)
			if err != nil {
				return nil, fmt.Errorf("codec: corrupt block %s: %w", url, err)
			}
		}

		if digest.Sum(raw) != parsed.Addr {
			return nil, fmt.Errorf("codec: digest mismatch for %s: block corruption", url)
		}

		decrypted, err := aesDecrypt(parsed.KeyID[:], ciphertext)
		if err != nil {
			return nil, fmt.Errorf("codec: decrypting %s: %w", url, err)
		}

		return decrypted, nil

	default:
		return nil, fmt.Errorf("codec: cannot fetch a %s url", parsed.Kind)
	}
}
