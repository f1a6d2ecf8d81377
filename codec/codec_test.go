package codec

import (
	"bytes"
	"sync"
	"testing"

	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/digest"
)

// memStore is a minimal in-memory Putter+Getter for exercising the codec
// without depending on the blockstore package.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Put(url string, data []byte) error {
	addr, err := blockurl.Address(url)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[addr] = append([]byte{}, data...)
	return nil
}

func (m *memStore) Get(url string) ([]byte, bool, error) {
	addr, err := blockurl.Address(url)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[addr]
	return data, ok, nil
}

func TestStoreFetchRoundTripPlain(t *testing.T) {
	store := newMemStore()
	payload := []byte("hello, libernet")

	url, stored, err := Store(payload, store, Plain(), nil, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if digest.Sum(stored) != digest.Sum(payload) {
		t.Fatalf("unencrypted store must keep addr == digest(stored bytes)")
	}

	got, err := Fetch(url, store, false, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}

func TestStoreFetchRoundTripContentKey(t *testing.T) {
	store := newMemStore()
	payload := bytes.Repeat([]byte("compress me please "), 200)

	url, _, err := Store(payload, store, WithContentKey(), nil, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	parsed, err := blockurl.Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Kind != blockurl.AES256 {
		t.Fatalf("expected an aes256 url, got %v", parsed.Kind)
	}

	got, err := Fetch(url, store, false, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch for compressible content-key block")
	}
}

func TestStoreFetchRoundTripPassphrase(t *testing.T) {
	store := newMemStore()
	payload := []byte("a secret")

	url, _, err := Store(payload, store, WithPassphrase("correct horse battery staple"), nil, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := Fetch(url, store, false, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}

func TestFetchByPassphraseRewritesDataURL(t *testing.T) {
	store := newMemStore()
	payload := []byte("rewrite me")
	password := "hunter2"

	url, _, err := Store(payload, store, WithPassphrase(password), nil, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	addrOnly, err := blockurl.Address(url)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}

	got, err := Fetch(addrOnly, store, false, password)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch via passphrase rewrite: got %q, want %q", got, payload)
	}
}

func TestFetchWrongPassphraseFails(t *testing.T) {
	store := newMemStore()
	payload := []byte("rewrite me")

	url, _, err := Store(payload, store, WithPassphrase("right"), nil, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	addrOnly, err := blockurl.Address(url)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}

	if _, err := Fetch(addrOnly, store, false, "wrong"); err == nil {
		t.Fatalf("expected an error decrypting with the wrong passphrase")
	}
}

func TestStoreMatchesTargetPrefix(t *testing.T) {
	store := newMemStore()
	target := digest.Sum([]byte("target for similarity"))
	score := 12

	url, _, err := Store([]byte("find me near the target"), store, Plain(), &target, score)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	parsed, err := blockurl.Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := digest.MatchScore(target, parsed.Addr); got < score {
		t.Fatalf("expected match score >= %d, got %d", score, got)
	}

	got, err := Fetch(url, store, true, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if string(got) != "find me near the target" {
		t.Fatalf("unexpected content after stripping padding: %q", got)
	}
}

func TestStoreMatchesTargetPrefixEncrypted(t *testing.T) {
	store := newMemStore()
	target := digest.Sum([]byte("another target"))
	score := 10

	url, _, err := Store([]byte("secret near target"), store, WithContentKey(), &target, score)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	parsed, err := blockurl.Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := digest.MatchScore(target, parsed.Addr); got < score {
		t.Fatalf("expected match score >= %d, got %d", score, got)
	}

	got, err := Fetch(url, store, true, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if string(got) != "secret near target" {
		t.Fatalf("unexpected content after decrypting padded block: %q", got)
	}
}

func TestFetchMissingBlockReturnsNilNil(t *testing.T) {
	store := newMemStore()
	id := digest.Sum([]byte("never stored"))

	got, err := Fetch(blockurl.ForData(id, false), store, false, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if got != nil {
		t.Fatalf("expected nil for a missing block, got %q", got)
	}
}

func TestStoreRejectsOversizedBlock(t *testing.T) {
	store := newMemStore()
	big := bytes.Repeat([]byte{'x'}, MaxBlockSize+1)

	if _, _, err := Store(big, store, Plain(), nil, 0); err == nil {
		t.Fatalf("expected an error storing a block larger than MaxBlockSize")
	}
}

func TestStoreEmptyData(t *testing.T) {
	store := newMemStore()

	url, _, err := Store(nil, store, Plain(), nil, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := Fetch(url, store, false, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("expected empty round trip, got %q", got)
	}
}
