package blockurl

import (
	"strings"
	"testing"

	"github.com/marcpage/libernet/digest"
)

func TestParseDataURL(t *testing.T) {
	id := digest.Sum([]byte("hello"))
	url := ForData(id, false)

	parsed, err := Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Kind != Data || parsed.Addr != id || parsed.ContentID != id {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseLikeURL(t *testing.T) {
	target := digest.Sum([]byte("target"))
	url := ForData(target, true)

	parsed, err := Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Kind != Like || parsed.Addr != target {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseEncryptedAES256(t *testing.T) {
	addr := digest.Sum([]byte("cipher"))
	key := digest.Sum([]byte("plain"))
	url, err := ForEncrypted(addr, key, AES256)
	if err != nil {
		t.Fatalf("ForEncrypted: %v", err)
	}

	parsed, err := Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Kind != AES256 || parsed.Addr != addr || parsed.KeyID != key || parsed.ContentID != key {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseEncryptedPassphrase(t *testing.T) {
	addr := digest.Sum([]byte("cipher"))
	key := digest.Sum([]byte("password"))
	url, err := ForEncrypted(addr, key, Passphrase)
	if err != nil {
		t.Fatalf("ForEncrypted: %v", err)
	}

	parsed, err := Parse(url)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Kind != Passphrase || !parsed.ContentID.IsZero() {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"/sha256",
		"not-absolute",
		"/sha256/short",
		"/sha256/" + strings.Repeat("a", 64) + "/bogus/" + strings.Repeat("b", 64),
	}

	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected error parsing %q", c)
		}
	}
}

func TestAddressDropsKeySuffix(t *testing.T) {
	addr := digest.Sum([]byte("cipher"))
	key := digest.Sum([]byte("plain"))
	url, _ := ForEncrypted(addr, key, AES256)

	plain, err := Address(url)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}

	if plain != ForData(addr, false) {
		t.Fatalf("expected %q, got %q", ForData(addr, false), plain)
	}
}
