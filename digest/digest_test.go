package digest

import "testing"

func TestSumAndString(t *testing.T) {
	id := Sum([]byte("hello"))

	if len(id.String()) != HexSize {
		t.Fatalf("expected %d hex chars, got %d", HexSize, len(id.String()))
	}

	reparsed, err := FromHex(id.String())
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}

	if reparsed != id {
		t.Fatalf("round trip mismatch: %v != %v", reparsed, id)
	}
}

func TestFromHexRejectsBadLength(t *testing.T) {
	if _, err := FromHex("abc"); err == nil {
		t.Fatal("expected error for short identifier")
	}
}

func TestMatchScoreIdentical(t *testing.T) {
	id := Sum([]byte("same"))

	if score := MatchScore(id, id); score != Size*8 {
		t.Fatalf("expected %d, got %d", Size*8, score)
	}
}

func TestMatchScoreFirstNibbleDiffers(t *testing.T) {
	a := Identifier{}
	b := Identifier{}
	a[0] = 0x00
	b[0] = 0xF0 // differs in the top bit already

	if score := MatchScore(a, b); score != 0 {
		t.Fatalf("expected 0, got %d", score)
	}
}

func TestMatchScoreExactBit(t *testing.T) {
	a := Identifier{}
	b := Identifier{}
	// differ starting at bit 9 (second byte, top bit)
	b[1] = 0x80

	if score := MatchScore(a, b); score != 8 {
		t.Fatalf("expected 8, got %d", score)
	}
}

func TestMatchScoreWithinByte(t *testing.T) {
	a := Identifier{}
	b := Identifier{}
	a[0] = 0b11111000
	b[0] = 0b11111100 // differ at bit index 5 (0-based from MSB)

	if score := MatchScore(a, b); score != 5 {
		t.Fatalf("expected 5, got %d", score)
	}
}
