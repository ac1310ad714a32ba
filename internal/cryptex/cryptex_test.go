package cryptex

import (
	"bytes"
	"errors"
	"testing"
)

func TestAllocRoundTrip(t *testing.T) {
	c, err := Alloc(67, 64, 100, 112)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	copy(c.KeyBytes(), bytes.Repeat([]byte{0xAA}, 67))
	copy(c.MacBytes(), bytes.Repeat([]byte{0xBB}, 64))
	copy(c.BodyBytes(), bytes.Repeat([]byte{0xCC}, 112))

	if c.TotalLen() != 32+67+64+112 {
		t.Fatalf("TotalLen = %d, want %d", c.TotalLen(), 32+67+64+112)
	}

	parsed, err := Parse(c.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.KeyLen() != 67 || parsed.MacLen() != 64 || parsed.BodyLen() != 112 || parsed.OrigLen() != 100 {
		t.Fatalf("Parse lengths mismatch: %+v", parsed)
	}
	if !bytes.Equal(parsed.KeyBytes(), c.KeyBytes()) {
		t.Fatal("key region mismatch after parse")
	}
	if !bytes.Equal(parsed.MacBytes(), c.MacBytes()) {
		t.Fatal("mac region mismatch after parse")
	}
	if !bytes.Equal(parsed.BodyBytes(), c.BodyBytes()) {
		t.Fatal("body region mismatch after parse")
	}
}

func TestAllocZeroLengthRejected(t *testing.T) {
	cases := []struct {
		key, mac, orig, body uint64
	}{
		{0, 64, 10, 10},
		{67, 0, 10, 10},
		{67, 64, 10, 0},
	}
	for _, c := range cases {
		if _, err := Alloc(c.key, c.mac, c.orig, c.body); !errors.Is(err, ErrInvalidContainer) {
			t.Errorf("Alloc(%d,%d,%d,%d) = %v, want ErrInvalidContainer", c.key, c.mac, c.orig, c.body, err)
		}
	}
}

func TestParseTooShort(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); !errors.Is(err, ErrInvalidContainer) {
		t.Fatalf("Parse short buffer = %v, want ErrInvalidContainer", err)
	}
}

func TestParseLengthMismatch(t *testing.T) {
	c, err := Alloc(67, 64, 10, 10)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	truncated := c.Bytes()[:len(c.Bytes())-1]
	if _, err := Parse(truncated); !errors.Is(err, ErrInvalidContainer) {
		t.Fatalf("Parse truncated buffer = %v, want ErrInvalidContainer", err)
	}

	padded := append(c.Bytes(), 0)
	if _, err := Parse(padded); !errors.Is(err, ErrInvalidContainer) {
		t.Fatalf("Parse padded buffer = %v, want ErrInvalidContainer", err)
	}
}

func TestWipe(t *testing.T) {
	c, err := Alloc(67, 64, 10, 10)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	copy(c.BodyBytes(), bytes.Repeat([]byte{0xFF}, 10))
	c.Wipe()
	for _, b := range c.Bytes() {
		if b != 0 {
			t.Fatal("Wipe left non-zero byte")
		}
	}
}
