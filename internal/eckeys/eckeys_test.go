package eckeys

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateAndHexRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	privHex := priv.PrivateHex()
	priv2, err := ParsePrivateHex(privHex)
	if err != nil {
		t.Fatalf("ParsePrivateHex: %v", err)
	}
	if priv.D.Cmp(priv2.D) != 0 {
		t.Fatal("private scalar mismatch after hex round trip")
	}

	pub := priv.Public()
	pubHex := pub.PublicHex()
	pub2, err := ParsePublicHex(pubHex)
	if err != nil {
		t.Fatalf("ParsePublicHex: %v", err)
	}
	if pub.X.Cmp(pub2.X) != 0 || pub.Y.Cmp(pub2.Y) != 0 {
		t.Fatal("public point mismatch after hex round trip")
	}
}

func TestPublicOctetsRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub := priv.Public()

	octets := pub.Octets()
	if len(octets) != 67 {
		t.Fatalf("compressed P-521 point length = %d, want 67", len(octets))
	}

	parsed, err := ParsePublicOctets(octets)
	if err != nil {
		t.Fatalf("ParsePublicOctets: %v", err)
	}
	if parsed.X.Cmp(pub.X) != 0 || parsed.Y.Cmp(pub.Y) != 0 {
		t.Fatal("public point mismatch after octet round trip")
	}
}

func TestECDHAgreement(t *testing.T) {
	alice, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	bob, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	shared1, err := alice.ECDH(bob.Public())
	if err != nil {
		t.Fatalf("alice.ECDH: %v", err)
	}
	shared2, err := bob.ECDH(alice.Public())
	if err != nil {
		t.Fatalf("bob.ECDH: %v", err)
	}

	if !bytes.Equal(shared1, shared2) {
		t.Fatal("ECDH shared secrets do not agree")
	}
	if len(shared1) != 66 {
		t.Fatalf("shared secret length = %d, want 66 (P-521 field size)", len(shared1))
	}
}

func TestParsePublicOctetsRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicOctets([]byte{0x01, 0x02, 0x03}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("ParsePublicOctets(garbage) = %v, want ErrInvalidKey", err)
	}
}

func TestParsePrivateHexRejectsGarbage(t *testing.T) {
	if _, err := ParsePrivateHex("not hex!!"); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("ParsePrivateHex(garbage) = %v, want ErrInvalidKeyFormat", err)
	}
	if _, err := ParsePrivateHex("0"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("ParsePrivateHex(0) = %v, want ErrInvalidKey", err)
	}
}

func TestParsePublicHexRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicHex("zz"); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("ParsePublicHex(odd hex) = %v, want ErrInvalidKeyFormat", err)
	}
}
