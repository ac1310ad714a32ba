/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package eckeys implements the fixed-curve (NIST P-521, equivalent to
// secp521r1) elliptic curve key codec that underlies the ECIES scheme:
// generation, hex and compressed-octet import/export, and the raw
// ECDH shared-point computation the ECIES key derivation step hashes.
package eckeys

import (
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Curve is the fixed curve every key in this package is defined over.
func Curve() elliptic.Curve { return elliptic.P521() }

// ErrInvalidKeyFormat is returned when hex input cannot be decoded
// into bytes or a scalar at all.
var ErrInvalidKeyFormat = errors.New("eckeys: invalid key format")

// ErrInvalidKey is returned when decoded input does not describe a
// valid point on the curve (including octet strings of the wrong length
// or prefix), or a scalar outside its order.
var ErrInvalidKey = errors.New("eckeys: invalid key")

// PrivateKey is an EC private scalar paired with the curve's base point.
type PrivateKey struct {
	D *big.Int
}

// PublicKey is a point on Curve().
type PublicKey struct {
	X, Y *big.Int
}

// GenerateKey creates a new random private key.
func GenerateKey() (*PrivateKey, error) {
	d, _, _, err := elliptic.GenerateKey(Curve(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("eckeys: generate: %w", err)
	}
	return &PrivateKey{D: new(big.Int).SetBytes(d)}, nil
}

// Public derives the public key corresponding to priv.
func (priv *PrivateKey) Public() *PublicKey {
	x, y := Curve().ScalarBaseMult(priv.D.Bytes())
	return &PublicKey{X: x, Y: y}
}

// PrivateHex encodes the private scalar as uppercase hex, matching the
// BN_bn2hex representation the original codec stores on disk.
func (priv *PrivateKey) PrivateHex() string {
	return fmt.Sprintf("%X", priv.D)
}

// ParsePrivateHex decodes a hex-encoded private scalar, rejecting a
// scalar that is not in the range [1, N-1] of the curve order.
func ParsePrivateHex(s string) (*PrivateKey, error) {
	d, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: private scalar", ErrInvalidKeyFormat)
	}
	if d.Sign() <= 0 || d.Cmp(Curve().Params().N) >= 0 {
		return nil, fmt.Errorf("%w: private scalar out of range", ErrInvalidKey)
	}
	return &PrivateKey{D: d}, nil
}

// PublicHex encodes pub as a compressed point in uppercase hex, the
// format ecies_key_public_get_hex produces via EC_POINT_point2hex with
// POINT_CONVERSION_COMPRESSED.
func (pub *PublicKey) PublicHex() string {
	return strings.ToUpper(hex.EncodeToString(pub.Octets()))
}

// Octets returns pub encoded as a compressed elliptic curve point.
func (pub *PublicKey) Octets() []byte {
	return elliptic.MarshalCompressed(Curve(), pub.X, pub.Y)
}

// ParsePublicHex decodes a hex-encoded compressed point.
func ParsePublicHex(s string) (*PublicKey, error) {
	octets, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return ParsePublicOctets(octets)
}

// ParsePublicOctets decodes a compressed-point octet string into a
// PublicKey, rejecting points not on Curve().
func ParsePublicOctets(octets []byte) (*PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(Curve(), octets)
	if x == nil {
		return nil, fmt.Errorf("%w: point not on curve", ErrInvalidKey)
	}
	return &PublicKey{X: x, Y: y}, nil
}

// ECDH computes the shared point between priv and pub and returns the
// big-endian, curve-size-padded X coordinate — the same raw secret
// ECDH_compute_key produces before a KDF is applied. Callers pass this
// through a key derivation step (SHA-512 in this codebase's ECIES
// implementation) before using it as key material.
func (priv *PrivateKey) ECDH(pub *PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrInvalidKey)
	}
	x, _ := Curve().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	if x.Sign() == 0 {
		return nil, fmt.Errorf("%w: shared point at infinity", ErrInvalidKey)
	}

	size := (Curve().Params().BitSize + 7) / 8
	out := make([]byte, size)
	x.FillBytes(out)
	return out, nil
}
