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

// Package ecies implements the hybrid encryption scheme this codebase
// uses to seal data to a recipient's EC public key: ECDH key agreement
// over a per-message ephemeral key, SHA-512 key derivation, AES-256-CBC
// with a zero IV over a zero-padded final block, and an HMAC-SHA-512
// authentication tag computed over the ciphertext. The result is
// carried in a cryptex.Container.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/lavabit/magmad/internal/cryptex"
	"github.com/lavabit/magmad/internal/eckeys"
)

const (
	symKeyLen   = 32 // AES-256 key size.
	macKeyLen   = 32 // Remaining half of the envelope key, used for HMAC.
	blockSize   = aes.BlockSize
	macDigest   = sha512.Size
	envelopeLen = symKeyLen + macKeyLen
)

// ErrAuthenticationFailed is returned when a container's MAC does not
// match the data, meaning it was corrupted or tampered with after
// encryption (or the wrong private key was supplied).
var ErrAuthenticationFailed = errors.New("ecies: authentication failed")

// deriveEnvelope hashes the raw ECDH shared point into a 64-byte
// envelope key: the first half is the AES-256 key, the second half is
// the HMAC-SHA-512 key.
func deriveEnvelope(shared []byte) [envelopeLen]byte {
	return sha512.Sum512(shared)
}

// Encrypt seals data to pub: a fresh ephemeral key pair is generated,
// an envelope key is derived via ECDH + SHA-512, and data is encrypted
// under AES-256-CBC with a zero IV, with the final partial block
// zero-padded before encryption. The returned container's key region
// holds the ephemeral public key, mac region holds an HMAC-SHA-512
// over the ciphertext, and body region holds the ciphertext itself.
func Encrypt(pub *eckeys.PublicKey, data []byte) (*cryptex.Container, error) {
	if pub == nil {
		return nil, fmt.Errorf("ecies: nil recipient public key")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ecies: empty plaintext")
	}

	ephemeral, err := eckeys.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("ecies: generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecies: ecdh: %w", err)
	}
	envelope := deriveEnvelope(shared)

	keyOctets := ephemeral.Public().Octets()

	bodyLen := uint64(len(data))
	if rem := bodyLen % blockSize; rem != 0 {
		bodyLen += blockSize - rem
	}

	container, err := cryptex.Alloc(uint64(len(keyOctets)), macDigest, uint64(len(data)), bodyLen)
	if err != nil {
		return nil, fmt.Errorf("ecies: allocate container: %w", err)
	}
	copy(container.KeyBytes(), keyOctets)

	block, err := aes.NewCipher(envelope[:symKeyLen])
	if err != nil {
		return nil, fmt.Errorf("ecies: aes cipher: %w", err)
	}
	iv := make([]byte, blockSize)
	cbc := cipher.NewCBCEncrypter(block, iv)

	padded := make([]byte, bodyLen)
	copy(padded, data)
	cbc.CryptBlocks(container.BodyBytes(), padded)

	mac := hmac.New(sha512.New, envelope[symKeyLen:])
	mac.Write(container.BodyBytes())
	copy(container.MacBytes(), mac.Sum(nil))

	return container, nil
}

// Decrypt opens a container sealed with Encrypt using priv. The MAC is
// verified in constant time before any plaintext is returned.
func Decrypt(priv *eckeys.PrivateKey, container *cryptex.Container) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("ecies: nil recipient private key")
	}
	if container == nil {
		return nil, fmt.Errorf("ecies: nil container")
	}

	ephemeral, err := eckeys.ParsePublicOctets(container.KeyBytes())
	if err != nil {
		return nil, fmt.Errorf("ecies: ephemeral key: %w", err)
	}

	shared, err := priv.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("ecies: ecdh: %w", err)
	}
	envelope := deriveEnvelope(shared)

	mac := hmac.New(sha512.New, envelope[symKeyLen:])
	mac.Write(container.BodyBytes())
	expected := mac.Sum(nil)

	if len(expected) != len(container.MacBytes()) || subtle.ConstantTimeCompare(expected, container.MacBytes()) != 1 {
		return nil, ErrAuthenticationFailed
	}

	block, err := aes.NewCipher(envelope[:symKeyLen])
	if err != nil {
		return nil, fmt.Errorf("ecies: aes cipher: %w", err)
	}
	iv := make([]byte, blockSize)
	cbc := cipher.NewCBCDecrypter(block, iv)

	plaintext := make([]byte, container.BodyLen())
	cbc.CryptBlocks(plaintext, container.BodyBytes())

	if container.OrigLen() > uint64(len(plaintext)) {
		return nil, fmt.Errorf("%w: declared original length exceeds body", ErrAuthenticationFailed)
	}
	return plaintext[:container.OrigLen()], nil
}
