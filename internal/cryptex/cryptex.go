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

// Package cryptex implements the secure container used to carry the
// result of an ECIES encryption: a fixed, packed little-endian header
// followed by the ephemeral public key, the MAC, and the ciphertext
// body, laid out contiguously with no version byte and no padding
// between regions. The layout is part of the wire/disk format and must
// not change.
package cryptex

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// headerSize is the size in bytes of the four little-endian uint64
// length fields that open every container.
const headerSize = 32

// ErrInvalidContainer is returned when a buffer's header does not
// describe its own length, or a zero-length region was requested.
var ErrInvalidContainer = errors.New("cryptex: invalid container")

// Container is a secure container buffer: header + key + mac + body,
// contiguous in that order. It owns its backing array.
type Container struct {
	buf     []byte
	keyLen  uint64
	macLen  uint64
	origLen uint64
	bodyLen uint64
}

// Alloc allocates a zeroed container with the given region lengths.
// The header is written immediately; callers fill the three regions
// via KeyBytes/MacBytes/BodyBytes before the container is used.
func Alloc(keyLen, macLen, origLen, bodyLen uint64) (*Container, error) {
	if keyLen == 0 || macLen == 0 || bodyLen == 0 {
		return nil, fmt.Errorf("%w: zero-length region", ErrInvalidContainer)
	}

	total := headerSize + keyLen + macLen + bodyLen
	c := &Container{
		buf:     make([]byte, total),
		keyLen:  keyLen,
		macLen:  macLen,
		origLen: origLen,
		bodyLen: bodyLen,
	}
	c.writeHeader()
	return c, nil
}

func (c *Container) writeHeader() {
	binary.LittleEndian.PutUint64(c.buf[0:8], c.keyLen)
	binary.LittleEndian.PutUint64(c.buf[8:16], c.macLen)
	binary.LittleEndian.PutUint64(c.buf[16:24], c.origLen)
	binary.LittleEndian.PutUint64(c.buf[24:32], c.bodyLen)
}

// Parse validates a wire/disk buffer's header against the delivered
// byte count and returns a Container view over it. No copy is made;
// the returned Container aliases raw.
func Parse(raw []byte) (*Container, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: buffer shorter than header", ErrInvalidContainer)
	}

	keyLen := binary.LittleEndian.Uint64(raw[0:8])
	macLen := binary.LittleEndian.Uint64(raw[8:16])
	origLen := binary.LittleEndian.Uint64(raw[16:24])
	bodyLen := binary.LittleEndian.Uint64(raw[24:32])

	if keyLen == 0 || macLen == 0 || bodyLen == 0 {
		return nil, fmt.Errorf("%w: zero-length region in header", ErrInvalidContainer)
	}

	want := headerSize + keyLen + macLen + bodyLen
	if uint64(len(raw)) != want {
		return nil, fmt.Errorf("%w: header declares %d bytes, buffer has %d", ErrInvalidContainer, want, len(raw))
	}

	return &Container{buf: raw, keyLen: keyLen, macLen: macLen, origLen: origLen, bodyLen: bodyLen}, nil
}

// KeyBytes returns the ephemeral-public-key region.
func (c *Container) KeyBytes() []byte {
	return c.buf[headerSize : headerSize+c.keyLen]
}

// MacBytes returns the MAC region.
func (c *Container) MacBytes() []byte {
	start := headerSize + c.keyLen
	return c.buf[start : start+c.macLen]
}

// BodyBytes returns the ciphertext body region.
func (c *Container) BodyBytes() []byte {
	start := headerSize + c.keyLen + c.macLen
	return c.buf[start : start+c.bodyLen]
}

// KeyLen, MacLen, BodyLen, OrigLen, TotalLen return the recorded
// lengths of each region and of the buffer as a whole.
func (c *Container) KeyLen() uint64  { return c.keyLen }
func (c *Container) MacLen() uint64  { return c.macLen }
func (c *Container) BodyLen() uint64 { return c.bodyLen }
func (c *Container) OrigLen() uint64 { return c.origLen }
func (c *Container) TotalLen() uint64 {
	return headerSize + c.keyLen + c.macLen + c.bodyLen
}

// Bytes returns the full wire/disk representation: header followed by
// the three regions, contiguous, little-endian. The returned slice
// aliases the Container's internal buffer.
func (c *Container) Bytes() []byte {
	return c.buf
}

// Wipe zeroes the entire buffer, including the header. Callers that
// derive a Container from sensitive key material should call Wipe
// once the container has been consumed (written to the wire, or
// decrypted and no longer needed).
func (c *Container) Wipe() {
	for i := range c.buf {
		c.buf[i] = 0
	}
}
