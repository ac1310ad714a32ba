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

package session

import (
	"sync"
	"sync/atomic"

	"github.com/lavabit/magmad/internal/mailbox"
)

// UserState is the concurrency-safe aggregate backing every protocol
// session for one (user_id, protocol) pair. All mutating core
// operations take the writer lock; all reads take the reader lock.
type UserState struct {
	UserID   uint64
	Protocol string
	Mailbox  *mailbox.Mailbox

	mu       sync.RWMutex
	refcount int32
	evicting atomic.Bool

	serials map[ObjectClass]uint64
}

// newUserState wraps mb for (userID, protocol) with a zero refcount;
// the caller must Acquire it before handing it to a session.
func newUserState(userID uint64, protocol string, mb *mailbox.Mailbox) *UserState {
	return &UserState{
		UserID:   userID,
		Protocol: protocol,
		Mailbox:  mb,
		serials:  make(map[ObjectClass]uint64),
	}
}

// Lock/Unlock/RLock/RUnlock expose the UserState's reader/writer lock
// directly so callers can hold it across several mailbox operations
// within a single RPC handler, per §4.7's "acquire writer lock, do the
// change, release" template.
func (us *UserState) Lock()    { us.mu.Lock() }
func (us *UserState) Unlock()  { us.mu.Unlock() }
func (us *UserState) RLock()   { us.mu.RLock() }
func (us *UserState) RUnlock() { us.mu.RUnlock() }

// acquire increments the reference count and reports whether it
// succeeded; it fails if the instance is mid-eviction, in which case
// the caller must retry against a freshly created instance.
func (us *UserState) acquire() bool {
	if us.evicting.Load() {
		return false
	}
	atomic.AddInt32(&us.refcount, 1)
	if us.evicting.Load() {
		// Eviction began concurrently with our increment; back out and
		// let the caller retry rather than attach to a dying instance.
		atomic.AddInt32(&us.refcount, -1)
		return false
	}
	return true
}

// release decrements the reference count and reports whether it
// reached zero, in which case the caller (the registry) should begin
// eviction.
func (us *UserState) release() bool {
	return atomic.AddInt32(&us.refcount, -1) == 0
}

// beginEviction attempts the atomic state transition that closes the
// last-drop/new-acquire race: it only succeeds if the refcount is
// still zero at the moment eviction is requested.
func (us *UserState) beginEviction() bool {
	if atomic.LoadInt32(&us.refcount) != 0 {
		return false
	}
	us.evicting.Store(true)
	if atomic.LoadInt32(&us.refcount) != 0 {
		us.evicting.Store(false)
		return false
	}
	return true
}

// localSerial returns the UserState's cached view of class without
// consulting the external store.
func (us *UserState) localSerial(class ObjectClass) uint64 {
	return us.serials[class]
}

// setLocalSerial overwrites the cached view of class, used when a
// refresh pulls the authoritative value in from the external store.
func (us *UserState) setLocalSerial(class ObjectClass, v uint64) {
	us.serials[class] = v
}
