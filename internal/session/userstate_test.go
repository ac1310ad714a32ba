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

import "testing"

func TestUserStateAcquireRelease(t *testing.T) {
	us := newUserState(1, "imap", nil)

	if !us.acquire() {
		t.Fatal("acquire on a fresh instance should succeed")
	}
	if !us.acquire() {
		t.Fatal("second acquire should succeed")
	}

	if us.release() {
		t.Fatal("release should not report zero after a second concurrent holder")
	}
	if !us.release() {
		t.Fatal("release should report zero once the last holder drops")
	}
}

func TestUserStateBeginEvictionRequiresZeroRefcount(t *testing.T) {
	us := newUserState(1, "imap", nil)
	us.acquire()

	if us.beginEviction() {
		t.Fatal("beginEviction should fail while a holder is still attached")
	}
	if us.evicting.Load() {
		t.Fatal("a failed beginEviction must not leave the instance marked as evicting")
	}

	us.release()
	if !us.beginEviction() {
		t.Fatal("beginEviction should succeed once the refcount reaches zero")
	}
	if !us.evicting.Load() {
		t.Fatal("a successful beginEviction must mark the instance as evicting")
	}
}

func TestUserStateAcquireFailsDuringEviction(t *testing.T) {
	us := newUserState(1, "imap", nil)
	us.evicting.Store(true)

	if us.acquire() {
		t.Fatal("acquire must fail against an instance mid-eviction")
	}
	if us.refcount != 0 {
		t.Fatalf("refcount = %d, want 0 after a failed acquire", us.refcount)
	}
}

func TestSerialCacheRoundTrip(t *testing.T) {
	us := newUserState(1, "imap", nil)

	if got := us.localSerial(ClassFolders); got != 0 {
		t.Fatalf("localSerial on an unset class = %d, want 0", got)
	}
	us.setLocalSerial(ClassFolders, 7)
	if got := us.localSerial(ClassFolders); got != 7 {
		t.Fatalf("localSerial after set = %d, want 7", got)
	}
}

func TestSessionIsAnonymous(t *testing.T) {
	var nilSess *Session
	if !nilSess.IsAnonymous() {
		t.Fatal("a nil session must be treated as anonymous")
	}

	neutral := &Session{State: StateNeutral}
	if !neutral.IsAnonymous() {
		t.Fatal("a neutral session must be anonymous")
	}

	terminated := &Session{State: StateTerminated}
	if !terminated.IsAnonymous() {
		t.Fatal("a terminated session must be anonymous")
	}

	authed := &Session{State: StateAuthenticated}
	if authed.IsAnonymous() {
		t.Fatal("an authenticated session must not be anonymous")
	}
}
