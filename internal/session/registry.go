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
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
)

// UserLoader loads a fresh mailbox aggregate for userID from the
// persistent store; it is called at most once per concurrent burst of
// acquisitions for the same (user_id, protocol) thanks to singleflight.
type UserLoader interface {
	Load(ctx context.Context, userID uint64) (*mailbox.Mailbox, error)
}

type userKey struct {
	userID   uint64
	protocol string
}

// Registry is the process-wide session table plus the per-user
// instance table described in §4.5. A single Registry is shared by
// every protocol front end in the process.
type Registry struct {
	loader UserLoader

	sessMu   sync.RWMutex
	sessions map[string]*Session

	userMu    sync.Mutex
	instances map[userKey]*UserState

	group singleflight.Group
}

// NewRegistry creates an empty registry backed by loader for
// materializing mailboxes on first acquire.
func NewRegistry(loader UserLoader) *Registry {
	return &Registry{
		loader:    loader,
		sessions:  make(map[string]*Session),
		instances: make(map[userKey]*UserState),
	}
}

// Acquire returns the shared UserState for (userID, protocol),
// creating and loading it on first use. Concurrent acquisitions for
// the same key are deduplicated via singleflight so only one loads
// the mailbox from the store. Acquiring while the instance is mid-
// eviction loops until the evicting instance has been removed from
// the table, then loads a fresh one.
func (r *Registry) Acquire(ctx context.Context, userID uint64, protocol string) (*UserState, error) {
	key := userKey{userID, protocol}

	for {
		r.userMu.Lock()
		if us, ok := r.instances[key]; ok {
			r.userMu.Unlock()
			if us.acquire() {
				return us, nil
			}
			// Evicting; look the key up again once the evictor has
			// finished removing it.
			continue
		}
		r.userMu.Unlock()

		sfKey := fmt.Sprintf("%d:%s", userID, protocol)
		v, err, _ := r.group.Do(sfKey, func() (interface{}, error) {
			mb, err := r.loader.Load(ctx, userID)
			if err != nil {
				return nil, err
			}
			us := newUserState(userID, protocol, mb)
			us.refcount = 1

			r.userMu.Lock()
			defer r.userMu.Unlock()
			if existing, ok := r.instances[key]; ok {
				// Another caller won the race between our singleflight
				// entry expiring and the map insert; use theirs instead.
				if existing.acquire() {
					return existing, nil
				}
				r.instances[key] = us
				return us, nil
			}
			r.instances[key] = us
			return us, nil
		})
		if err != nil {
			return nil, apperr.Newf(apperr.InternalError, "load user state: %v", err)
		}
		return v.(*UserState), nil
	}
}

// Release decrements the reference count on us and, if it reaches
// zero, evicts it from the registry using the atomic compare-and-set
// transition that closes the last-drop/new-acquire race.
func (r *Registry) Release(us *UserState) {
	if !us.release() {
		return
	}

	r.userMu.Lock()
	defer r.userMu.Unlock()

	if !us.beginEviction() {
		// A concurrent Acquire re-incremented the refcount between
		// release() and the lock above; leave the instance in place.
		return
	}
	key := userKey{us.UserID, us.Protocol}
	if r.instances[key] == us {
		delete(r.instances, key)
	}
}

// NewSession creates and registers an authenticated session bound to
// us, returning a fresh random token.
func (r *Registry) NewSession(protocol string, us *UserState) *Session {
	s := &Session{
		Token:     uuid.NewString(),
		State:     StateAuthenticated,
		Protocol:  protocol,
		UserState: us,
	}
	r.sessMu.Lock()
	r.sessions[s.Token] = s
	r.sessMu.Unlock()
	return s
}

// Lookup returns the session for token, or nil if it does not exist
// or has been terminated.
func (r *Registry) Lookup(token string) *Session {
	r.sessMu.RLock()
	defer r.sessMu.RUnlock()
	s, ok := r.sessions[token]
	if !ok || s.State == StateTerminated {
		return nil
	}
	return s
}

// Terminate ends a session and releases its reference on the
// underlying UserState.
func (r *Registry) Terminate(token string) {
	r.sessMu.Lock()
	s, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.sessMu.Unlock()

	if !ok {
		return
	}
	s.State = StateTerminated
	if s.UserState != nil {
		r.Release(s.UserState)
	}
}
