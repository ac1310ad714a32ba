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

import "context"

// SerialStore is the external, cache-backed authority for per-user
// per-object-class serials. It is implemented by the store package
// against the SQL/cache collaborator.
type SerialStore interface {
	Get(ctx context.Context, userID uint64, class ObjectClass) (uint64, error)
	Set(ctx context.Context, userID uint64, class ObjectClass, value uint64) error
}

// SerialGet returns the authoritative serial for class, reconciling
// the UserState's local cache with the external store and updating
// the local cache to match.
func (us *UserState) SerialGet(ctx context.Context, store SerialStore, class ObjectClass) (uint64, error) {
	external, err := store.Get(ctx, us.UserID, class)
	if err != nil {
		return 0, err
	}
	us.setLocalSerial(class, external)
	return external, nil
}

// SerialIncrement bumps class by one, following the reconciliation
// rule from the session design: if the UserState's local view of the
// serial matches the external store, the increment is safe to apply
// both locally and externally in one step. If the local view already
// lags the external value, some other process changed it since our
// last read — we still bump the external value, but report that this
// UserState must refresh its in-memory state before relying on it
// (needsRefresh), rather than trusting a stale local cache.
func (us *UserState) SerialIncrement(ctx context.Context, store SerialStore, class ObjectClass) (newValue uint64, needsRefresh bool, err error) {
	external, err := store.Get(ctx, us.UserID, class)
	if err != nil {
		return 0, false, err
	}

	local := us.localSerial(class)
	next := external + 1
	if err := store.Set(ctx, us.UserID, class, next); err != nil {
		return 0, false, err
	}

	if local == external {
		us.setLocalSerial(class, next)
		return next, false, nil
	}

	us.setLocalSerial(class, external)
	return next, true, nil
}
