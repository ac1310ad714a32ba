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

package mailbox

import (
	"sort"
	"time"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/cryptex"
	"github.com/lavabit/magmad/internal/ecies"
	"github.com/lavabit/magmad/internal/eckeys"
)

// ListAliases returns every alias, read-only.
func (mb *Mailbox) ListAliases() []*Alias {
	out := make([]*Alias, 0, len(mb.Aliases))
	for _, a := range mb.Aliases {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AliasID < out[j].AliasID })
	return out
}

// UpsertIdentity creates a new alias, or edits an existing one when
// aliasID != 0, and makes it the user's sole selected sending identity.
func (mb *Mailbox) UpsertIdentity(aliasID uint64, address, display string, now time.Time) (*Alias, error) {
	var a *Alias
	if aliasID != 0 {
		existing, ok := mb.Aliases[aliasID]
		if !ok {
			return nil, apperr.Newf(apperr.InvalidReference, "alias %d not found", aliasID)
		}
		existing.Address = address
		existing.Display = display
		a = existing
	} else {
		mb.nextAliasID++
		a = &Alias{AliasID: mb.nextAliasID, Address: address, Display: display, CreatedUTC: now}
		mb.Aliases[a.AliasID] = a
	}
	for id, other := range mb.Aliases {
		other.Selected = id == a.AliasID
	}
	return a, nil
}

// ListAlerts returns every unacknowledged alert.
func (mb *Mailbox) ListAlerts() []*Alert {
	var out []*Alert
	for _, a := range mb.Alerts {
		if a.AcknowledgedAt == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertID < out[j].AlertID })
	return out
}

// SnapshotAlerts returns a deep copy of the current alert set, for
// restoring on a failed transactional acknowledgement per §4.4/§4.7.
func (mb *Mailbox) SnapshotAlerts() map[uint64]*Alert {
	snap := make(map[uint64]*Alert, len(mb.Alerts))
	for id, a := range mb.Alerts {
		cp := *a
		if a.AcknowledgedAt != nil {
			t := *a.AcknowledgedAt
			cp.AcknowledgedAt = &t
		}
		snap[id] = &cp
	}
	return snap
}

// RestoreAlerts replaces the live alert set with a prior snapshot.
func (mb *Mailbox) RestoreAlerts(snap map[uint64]*Alert) {
	mb.Alerts = snap
}

// AcknowledgeAlerts marks every id acknowledged. The caller is
// expected to wrap this in the same DB transaction that persists the
// acknowledgement, since a partial in-memory apply with a failed
// commit would desynchronize the user's alert state (§4.4).
func (mb *Mailbox) AcknowledgeAlerts(ids []uint64, now time.Time) error {
	alerts := make([]*Alert, 0, len(ids))
	for _, id := range ids {
		a, ok := mb.Alerts[id]
		if !ok {
			return apperr.Newf(apperr.InvalidReference, "alert %d not found", id)
		}
		alerts = append(alerts, a)
	}
	for _, a := range alerts {
		t := now
		a.AcknowledgedAt = &t
	}
	return nil
}

// LoadConfig returns a copy of the full configuration map.
func (mb *Mailbox) LoadConfig() map[string]ConfigEntry {
	out := make(map[string]ConfigEntry, len(mb.Config))
	for k, v := range mb.Config {
		out[k] = v
	}
	return out
}

// SnapshotConfig returns a copy of the current configuration map, for
// restoring on a failed transactional write per §4.7 step 7.
func (mb *Mailbox) SnapshotConfig() map[string]ConfigEntry {
	return mb.LoadConfig()
}

// RestoreConfig replaces the live configuration map with a prior
// snapshot.
func (mb *Mailbox) RestoreConfig(snap map[string]ConfigEntry) {
	mb.Config = snap
}

// EditConfig applies a set of key edits; a nil value string pointer
// deletes the key.
func (mb *Mailbox) EditConfig(edits map[string]*string) {
	for k, v := range edits {
		if v == nil {
			delete(mb.Config, k)
			continue
		}
		entry := mb.Config[k]
		entry.Value = *v
		mb.Config[k] = entry
	}
}

// SealIncoming encrypts an inbound RFC 822 message for a user who has
// secure storage enabled, using the user's storage public key. It
// refuses with IllegalCombination unless User.EncryptData is set. The
// store layer does not call it; SQLStore persists message rows as given.
func (mb *Mailbox) SealIncoming(rfc822 []byte) (*cryptex.Container, error) {
	if !mb.User.EncryptData {
		return nil, apperr.New(apperr.IllegalCombination, "secure storage is not enabled for this user")
	}
	pub, err := eckeys.ParsePublicHex(mb.User.StoragePublicKey)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidKey, "user storage key: %v", err)
	}
	container, err := ecies.Encrypt(pub, rfc822)
	if err != nil {
		return nil, apperr.Newf(apperr.InternalError, "seal incoming message: %v", err)
	}
	return container, nil
}
