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

	"github.com/lavabit/magmad/internal/apperr"
)

// FlagAction enumerates the messages.flag / messages.tag verbs.
type FlagAction string

const (
	ActionAdd     FlagAction = "add"
	ActionRemove  FlagAction = "remove"
	ActionReplace FlagAction = "replace"
	ActionList    FlagAction = "list"
)

// ListMessages returns the visible messages in folderID, in id order.
func (mb *Mailbox) ListMessages(folderID uint64) []*Message {
	var out []*Message
	for _, m := range mb.Messages {
		if m.Visible && m.FolderID == folderID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out
}

// SnapshotMessages returns a deep copy of the current message set, for
// restoring on a failed multi-row operation per §4.7's rollback rule.
func (mb *Mailbox) SnapshotMessages() map[uint64]*Message {
	snap := make(map[uint64]*Message, len(mb.Messages))
	for id, m := range mb.Messages {
		cp := *m
		cp.Tags = append([]string(nil), m.Tags...)
		snap[id] = &cp
	}
	return snap
}

// RestoreMessages replaces the live message set with a prior snapshot.
func (mb *Mailbox) RestoreMessages(snap map[uint64]*Message) {
	mb.Messages = snap
}

// resolveOwned returns the message for id, erroring with
// InvalidReference unless it is visible and lives in folderID.
func (mb *Mailbox) resolveOwned(id, folderID uint64) (*Message, error) {
	m, ok := mb.Messages[id]
	if !ok || !m.Visible || m.FolderID != folderID {
		return nil, apperr.Newf(apperr.InvalidReference, "message %d not found in folder %d", id, folderID)
	}
	return m, nil
}

// CopyMessages duplicates ids from src to dst. All ids are validated
// before any mutation, so a validation failure touches nothing; the
// caller (the portal handler) takes a SnapshotMessages beforehand and
// calls RestoreMessages if persisting the copies fails after this call
// returns.
func (mb *Mailbox) CopyMessages(src, dst uint64, ids []uint64) (map[uint64]uint64, error) {
	if src == dst {
		return nil, apperr.New(apperr.IllegalCombination, "source and target folder must differ")
	}
	if len(ids) == 0 {
		return nil, apperr.New(apperr.InvalidParams, "messageIDs must not be empty")
	}

	sources := make([]*Message, 0, len(ids))
	for _, id := range ids {
		m, err := mb.resolveOwned(id, src)
		if err != nil {
			return nil, err
		}
		sources = append(sources, m)
	}

	mapping := make(map[uint64]uint64, len(ids))
	for _, m := range sources {
		mb.nextMessageID++
		newID := mb.nextMessageID
		cp := *m
		cp.MessageID = newID
		cp.FolderID = dst
		cp.Tags = append([]string(nil), m.Tags...)
		mb.Messages[newID] = &cp
		mapping[m.MessageID] = newID
	}
	return mapping, nil
}

// MoveMessages reassigns FolderID for ids from src to dst.
func (mb *Mailbox) MoveMessages(src, dst uint64, ids []uint64) error {
	if src == dst {
		return apperr.New(apperr.IllegalCombination, "source and target folder must differ")
	}
	if len(ids) == 0 {
		return apperr.New(apperr.InvalidParams, "messageIDs must not be empty")
	}

	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		m, err := mb.resolveOwned(id, src)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	for _, m := range msgs {
		m.FolderID = dst
	}
	return nil
}

// RemoveMessages logically deletes ids from folderID, aborting on the
// first id that does not resolve and leaving earlier removals in this
// call applied (abort-on-first-error, per §4.4).
func (mb *Mailbox) RemoveMessages(folderID uint64, ids []uint64) error {
	for _, id := range ids {
		m, err := mb.resolveOwned(id, folderID)
		if err != nil {
			return err
		}
		m.Visible = false
	}
	return nil
}

// FlagMessages applies a flag action to ids in folderID. add/remove/
// replace require a non-zero bits value that does not intersect
// SystemFlags; list returns the current flag names per id.
func (mb *Mailbox) FlagMessages(action FlagAction, folderID uint64, ids []uint64, bits uint64) (map[uint64][]string, error) {
	if action == ActionList {
		out := make(map[uint64][]string, len(ids))
		for _, id := range ids {
			m, err := mb.resolveOwned(id, folderID)
			if err != nil {
				return nil, err
			}
			out[id] = FlagNames(m.Status)
		}
		return out, nil
	}

	if bits == 0 {
		return nil, apperr.New(apperr.InvalidParams, "flags must be non-empty for add/remove/replace")
	}
	if bits&SystemFlags != 0 {
		return nil, apperr.New(apperr.SystemFlagForbidden, "cannot set or clear a system flag")
	}

	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		m, err := mb.resolveOwned(id, folderID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	for _, m := range msgs {
		switch action {
		case ActionAdd:
			m.Status |= bits
		case ActionRemove:
			m.Status &^= bits
		case ActionReplace:
			m.Status = (m.Status &^ UserFlags) | bits
		default:
			return nil, apperr.Newf(apperr.InvalidKeyword, "unknown flag action %q", action)
		}
	}
	return nil, nil
}

// TagMessages applies a tag action to ids in folderID. After any
// mutation, MAIL_STATUS_TAGGED (FlagTagged) is recomputed from the
// message's resulting tag set.
func (mb *Mailbox) TagMessages(action FlagAction, folderID uint64, ids []uint64, tags []string) (map[uint64][]string, error) {
	if action == ActionList {
		out := make(map[uint64][]string, len(ids))
		for _, id := range ids {
			m, err := mb.resolveOwned(id, folderID)
			if err != nil {
				return nil, err
			}
			out[id] = append([]string(nil), m.Tags...)
		}
		return out, nil
	}

	if (action == ActionAdd || action == ActionRemove) && len(tags) == 0 {
		return nil, apperr.New(apperr.InvalidParams, "tags must be non-empty for add/remove")
	}

	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		m, err := mb.resolveOwned(id, folderID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	for _, m := range msgs {
		switch action {
		case ActionAdd:
			m.Tags = unionTags(m.Tags, tags)
		case ActionRemove:
			m.Tags = subtractTags(m.Tags, tags)
		case ActionReplace:
			m.Tags = append([]string(nil), tags...)
		default:
			return nil, apperr.Newf(apperr.InvalidKeyword, "unknown tag action %q", action)
		}
		if len(m.Tags) > 0 {
			m.Status |= FlagTagged
		} else {
			m.Status &^= FlagTagged
		}
	}
	return nil, nil
}

func unionTags(existing, add []string) []string {
	set := make(map[string]bool, len(existing)+len(add))
	for _, t := range existing {
		set[t] = true
	}
	for _, t := range add {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func subtractTags(existing, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[t] = true
	}
	out := make([]string, 0, len(existing))
	for _, t := range existing {
		if !drop[t] {
			out = append(out, t)
		}
	}
	return out
}

// LoadSections enumerates the pieces of a message the load RPC may
// request.
type LoadSections uint16

const (
	SectionMeta LoadSections = 1 << iota
	SectionSource
	SectionSecurity
	SectionServer
	SectionHeader
	SectionBody
	SectionAttachments
	SectionInfo
)

// Load returns the requested message if it is visible. Loading of the
// actual section payloads from the blob store happens one layer up;
// this only validates the reference and the section set.
func (mb *Mailbox) Load(id uint64, sections LoadSections) (*Message, error) {
	if sections == 0 {
		return nil, apperr.New(apperr.InvalidRequest, "empty section set")
	}
	m, ok := mb.Messages[id]
	if !ok || !m.Visible {
		return nil, apperr.Newf(apperr.InvalidReference, "message %d not found", id)
	}
	return m, nil
}
