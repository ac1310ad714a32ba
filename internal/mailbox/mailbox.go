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

import "sort"

// InboxName is the reserved, immutable top-level folder name.
const InboxName = "Inbox"

// Mailbox is the full in-memory aggregate for one user. It carries no
// lock of its own; the session layer serializes access to it.
type Mailbox struct {
	User *User

	Folders  map[uint64]*Folder
	Messages map[uint64]*Message
	Aliases  map[uint64]*Alias
	Contacts map[uint64]*ContactFolder
	Alerts   map[uint64]*Alert
	Config   map[string]ConfigEntry

	Compositions map[uint64]*Composition

	nextFolderID    uint64
	nextMessageID   uint64
	nextContactID   uint64
	nextAlertID     uint64
	nextAliasID     uint64
	nextComposeID   uint64
	nextAttachID    uint64
}

// New creates an empty mailbox for the given user. Callers normally
// populate it from the SQL store immediately after.
func New(user *User) *Mailbox {
	return &Mailbox{
		User:         user,
		Folders:      make(map[uint64]*Folder),
		Messages:     make(map[uint64]*Message),
		Aliases:      make(map[uint64]*Alias),
		Contacts:     make(map[uint64]*ContactFolder),
		Alerts:       make(map[uint64]*Alert),
		Config:       make(map[string]ConfigEntry),
		Compositions: make(map[uint64]*Composition),
	}
}

// SyncIDCounters raises each id counter to at least the corresponding
// high-water mark. The store calls this once after populating a fresh
// mailbox from existing rows, so that the next id minted for a
// returning user never collides with one already on disk.
func (mb *Mailbox) SyncIDCounters() {
	for id := range mb.Folders {
		if id > mb.nextFolderID {
			mb.nextFolderID = id
		}
	}
	for id := range mb.Messages {
		if id > mb.nextMessageID {
			mb.nextMessageID = id
		}
	}
	for id := range mb.Aliases {
		if id > mb.nextAliasID {
			mb.nextAliasID = id
		}
	}
	for id := range mb.Alerts {
		if id > mb.nextAlertID {
			mb.nextAlertID = id
		}
	}
	for _, cf := range mb.Contacts {
		if cf.Folder.FolderID > mb.nextFolderID {
			mb.nextFolderID = cf.Folder.FolderID
		}
		for id := range cf.Records {
			if id > mb.nextContactID {
				mb.nextContactID = id
			}
		}
	}
}

// folderByPath resolves a dotted folder path to its id, or false if
// the full path does not exist.
func (mb *Mailbox) folderByPath(path []string) (uint64, bool) {
	var parent uint64
	var id uint64
	found := len(path) == 0
	for _, seg := range path {
		found = false
		for _, f := range mb.Folders {
			if f.ParentID == parent && f.Name == seg {
				id = f.FolderID
				parent = f.FolderID
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return id, found
}

// childrenOf returns the folder ids whose ParentID is parent.
func (mb *Mailbox) childrenOf(parent uint64) []uint64 {
	var out []uint64
	for id, f := range mb.Folders {
		if f.ParentID == parent {
			out = append(out, id)
		}
	}
	return out
}

// isDescendant reports whether candidate is id or a descendant of id.
func (mb *Mailbox) isDescendant(id, candidate uint64) bool {
	if id == candidate {
		return true
	}
	for _, childID := range mb.childrenOf(id) {
		if mb.isDescendant(childID, candidate) {
			return true
		}
	}
	return false
}

// pathOf reconstructs the dotted path of a folder from root.
func (mb *Mailbox) pathOf(id uint64) []string {
	var segs []string
	for id != 0 {
		f, ok := mb.Folders[id]
		if !ok {
			break
		}
		segs = append([]string{f.Name}, segs...)
		id = f.ParentID
	}
	return segs
}

// AllTags returns the sorted set of every tag used anywhere in the
// user's visible messages — the messages.tags RPC surfaces this
// directly, a feature named in the original method table but not
// spelled out as an operation in the distilled spec.
func (mb *Mailbox) AllTags() []string {
	seen := make(map[string]bool)
	for _, m := range mb.Messages {
		if !m.Visible {
			continue
		}
		for _, t := range m.Tags {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// FolderTagHistogram counts tag occurrences across visible messages in
// one folder.
func (mb *Mailbox) FolderTagHistogram(folderID uint64) map[string]int {
	hist := make(map[string]int)
	for _, m := range mb.Messages {
		if !m.Visible || m.FolderID != folderID {
			continue
		}
		for _, t := range m.Tags {
			hist[t]++
		}
	}
	return hist
}
