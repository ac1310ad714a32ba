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
	"strings"

	"github.com/lavabit/magmad/internal/apperr"
)

// FolderLengthLimit is the maximum byte length of one unescaped
// folder name segment.
const FolderLengthLimit = 16

// FolderRecursionLimit bounds how deep a folder path may nest.
const FolderRecursionLimit = 20

// escapeSegment converts a literal double quote into the modified
// UTF-7 escape the source uses for folder name storage.
func escapeSegment(seg string) string {
	return strings.ReplaceAll(seg, `"`, "&ACI-")
}

// SnapshotFolders returns a deep copy of the current folder set, for
// restoring on a failed transactional write per §4.7 step 7.
func (mb *Mailbox) SnapshotFolders() map[uint64]*Folder {
	snap := make(map[uint64]*Folder, len(mb.Folders))
	for id, f := range mb.Folders {
		cp := *f
		snap[id] = &cp
	}
	return snap
}

// RestoreFolders replaces the live folder set with a prior snapshot.
func (mb *Mailbox) RestoreFolders(snap map[uint64]*Folder) {
	mb.Folders = snap
}

// unescapeSegment reverses escapeSegment; used to measure a segment's
// true content length against FolderLengthLimit.
func unescapeSegment(seg string) string {
	return strings.ReplaceAll(seg, "&ACI-", `"`)
}

// validateName checks a full dotted folder path against the shared
// name rules and returns its segments as given; callers escape each
// segment before storing it.
func validateName(name string) ([]string, error) {
	if name == "" {
		return nil, apperr.New(apperr.ConstraintViolation, "folder name must not be empty")
	}
	if strings.HasPrefix(name, ".") {
		return nil, apperr.New(apperr.ConstraintViolation, "folder name must not start with '.'")
	}

	trimmed := name
	if strings.HasSuffix(trimmed, ".") {
		trimmed = trimmed[:len(trimmed)-1]
		if trimmed == "" || strings.HasSuffix(trimmed, ".") {
			return nil, apperr.New(apperr.ConstraintViolation, "folder name has more than one trailing dot")
		}
	}

	for i := 0; i < len(trimmed); i++ {
		b := trimmed[i]
		if b != '.' && (b < 0x20 || b > 0x7E) {
			return nil, apperr.New(apperr.ConstraintViolation, "folder name contains a control byte")
		}
	}
	if strings.Contains(trimmed, "..") {
		return nil, apperr.New(apperr.ConstraintViolation, "folder name has consecutive dots")
	}

	segs := strings.Split(trimmed, ".")
	if len(segs) > FolderRecursionLimit {
		return nil, apperr.New(apperr.ConstraintViolation, "folder path exceeds recursion limit")
	}
	for _, seg := range segs {
		if len(unescapeSegment(seg)) > FolderLengthLimit {
			return nil, apperr.New(apperr.ConstraintViolation, "folder name segment exceeds length limit")
		}
	}

	if strings.EqualFold(segs[0], InboxName) {
		return nil, apperr.New(apperr.ConstraintViolation, "Inbox is reserved").WithDetail("ReservedFolder")
	}

	return segs, nil
}

// CreateFolder walks name from root, creating any missing parent
// segments, and returns the leaf folder. If the full path already
// exists it returns ConstraintViolation (Exists).
func (mb *Mailbox) CreateFolder(name string) (*Folder, error) {
	segs, err := validateName(name)
	if err != nil {
		return nil, err
	}

	var parent uint64
	var leaf *Folder
	for i, seg := range segs {
		escaped := escapeSegment(seg)
		var existing *Folder
		for _, f := range mb.Folders {
			if f.ParentID == parent && f.Name == escaped {
				existing = f
				break
			}
		}
		if existing != nil {
			if i == len(segs)-1 {
				return nil, apperr.New(apperr.ConstraintViolation, "folder already exists").WithDetail("Exists")
			}
			parent = existing.FolderID
			leaf = existing
			continue
		}

		mb.nextFolderID++
		var order uint32
		for _, sibID := range mb.childrenOf(parent) {
			if mb.Folders[sibID].Order >= order {
				order = mb.Folders[sibID].Order + 1
			}
		}
		f := &Folder{FolderID: mb.nextFolderID, ParentID: parent, Order: order, Name: escaped}
		mb.Folders[f.FolderID] = f
		parent = f.FolderID
		leaf = f
	}

	return leaf, nil
}

// DeleteFolder refuses Inbox; if the folder has children it leaves the
// folder record in place and only deletes its descendant messages
// (matching the source's "can rename but not delete a parent"
// invariant); otherwise it deletes all of the folder's messages, then
// the folder row itself.
func (mb *Mailbox) DeleteFolder(folderID uint64) error {
	f, ok := mb.Folders[folderID]
	if !ok {
		return apperr.New(apperr.InvalidReference, "folder not found")
	}
	if f.ParentID == 0 && strings.EqualFold(f.Name, InboxName) {
		return apperr.New(apperr.ConstraintViolation, "Inbox cannot be deleted").WithDetail("ReservedFolder")
	}

	if len(mb.childrenOf(folderID)) > 0 {
		mb.deleteMessagesInFolder(folderID)
		return nil
	}

	mb.deleteMessagesInFolder(folderID)
	delete(mb.Folders, folderID)
	return nil
}

func (mb *Mailbox) deleteMessagesInFolder(folderID uint64) {
	for id, m := range mb.Messages {
		if m.FolderID == folderID {
			delete(mb.Messages, id)
		}
	}
}

// RenameFolder moves/renames folderID to dstPath, creating any
// missing destination parents and refusing a self-ancestor move.
func (mb *Mailbox) RenameFolder(folderID uint64, dstPath string) error {
	f, ok := mb.Folders[folderID]
	if !ok {
		return apperr.New(apperr.InvalidReference, "folder not found")
	}
	if f.ParentID == 0 && strings.EqualFold(f.Name, InboxName) {
		return apperr.New(apperr.ConstraintViolation, "Inbox cannot be renamed").WithDetail("ReservedFolder")
	}

	segs, err := validateName(dstPath)
	if err != nil {
		return err
	}
	if len(segs) > FolderRecursionLimit {
		return apperr.New(apperr.ConstraintViolation, "destination path exceeds recursion limit")
	}

	leafName := escapeSegment(segs[len(segs)-1])
	parentSegs := segs[:len(segs)-1]

	var newParent uint64
	for _, seg := range parentSegs {
		escaped := escapeSegment(seg)
		var existing *Folder
		for _, pf := range mb.Folders {
			if pf.ParentID == newParent && pf.Name == escaped {
				existing = pf
				break
			}
		}
		if existing == nil {
			mb.nextFolderID++
			var order uint32
			for _, sibID := range mb.childrenOf(newParent) {
				if mb.Folders[sibID].Order >= order {
					order = mb.Folders[sibID].Order + 1
				}
			}
			existing = &Folder{FolderID: mb.nextFolderID, ParentID: newParent, Order: order, Name: escaped}
			mb.Folders[existing.FolderID] = existing
		}
		newParent = existing.FolderID
	}

	if mb.isDescendant(folderID, newParent) {
		return apperr.New(apperr.ConstraintViolation, "folder cannot become its own ancestor")
	}

	for _, sib := range mb.Folders {
		if sib.ParentID == newParent && sib.Name == leafName && sib.FolderID != folderID {
			return apperr.New(apperr.ConstraintViolation, "destination folder already exists").WithDetail("Exists")
		}
	}

	if newParent != f.ParentID {
		var order uint32
		for _, sibID := range mb.childrenOf(newParent) {
			if mb.Folders[sibID].Order >= order {
				order = mb.Folders[sibID].Order + 1
			}
		}
		f.Order = order
	}
	f.ParentID = newParent
	f.Name = leafName
	return nil
}

// Path returns the dotted, unescaped path of a folder for display.
func (mb *Mailbox) Path(folderID uint64) string {
	segs := mb.pathOf(folderID)
	for i, s := range segs {
		segs[i] = unescapeSegment(s)
	}
	return strings.Join(segs, ".")
}

// MatchFolderName reports whether name matches an IMAP LIST-style
// pattern: '*' matches any run including '.'; '%' matches any run not
// containing '.'; the literal "Inbox" matches case-insensitively.
func MatchFolderName(name, pattern string) bool {
	if strings.EqualFold(pattern, InboxName) {
		return strings.EqualFold(name, InboxName)
	}
	return matchPattern(name, pattern)
}

func matchPattern(name, pattern string) bool {
	if pattern == "" {
		return name == ""
	}

	switch pattern[0] {
	case '*':
		for i := 0; i <= len(name); i++ {
			if matchPattern(name[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '%':
		for i := 0; i <= len(name); i++ {
			if strings.Contains(name[:i], ".") {
				break
			}
			if matchPattern(name[i:], pattern[1:]) {
				return true
			}
		}
		return false
	default:
		if len(name) == 0 || name[0] != pattern[0] {
			return false
		}
		return matchPattern(name[1:], pattern[1:])
	}
}
