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

import "github.com/lavabit/magmad/internal/apperr"

func (mb *Mailbox) contactFolder(folderID uint64) (*ContactFolder, error) {
	cf, ok := mb.Contacts[folderID]
	if !ok {
		return nil, apperr.Newf(apperr.InvalidReference, "contact folder %d not found", folderID)
	}
	return cf, nil
}

// EnsureContactFolder returns the ContactFolder for folderID, creating
// an empty one (mirroring an existing mail Folder of the same id when
// present) if this is the first contact ever filed under it.
func (mb *Mailbox) EnsureContactFolder(folderID uint64) *ContactFolder {
	if cf, ok := mb.Contacts[folderID]; ok {
		return cf
	}
	folder := Folder{FolderID: folderID}
	if f, ok := mb.Folders[folderID]; ok {
		folder = *f
	}
	cf := &ContactFolder{Folder: folder, Records: make(map[uint64]*Contact)}
	mb.Contacts[folderID] = cf
	return cf
}

// AddContact rejects a duplicate name (case-sensitive) within folderID.
func (mb *Mailbox) AddContact(folderID uint64, name string, details map[string]string) (*Contact, error) {
	cf, err := mb.contactFolder(folderID)
	if err != nil {
		return nil, err
	}
	for _, c := range cf.Records {
		if c.Name == name {
			return nil, apperr.New(apperr.ConstraintViolation, "contact name already exists in this folder").WithDetail("Exists")
		}
	}

	mb.nextContactID++
	c := &Contact{ContactID: mb.nextContactID, FolderID: folderID, Name: name, Details: cloneDetails(details)}
	cf.Records[c.ContactID] = c
	return c, nil
}

// EditContact replaces name/details on an existing contact, refusing
// a rename that collides with a different contact in the same folder.
func (mb *Mailbox) EditContact(contactID uint64, name string, details map[string]string) error {
	c, cf, err := mb.findContact(contactID)
	if err != nil {
		return err
	}
	if name != c.Name {
		for _, other := range cf.Records {
			if other.ContactID != contactID && other.Name == name {
				return apperr.New(apperr.ConstraintViolation, "contact name already exists in this folder").WithDetail("Exists")
			}
		}
	}
	c.Name = name
	c.Details = cloneDetails(details)
	return nil
}

// CopyContact duplicates a contact. Within the same folder the copy is
// renamed "Copy of <name>" to avoid the uniqueness constraint.
func (mb *Mailbox) CopyContact(contactID, dstFolderID uint64) (*Contact, error) {
	src, _, err := mb.findContact(contactID)
	if err != nil {
		return nil, err
	}
	dst, err := mb.contactFolder(dstFolderID)
	if err != nil {
		return nil, err
	}

	name := src.Name
	if src.FolderID == dstFolderID {
		name = "Copy of " + name
	}
	for _, other := range dst.Records {
		if other.Name == name {
			return nil, apperr.New(apperr.ConstraintViolation, "contact name already exists in this folder").WithDetail("Exists")
		}
	}

	mb.nextContactID++
	cp := &Contact{ContactID: mb.nextContactID, FolderID: dstFolderID, Name: name, Details: cloneDetails(src.Details)}
	dst.Records[cp.ContactID] = cp
	return cp, nil
}

// MoveContact reassigns a contact's folder, refusing a name collision
// in the destination.
func (mb *Mailbox) MoveContact(contactID, dstFolderID uint64) error {
	c, srcFolder, err := mb.findContact(contactID)
	if err != nil {
		return err
	}
	dst, err := mb.contactFolder(dstFolderID)
	if err != nil {
		return err
	}
	for _, other := range dst.Records {
		if other.Name == c.Name {
			return apperr.New(apperr.ConstraintViolation, "contact name already exists in this folder").WithDetail("Exists")
		}
	}
	delete(srcFolder.Records, contactID)
	c.FolderID = dstFolderID
	dst.Records[contactID] = c
	return nil
}

// RemoveContact deletes a contact by id.
func (mb *Mailbox) RemoveContact(contactID uint64) error {
	_, folder, err := mb.findContact(contactID)
	if err != nil {
		return err
	}
	delete(folder.Records, contactID)
	return nil
}

// SnapshotContacts returns a deep copy of the current contact set, for
// restoring on a failed transactional write per §4.7 step 7.
func (mb *Mailbox) SnapshotContacts() map[uint64]*ContactFolder {
	snap := make(map[uint64]*ContactFolder, len(mb.Contacts))
	for folderID, cf := range mb.Contacts {
		records := make(map[uint64]*Contact, len(cf.Records))
		for id, c := range cf.Records {
			cp := *c
			cp.Details = cloneDetails(c.Details)
			records[id] = &cp
		}
		snap[folderID] = &ContactFolder{Folder: cf.Folder, Records: records}
	}
	return snap
}

// RestoreContacts replaces the live contact set with a prior snapshot.
func (mb *Mailbox) RestoreContacts(snap map[uint64]*ContactFolder) {
	mb.Contacts = snap
}

// ListContacts returns every contact in folderID.
func (mb *Mailbox) ListContacts(folderID uint64) ([]*Contact, error) {
	cf, err := mb.contactFolder(folderID)
	if err != nil {
		return nil, err
	}
	out := make([]*Contact, 0, len(cf.Records))
	for _, c := range cf.Records {
		out = append(out, c)
	}
	return out, nil
}

// LoadContact returns one contact by id.
func (mb *Mailbox) LoadContact(contactID uint64) (*Contact, error) {
	c, _, err := mb.findContact(contactID)
	return c, err
}

func (mb *Mailbox) findContact(contactID uint64) (*Contact, *ContactFolder, error) {
	for _, cf := range mb.Contacts {
		if c, ok := cf.Records[contactID]; ok {
			return c, cf, nil
		}
	}
	return nil, nil, apperr.Newf(apperr.InvalidReference, "contact %d not found", contactID)
}

func cloneDetails(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
