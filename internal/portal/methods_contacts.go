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

package portal

import (
	"context"
	"encoding/json"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/session"
)

func init() {
	registerMethod("contacts.add", handleContactsAdd)
	registerMethod("contacts.edit", handleContactsEdit)
	registerMethod("contacts.list", handleContactsList)
	registerMethod("contacts.load", handleContactsLoad)
	registerMethod("contacts.move", handleContactsMove)
	registerMethod("contacts.copy", handleContactsCopy)
	registerMethod("contacts.remove", handleContactsRemove)
}

func contactSummary(c *mailbox.Contact) map[string]interface{} {
	return map[string]interface{}{
		"contactID": c.ContactID,
		"folderID":  c.FolderID,
		"name":      c.Name,
		"details":   c.Details,
	}
}

type contactsAddParams struct {
	FolderID uint64            `json:"folderID"`
	Name     string            `json:"name"`
	Details  map[string]string `json:"details,omitempty"`
}

func handleContactsAdd(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p contactsAddParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotContacts()
	us.Mailbox.EnsureContactFolder(p.FolderID)
	c, err := us.Mailbox.AddContact(p.FolderID, p.Name, p.Details)
	if err != nil {
		return nil, err
	}
	if d.Store != nil {
		if err := d.Store.SaveContact(ctx, us.UserID, c); err != nil {
			us.Mailbox.RestoreContacts(snap)
			return nil, apperr.Newf(apperr.InternalError, "save contact: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassContacts)
	return contactSummary(c), nil
}

type contactsEditParams struct {
	ContactID uint64            `json:"contactID"`
	Name      string            `json:"name"`
	Details   map[string]string `json:"details,omitempty"`
}

func handleContactsEdit(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p contactsEditParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotContacts()
	if err := us.Mailbox.EditContact(p.ContactID, p.Name, p.Details); err != nil {
		return nil, err
	}
	if d.Store != nil {
		c, err := us.Mailbox.LoadContact(p.ContactID)
		if err == nil {
			if err := d.Store.SaveContact(ctx, us.UserID, c); err != nil {
				us.Mailbox.RestoreContacts(snap)
				return nil, apperr.Newf(apperr.InternalError, "save contact: %v", err)
			}
		}
	}
	d.bumpSerial(ctx, sess, session.ClassContacts)
	return map[string]interface{}{"ok": true}, nil
}

func handleContactsList(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p folderIDParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	contacts, err := us.Mailbox.ListContacts(p.FolderID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactSummary(c))
	}
	return out, nil
}

type contactIDParams struct {
	ContactID uint64 `json:"contactID"`
}

func handleContactsLoad(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p contactIDParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	c, err := us.Mailbox.LoadContact(p.ContactID)
	if err != nil {
		return nil, err
	}
	return contactSummary(c), nil
}

type contactsMoveParams struct {
	ContactID      uint64 `json:"contactID"`
	TargetFolderID uint64 `json:"targetFolderID"`
}

func handleContactsMove(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p contactsMoveParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotContacts()
	if err := us.Mailbox.MoveContact(p.ContactID, p.TargetFolderID); err != nil {
		return nil, err
	}
	if d.Store != nil {
		c, err := us.Mailbox.LoadContact(p.ContactID)
		if err == nil {
			if err := d.Store.SaveContact(ctx, us.UserID, c); err != nil {
				us.Mailbox.RestoreContacts(snap)
				return nil, apperr.Newf(apperr.InternalError, "save contact: %v", err)
			}
		}
	}
	d.bumpSerial(ctx, sess, session.ClassContacts)
	return map[string]interface{}{"ok": true}, nil
}

type contactsCopyParams struct {
	ContactID      uint64 `json:"contactID"`
	TargetFolderID uint64 `json:"targetFolderID"`
}

func handleContactsCopy(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p contactsCopyParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotContacts()
	c, err := us.Mailbox.CopyContact(p.ContactID, p.TargetFolderID)
	if err != nil {
		return nil, err
	}
	if d.Store != nil {
		if err := d.Store.SaveContact(ctx, us.UserID, c); err != nil {
			us.Mailbox.RestoreContacts(snap)
			return nil, apperr.Newf(apperr.InternalError, "save contact: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassContacts)
	return contactSummary(c), nil
}

func handleContactsRemove(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p contactIDParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotContacts()
	if err := us.Mailbox.RemoveContact(p.ContactID); err != nil {
		return nil, err
	}
	if d.Store != nil {
		if err := d.Store.DeleteContact(ctx, p.ContactID); err != nil {
			us.Mailbox.RestoreContacts(snap)
			return nil, apperr.Newf(apperr.InternalError, "delete contact: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassContacts)
	return map[string]interface{}{"ok": true}, nil
}
