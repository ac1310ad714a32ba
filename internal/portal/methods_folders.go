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
	"github.com/lavabit/magmad/internal/session"
)

func init() {
	registerMethod("folders.add", handleFoldersAdd)
	registerMethod("folders.list", handleFoldersList)
	registerMethod("folders.remove", handleFoldersRemove)
	registerMethod("folders.rename", handleFoldersRename)
	registerMethod("folders.tags", handleFoldersTags)
}

// Folder namespaces. A contacts folder mirrors a mail folder's id
// space through ContactFolder's embedded Folder (mailbox.EnsureContactFolder),
// but folders.list/remove/rename/tags only walk the mail tree today —
// see DESIGN.md for the contacts-folder-CRUD gap this leaves.
const (
	folderContextMail     = "mail"
	folderContextContacts = "contacts"
)

type foldersAddParams struct {
	Context string `json:"context"`
	Name    string `json:"name"`
}

func handleFoldersAdd(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p foldersAddParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.Context != folderContextMail && p.Context != folderContextContacts {
		return nil, apperr.New(apperr.InvalidKeyword, "unsupported context")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	folderSnap := us.Mailbox.SnapshotFolders()
	contactSnap := us.Mailbox.SnapshotContacts()
	f, err := us.Mailbox.CreateFolder(p.Name)
	if err != nil {
		return nil, err
	}
	if p.Context == folderContextContacts {
		us.Mailbox.EnsureContactFolder(f.FolderID)
	}
	if d.Store != nil {
		if err := d.Store.SaveFolder(ctx, us.UserID, f); err != nil {
			us.Mailbox.RestoreFolders(folderSnap)
			us.Mailbox.RestoreContacts(contactSnap)
			return nil, apperr.Newf(apperr.InternalError, "save folder: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassFolders)
	return map[string]interface{}{"folderID": f.FolderID, "name": f.Name, "parentID": f.ParentID}, nil
}

type foldersListParams struct {
	Context string `json:"context"`
}

func handleFoldersList(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p foldersListParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.Context != folderContextMail {
		return nil, apperr.New(apperr.InvalidKeyword, "unsupported context")
	}

	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	out := make([]map[string]interface{}, 0, len(us.Mailbox.Folders))
	for id, f := range us.Mailbox.Folders {
		out = append(out, map[string]interface{}{
			"folderID": id,
			"parentID": f.ParentID,
			"name":     f.Name,
			"order":    f.Order,
		})
	}
	return out, nil
}

type foldersRemoveParams struct {
	Context  string `json:"context"`
	FolderID uint64 `json:"folderID"`
}

func handleFoldersRemove(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p foldersRemoveParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.Context != folderContextMail {
		return nil, apperr.New(apperr.InvalidKeyword, "unsupported context")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	folderSnap := us.Mailbox.SnapshotFolders()
	messageSnap := us.Mailbox.SnapshotMessages()
	if err := us.Mailbox.DeleteFolder(p.FolderID); err != nil {
		return nil, err
	}
	if d.Store != nil {
		if err := d.Store.DeleteFolder(ctx, p.FolderID); err != nil {
			us.Mailbox.RestoreFolders(folderSnap)
			us.Mailbox.RestoreMessages(messageSnap)
			return nil, apperr.Newf(apperr.InternalError, "delete folder: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassFolders)
	return map[string]interface{}{"ok": true}, nil
}

type foldersRenameParams struct {
	Context  string `json:"context"`
	FolderID uint64 `json:"folderID"`
	Name     string `json:"name"`
}

func handleFoldersRename(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p foldersRenameParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.Context != folderContextMail {
		return nil, apperr.New(apperr.InvalidKeyword, "unsupported context")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotFolders()

	if err := us.Mailbox.RenameFolder(p.FolderID, p.Name); err != nil {
		return nil, err
	}

	if d.Store != nil {
		for id, f := range us.Mailbox.Folders {
			if prior, existed := snap[id]; !existed || *prior != *f {
				if err := d.Store.SaveFolder(ctx, us.UserID, f); err != nil {
					us.Mailbox.RestoreFolders(snap)
					return nil, apperr.Newf(apperr.InternalError, "save folder: %v", err)
				}
			}
		}
	}
	d.bumpSerial(ctx, sess, session.ClassFolders)
	return map[string]interface{}{"ok": true}, nil
}

type foldersTagsParams struct {
	Context  string `json:"context"`
	FolderID uint64 `json:"folderID"`
}

func handleFoldersTags(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p foldersTagsParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}

	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	if p.Context != folderContextMail {
		// Non-mail contexts have no tag histogram; mirror the original
		// method table's "mail only returns data" note.
		return map[string]int{}, nil
	}
	return us.Mailbox.FolderTagHistogram(p.FolderID), nil
}
