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
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/session"
)

func init() {
	registerMethod("aliases", handleAliases)
	registerMethod("config.load", handleConfigLoad)
	registerMethod("config.edit", handleConfigEdit)
	registerMethod("settings.identity", handleSettingsIdentity)
	registerMethod("settings.changepass", handleSettingsChangepass)
}

func handleAliases(_ context.Context, _ *Dispatcher, sess *session.Session, _ json.RawMessage) (interface{}, error) {
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	aliases := us.Mailbox.ListAliases()
	out := make([]map[string]interface{}, 0, len(aliases))
	for _, a := range aliases {
		out = append(out, map[string]interface{}{
			"aliasID":    a.AliasID,
			"address":    a.Address,
			"display":    a.Display,
			"selected":   a.Selected,
			"createdUTC": a.CreatedUTC,
		})
	}
	return out, nil
}

func handleConfigLoad(_ context.Context, _ *Dispatcher, sess *session.Session, _ json.RawMessage) (interface{}, error) {
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	cfg := us.Mailbox.LoadConfig()
	out := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		out[k] = v.Value
	}
	return out, nil
}

type configEditParams map[string]*string

func handleConfigEdit(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var edits configEditParams
	if len(params) == 0 {
		return nil, apperr.New(apperr.InvalidParams, "missing params")
	}
	if err := json.Unmarshal(params, &edits); err != nil {
		return nil, apperr.Newf(apperr.InvalidParams, "invalid params: %v", err)
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotConfig()
	us.Mailbox.EditConfig(edits)

	if d.Store != nil {
		for k, v := range edits {
			var entry *mailbox.ConfigEntry
			if v != nil {
				if e, ok := us.Mailbox.LoadConfig()[k]; ok {
					entry = &e
				}
			}
			if err := d.Store.SaveConfig(ctx, us.UserID, k, entry); err != nil {
				us.Mailbox.RestoreConfig(snap)
				return nil, apperr.Newf(apperr.InternalError, "save config: %v", err)
			}
		}
	}
	d.bumpSerial(ctx, sess, session.ClassConfig)
	return map[string]interface{}{"ok": true}, nil
}

type settingsIdentityParams struct {
	AliasID uint64 `json:"aliasID,omitempty"`
	Address string `json:"address"`
	Display string `json:"display,omitempty"`
}

// handleSettingsIdentity creates or edits a sending identity and makes
// it the user's sole selected alias.
func handleSettingsIdentity(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p settingsIdentityParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.Address == "" {
		return nil, apperr.New(apperr.InvalidParams, "address is required")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	a, err := us.Mailbox.UpsertIdentity(p.AliasID, p.Address, p.Display, time.Now())
	if err != nil {
		return nil, err
	}
	d.bumpSerial(ctx, sess, session.ClassAliases)
	return map[string]interface{}{
		"aliasID":  a.AliasID,
		"address":  a.Address,
		"display":  a.Display,
		"selected": a.Selected,
	}, nil
}

type settingsChangepassParams struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// handleSettingsChangepass verifies the caller's current password
// before replacing it, then persists the new bcrypt hash.
func handleSettingsChangepass(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p settingsChangepassParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.NewPassword == "" {
		return nil, apperr.New(apperr.InvalidParams, "newPassword is required")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	if err := bcrypt.CompareHashAndPassword(us.Mailbox.User.PasswordHash, []byte(p.OldPassword)); err != nil {
		return nil, apperr.New(apperr.AuthFailed, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Newf(apperr.InternalError, "hash password: %v", err)
	}

	previous := us.Mailbox.User.PasswordHash
	us.Mailbox.User.PasswordHash = hash
	if d.Store != nil {
		if err := d.Store.SaveUser(ctx, us.Mailbox.User); err != nil {
			us.Mailbox.User.PasswordHash = previous
			return nil, apperr.Newf(apperr.InternalError, "save user: %v", err)
		}
	}
	return map[string]interface{}{"ok": true}, nil
}
