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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
)

// SQLStore loads and persists the full mailbox aggregate. It implements
// session.UserLoader; the write-side methods are called by the portal
// handlers after a mutation is applied in memory, inside the same
// snapshot/restore envelope that guards the in-memory change.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an already-open, already-migrated database handle.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Load builds a full in-memory mailbox.Mailbox for userID from the
// database, satisfying session.UserLoader.
func (s *SQLStore) Load(ctx context.Context, userID uint64) (*mailbox.Mailbox, error) {
	var row User
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.InvalidReference, "unknown user")
		}
		return nil, err
	}

	mb := mailbox.New(userRowToModel(&row))

	var folders []Folder
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&folders).Error; err != nil {
		return nil, err
	}
	for _, f := range folders {
		mb.Folders[f.FolderID] = &mailbox.Folder{
			FolderID: f.FolderID,
			ParentID: f.ParentID,
			Order:    f.Order,
			Name:     f.Name,
		}
	}

	var messages []Message
	if err := s.db.WithContext(ctx).Where("user_id = ? AND visible = ?", userID, true).Find(&messages).Error; err != nil {
		return nil, err
	}
	for _, m := range messages {
		mb.Messages[m.MessageID] = messageRowToModel(&m)
	}

	var aliases []Alias
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&aliases).Error; err != nil {
		return nil, err
	}
	for _, a := range aliases {
		mb.Aliases[a.AliasID] = &mailbox.Alias{
			AliasID:    a.AliasID,
			Address:    a.Address,
			Display:    a.Display,
			Selected:   a.Selected,
			CreatedUTC: a.CreatedUTC,
		}
	}

	var contacts []Contact
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&contacts).Error; err != nil {
		return nil, err
	}
	for _, c := range contacts {
		cf, ok := mb.Contacts[c.FolderID]
		if !ok {
			folder := mailbox.Folder{FolderID: c.FolderID}
			if f, ok := mb.Folders[c.FolderID]; ok {
				folder = *f
			}
			cf = &mailbox.ContactFolder{Folder: folder, Records: make(map[uint64]*mailbox.Contact)}
			mb.Contacts[c.FolderID] = cf
		}
		cf.Records[c.ContactID] = &mailbox.Contact{
			ContactID: c.ContactID,
			FolderID:  c.FolderID,
			Name:      c.Name,
			Details:   decodeDetails(c.Details),
		}
	}

	var alerts []Alert
	if err := s.db.WithContext(ctx).Where("user_id = ? AND acknowledged_at IS NULL", userID).Find(&alerts).Error; err != nil {
		return nil, err
	}
	for _, a := range alerts {
		mb.Alerts[a.AlertID] = &mailbox.Alert{
			AlertID:        a.AlertID,
			Kind:           a.Kind,
			Message:        a.Message,
			CreatedUTC:     a.CreatedUTC,
			AcknowledgedAt: a.AcknowledgedAt,
		}
	}

	var config []ConfigRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&config).Error; err != nil {
		return nil, err
	}
	for _, c := range config {
		mb.Config[c.Key] = mailbox.ConfigEntry{Value: c.Value, Flags: c.Flags}
	}

	mb.SyncIDCounters()
	return mb, nil
}

// LookupCredentials resolves a normalized username to its stored
// credential row, satisfying portal.Authenticator.
func (s *SQLStore) LookupCredentials(ctx context.Context, username string) (userID uint64, passwordHash []byte, locked mailbox.LockReason, err error) {
	var row User
	err = s.db.WithContext(ctx).First(&row, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, "", apperr.New(apperr.AuthFailed, "unknown username")
	}
	if err != nil {
		return 0, nil, "", err
	}
	return row.UserID, row.PasswordHash, mailbox.LockReason(row.Locked), nil
}

// SaveFolder upserts one folder row.
func (s *SQLStore) SaveFolder(ctx context.Context, userID uint64, f *mailbox.Folder) error {
	row := Folder{FolderID: f.FolderID, UserID: userID, ParentID: f.ParentID, Order: f.Order, Name: f.Name}
	return s.db.WithContext(ctx).Save(&row).Error
}

// DeleteFolder removes one folder row.
func (s *SQLStore) DeleteFolder(ctx context.Context, folderID uint64) error {
	return s.db.WithContext(ctx).Delete(&Folder{}, "folder_id = ?", folderID).Error
}

// SaveMessage upserts one message row, including its Visible tombstone
// state so soft-deletes survive a reload.
func (s *SQLStore) SaveMessage(ctx context.Context, userID uint64, m *mailbox.Message) error {
	row := messageModelToRow(userID, m)
	return s.db.WithContext(ctx).Save(&row).Error
}

// SaveMessages upserts a batch of message rows in one transaction,
// used after CopyMessages/MoveMessages/FlagMessages touch several ids.
func (s *SQLStore) SaveMessages(ctx context.Context, userID uint64, msgs []*mailbox.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			row := messageModelToRow(userID, m)
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveContact upserts one contact row.
func (s *SQLStore) SaveContact(ctx context.Context, userID uint64, c *mailbox.Contact) error {
	row := Contact{
		ContactID: c.ContactID,
		UserID:    userID,
		FolderID:  c.FolderID,
		Name:      c.Name,
		Details:   encodeDetails(c.Details),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// DeleteContact removes one contact row.
func (s *SQLStore) DeleteContact(ctx context.Context, contactID uint64) error {
	return s.db.WithContext(ctx).Delete(&Contact{}, "contact_id = ?", contactID).Error
}

// SaveAlert upserts one alert row.
func (s *SQLStore) SaveAlert(ctx context.Context, userID uint64, a *mailbox.Alert) error {
	row := Alert{
		AlertID:        a.AlertID,
		UserID:         userID,
		Kind:           a.Kind,
		Message:        a.Message,
		CreatedUTC:     a.CreatedUTC,
		AcknowledgedAt: a.AcknowledgedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// SaveConfig upserts one config entry, or deletes the key when value is nil.
func (s *SQLStore) SaveConfig(ctx context.Context, userID uint64, key string, entry *mailbox.ConfigEntry) error {
	if entry == nil {
		return s.db.WithContext(ctx).Delete(&ConfigRow{}, "user_id = ? AND config_key = ?", userID, key).Error
	}
	row := ConfigRow{UserID: userID, Key: key, Value: entry.Value, Flags: entry.Flags}
	return s.db.WithContext(ctx).Save(&row).Error
}

// SaveUser upserts the user row (quota usage, lock state, storage key).
func (s *SQLStore) SaveUser(ctx context.Context, u *mailbox.User) error {
	row := userModelToRow(u)
	return s.db.WithContext(ctx).Save(&row).Error
}

func userRowToModel(r *User) *mailbox.User {
	return &mailbox.User{
		UserID:            r.UserID,
		Username:          r.Username,
		VerificationToken: r.VerificationToken,
		PasswordHash:      r.PasswordHash,
		MasterKey:         r.MasterKey,
		StoragePublicKey:  r.StoragePublicKey,
		EncryptData:       r.EncryptData,
		RequireTLS:        r.RequireTLS,
		Locked:            mailbox.LockReason(r.Locked),
		QuotaBytes:        r.QuotaBytes,
		UsedBytes:         r.UsedBytes,
	}
}

func userModelToRow(u *mailbox.User) User {
	return User{
		UserID:            u.UserID,
		Username:          u.Username,
		VerificationToken: u.VerificationToken,
		PasswordHash:      u.PasswordHash,
		MasterKey:         u.MasterKey,
		StoragePublicKey:  u.StoragePublicKey,
		EncryptData:       u.EncryptData,
		RequireTLS:        u.RequireTLS,
		Locked:            string(u.Locked),
		QuotaBytes:        u.QuotaBytes,
		UsedBytes:         u.UsedBytes,
	}
}

func messageRowToModel(m *Message) *mailbox.Message {
	return &mailbox.Message{
		MessageID:    m.MessageID,
		FolderID:     m.FolderID,
		Server:       m.Server,
		Status:       m.Status,
		Size:         m.Size,
		SignatureID:  m.SignatureID,
		SignatureKey: m.SignatureKey,
		CreatedUTC:   m.CreatedUTC,
		Tags:         decodeTags(m.Tags),
		Visible:      m.Visible,
		From:         m.From,
		To:           m.To,
		AddressedTo:  m.AddressedTo,
		ReplyTo:      m.ReplyTo,
		ReturnPath:   m.ReturnPath,
		Subject:      m.Subject,
		Date:         m.Date,
		Snippet:      m.Snippet,
	}
}

func messageModelToRow(userID uint64, m *mailbox.Message) Message {
	return Message{
		MessageID:    m.MessageID,
		UserID:       userID,
		FolderID:     m.FolderID,
		Server:       m.Server,
		Status:       m.Status,
		Size:         m.Size,
		SignatureID:  m.SignatureID,
		SignatureKey: m.SignatureKey,
		CreatedUTC:   m.CreatedUTC,
		Tags:         encodeTags(m.Tags),
		Visible:      m.Visible,
		From:         m.From,
		To:           m.To,
		AddressedTo:  m.AddressedTo,
		ReplyTo:      m.ReplyTo,
		ReturnPath:   m.ReturnPath,
		Subject:      m.Subject,
		Date:         m.Date,
		Snippet:      m.Snippet,
	}
}

func encodeTags(tags []string) string { return strings.Join(tags, ",") }

func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func encodeDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeDetails(s string) map[string]string {
	details := make(map[string]string)
	if s == "" {
		return details
	}
	_ = json.Unmarshal([]byte(s), &details)
	return details
}
