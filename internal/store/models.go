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

// Package store is the GORM-backed persistence layer: one row per
// mailbox.User/Folder/Message/Alias/Contact/Alert/ConfigEntry, plus the
// serial and auth-throttle counters the session layer needs from an
// external, crash-durable authority.
package store

import "time"

// User is the account row. PasswordHash and MasterKey are stored as
// opaque blobs; StoragePublicKey is the hex compressed point used to
// seal incoming mail when EncryptData is set.
type User struct {
	UserID            uint64 `gorm:"primaryKey;column:user_id"`
	Username          string `gorm:"uniqueIndex;not null"`
	VerificationToken string
	PasswordHash      []byte `gorm:"not null"`
	MasterKey         []byte
	StoragePublicKey  string
	EncryptData       bool
	RequireTLS        bool
	Locked            string `gorm:"column:locked"`
	QuotaBytes        int64
	UsedBytes         int64
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// Folder is one node of a user's folder forest.
type Folder struct {
	FolderID uint64 `gorm:"primaryKey;column:folder_id"`
	UserID   uint64 `gorm:"index;not null"`
	ParentID uint64 `gorm:"column:parent_id"`
	Order    uint32 `gorm:"column:sort_order"`
	Name     string `gorm:"not null"`
}

func (Folder) TableName() string { return "folders" }

// Message is one stored mail object, including the metadata surfaced
// by messages.list without a full body load.
type Message struct {
	MessageID    uint64 `gorm:"primaryKey;column:message_id"`
	UserID       uint64 `gorm:"index;not null"`
	FolderID     uint64 `gorm:"index;not null"`
	Server       string
	Status       uint64
	Size         int64
	SignatureID  string
	SignatureKey string
	CreatedUTC   time.Time
	Tags         string `gorm:"column:tags"` // comma-joined; short lists, no need for a join table
	Visible      bool   `gorm:"index"`

	From        string
	To          string
	AddressedTo string
	ReplyTo     string
	ReturnPath  string
	Subject     string
	Date        time.Time
	Snippet     string
}

func (Message) TableName() string { return "messages" }

// Alias is a sending identity belonging to a user.
type Alias struct {
	AliasID    uint64 `gorm:"primaryKey;column:alias_id"`
	UserID     uint64 `gorm:"index;not null"`
	Address    string `gorm:"not null"`
	Display    string
	Selected   bool
	CreatedUTC time.Time
}

func (Alias) TableName() string { return "aliases" }

// Contact is one address-book entry, scoped to a contacts folder.
type Contact struct {
	ContactID uint64 `gorm:"primaryKey;column:contact_id"`
	UserID    uint64 `gorm:"index;not null"`
	FolderID  uint64 `gorm:"index;not null"`
	Name      string `gorm:"not null"`
	Details   string `gorm:"column:details"` // JSON-encoded map[string]string
}

func (Contact) TableName() string { return "contacts" }

// Alert is a one-way notification row.
type Alert struct {
	AlertID        uint64 `gorm:"primaryKey;column:alert_id"`
	UserID         uint64 `gorm:"index;not null"`
	Kind           string
	Message        string
	CreatedUTC     time.Time
	AcknowledgedAt *time.Time
}

func (Alert) TableName() string { return "alerts" }

// ConfigRow is one per-user configuration key/value pair.
type ConfigRow struct {
	UserID uint64 `gorm:"primaryKey;column:user_id"`
	Key    string `gorm:"primaryKey;column:config_key"`
	Value  string
	Flags  uint32
}

func (ConfigRow) TableName() string { return "config" }

// SerialRow is the external, crash-durable authority for one
// (user_id, object_class) serial counter, reconciled against the
// in-memory UserState cache by the session layer.
type SerialRow struct {
	UserID uint64 `gorm:"primaryKey;column:user_id"`
	Class  string `gorm:"primaryKey;column:class"`
	Value  uint64
}

func (SerialRow) TableName() string { return "serials" }

// AuthFailure is one recorded failed authentication attempt, used by
// the throttle cache to count failures within a rolling window.
type AuthFailure struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"index;not null"`
	OccurredAt time.Time `gorm:"index"`
}

func (AuthFailure) TableName() string { return "auth_failures" }
