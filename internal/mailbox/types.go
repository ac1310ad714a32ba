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

// Package mailbox holds the in-memory mailbox aggregate: folders,
// messages, aliases, contacts, compositions, attachments, and alerts
// for one user. It has no locking of its own — the session layer
// holds the aggregate behind a reader/writer lock and serializes all
// mutation through it.
package mailbox

import "time"

// Flag bits. System flags are read-only to RPC callers; user flags
// may be freely added/removed/replaced; Tagged is auto-maintained
// whenever a message carries at least one tag.
const (
	FlagSeen     uint64 = 1 << iota // system
	FlagAnswered                    // system
	FlagDeleted                     // system
	FlagDraft                       // system
	FlagRecent                      // system

	FlagFlagged // user
	FlagForwarded
	FlagPriority

	FlagTagged // auto-maintained
)

// SystemFlags is the bitset RPC callers may never set or clear
// directly through messages.flag.
const SystemFlags = FlagSeen | FlagAnswered | FlagDeleted | FlagDraft | FlagRecent | FlagTagged

// UserFlags is the bitset a "replace" flag action is allowed to fully
// overwrite, leaving system bits untouched.
const UserFlags = FlagFlagged | FlagForwarded | FlagPriority

var flagNames = map[uint64]string{
	FlagSeen:      "\\Seen",
	FlagAnswered:  "\\Answered",
	FlagDeleted:   "\\Deleted",
	FlagDraft:     "\\Draft",
	FlagRecent:    "\\Recent",
	FlagFlagged:   "\\Flagged",
	FlagForwarded: "$Forwarded",
	FlagPriority:  "$Priority",
	FlagTagged:    "$Tagged",
}

// FlagNames returns the wire names of every bit set in status.
func FlagNames(status uint64) []string {
	var names []string
	for bit, name := range flagNames {
		if status&bit != 0 {
			names = append(names, name)
		}
	}
	return names
}

// LockReason is the sub-reason an account is locked, surfaced
// verbatim in AccountLocked errors.
type LockReason string

const (
	LockNone       LockReason = ""
	LockAdmin      LockReason = "admin"
	LockInactivity LockReason = "inactivity"
	LockAbuse      LockReason = "abuse"
	LockUser       LockReason = "user"
)

// User is the account record owned by the session layer and shared,
// read-mostly, across every protocol connection for that account.
type User struct {
	UserID             uint64
	Username           string
	VerificationToken  string
	PasswordHash       []byte
	MasterKey          []byte
	StoragePublicKey   string // hex compressed point, set when EncryptData is enabled
	EncryptData        bool
	RequireTLS         bool
	Locked             LockReason
	QuotaBytes         int64
	UsedBytes          int64
}

// Folder is one node in a user's folder forest. ParentID == 0 means a
// root-level folder. Name is the single path segment this node
// contributes, in escaped form.
type Folder struct {
	FolderID uint64
	ParentID uint64
	Order    uint32
	Name     string
}

// Message is one mail object. Visible=false marks logical deletion;
// invisible messages are excluded from every listing/scan operation.
type Message struct {
	MessageID    uint64
	FolderID     uint64
	Server       string
	Status       uint64
	Size         int64
	SignatureID  string
	SignatureKey string
	CreatedUTC   time.Time
	Tags         []string
	Visible      bool

	From         string
	To           string
	AddressedTo  string
	ReplyTo      string
	ReturnPath   string
	Subject      string
	Date         time.Time
	Snippet      string
}

// Alias is a sending identity for a user. At most one alias has
// Selected == true.
type Alias struct {
	AliasID    uint64
	Address    string
	Display    string
	Selected   bool
	CreatedUTC time.Time
}

// Contact is one address-book entry. Name must be unique
// case-sensitively within its folder.
type Contact struct {
	ContactID uint64
	FolderID  uint64
	Name      string
	Details   map[string]string
}

// ContactFolder pairs a folder node with the contact records it
// contains, forming the contacts-context equivalent of a mail folder.
type ContactFolder struct {
	Folder  Folder
	Records map[uint64]*Contact
}

// Attachment is one file uploaded into a Composition. FileData is nil
// until its multipart upload completes.
type Attachment struct {
	AttachmentID uint64
	Filename     string
	FileData     []byte
}

// Composition is an in-progress outbound message. It lives only in
// memory and is destroyed on send or session end.
type Composition struct {
	ComposeID   uint64
	Attachments map[uint64]*Attachment
	Attached    uint64
}

// Alert is a one-way notification surfaced to the user until
// acknowledged.
type Alert struct {
	AlertID        uint64
	Kind           string
	Message        string
	CreatedUTC     time.Time
	AcknowledgedAt *time.Time
}

// ConfigEntry is one user configuration key, with flags describing
// its origin/mutability the way the source config table does.
type ConfigEntry struct {
	Value string
	Flags uint32
}
