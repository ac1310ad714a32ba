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

// Package session implements the process-wide session and user-state
// registries: the token-keyed session table, the (user_id, protocol)
// keyed UserState table with reference counting and atomic eviction,
// and the per-object-class serial reconciliation used to detect
// cross-session changes.
package session

import "github.com/lavabit/magmad/internal/mailbox"

// State is a session's authentication lifecycle stage.
type State int

const (
	StateNeutral State = iota
	StateAuthenticated
	StateTerminated
)

// ObjectClass names one of the object classes tracked by a serial.
type ObjectClass string

const (
	ClassMessages ObjectClass = "messages"
	ClassFolders  ObjectClass = "folders"
	ClassContacts ObjectClass = "contacts"
	ClassAliases  ObjectClass = "aliases"
	ClassConfig   ObjectClass = "config"
	ClassAlerts   ObjectClass = "alerts"
)

// Session is one authenticated protocol connection's view onto a
// UserState. Its Compositions live inside the UserState's mailbox
// instead of being duplicated here, since compositions are already
// scoped to the owning user in this codebase rather than per
// connection.
type Session struct {
	Token      string
	State      State
	Protocol   string
	UserState  *UserState
	Violations uint32
}

// IsAnonymous reports whether s may call only the anonymous allow-list
// methods.
func (s *Session) IsAnonymous() bool {
	return s == nil || s.State != StateAuthenticated
}

// mailboxOf is a convenience accessor used by callers that already
// hold the appropriate lock on s.UserState.
func (s *Session) mailboxOf() *mailbox.Mailbox {
	if s.UserState == nil {
		return nil
	}
	return s.UserState.Mailbox
}
