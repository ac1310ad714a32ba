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

// Package apperr defines the symbolic error taxonomy shared by the
// mailbox, session, and portal layers. Deep code returns a *Error
// carrying one of the Code constants; the dispatcher is the only
// place that translates a Code into a JSON-RPC numeric error.
package apperr

import "fmt"

// Code is one of the fixed symbolic error categories. It never
// changes meaning across call sites, so the dispatcher can map it to
// a wire error without consulting the message text.
type Code string

const (
	InvalidRequest       Code = "InvalidRequest"
	InvalidParams        Code = "InvalidParams"
	InvalidReference      Code = "InvalidReference"
	InvalidKeyword        Code = "InvalidKeyword"
	IllegalCombination    Code = "IllegalCombination"
	SystemFlagForbidden   Code = "SystemFlagForbidden"
	ConstraintViolation   Code = "ConstraintViolation"
	AuthFailed            Code = "AuthFailed"
	AuthThrottled         Code = "AuthThrottled"
	AccountLocked         Code = "AccountLocked"
	PermissionDenied      Code = "PermissionDenied"
	InvalidContainer      Code = "InvalidContainer"
	InvalidKeyFormat      Code = "InvalidKeyFormat"
	InvalidKey            Code = "InvalidKey"
	AuthenticationFailed  Code = "AuthenticationFailed"
	RetryLater            Code = "RetryLater"
	InternalError         Code = "InternalError"
)

// Error is a typed application error: a stable Code plus a
// human-readable message and optional structured detail (e.g. the
// lock reason carried by AccountLocked).
type Error struct {
	Code    Code
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a detail string, e.g. a lock sub-reason, and
// returns the same Error for chaining at the construction site.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Is reports whether err is an *Error with the given code, so callers
// can branch without a type assertion at every call site.
func Is(err error, code Code) bool {
	ae, ok := err.(*Error)
	return ok && ae.Code == code
}
