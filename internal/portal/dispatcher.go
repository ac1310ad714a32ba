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

// Package portal is the JSON-RPC 2.0 control plane: one POST hook
// accepting {jsonrpc, method, params, id} envelopes, dispatched
// against a fixed, closed method table onto handlers that read/mutate
// the mailbox state behind the session layer's writer lock.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"github.com/lavabit/magmad/framework/log"
	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/session"
)

// Request is one decoded JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is the JSON-RPC 2.0 envelope written back to the caller.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// WireError is the {code, message} pair the dispatcher emits on
// failure, with the symbolic code preserved so richer clients can
// branch on it without parsing message text.
type WireError struct {
	Code    int    `json:"code"`
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// anonymousAllowed is the fixed set of methods a neutral (unauthenticated)
// session may call.
var anonymousAllowed = map[string]bool{
	"auth":       true,
	"cookies":    true,
	"ad":         true,
	"scrape":     true,
	"scrape.add": true,
}

// handlerFunc implements one method's business logic. ctx carries
// cancellation for the DB/cache suspension points inside the handler;
// sess is nil for anonymous methods.
type handlerFunc func(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error)

// methodTable is the fixed, closed set of methods from §6, keyed by
// name. A real binary-searched table keyed by length+bytes is an
// implementation detail of the lookup, not the contract; a Go map
// gives the same O(1) dispatch the source achieves with its sorted
// table.
var methodTable map[string]handlerFunc

func registerMethod(name string, fn handlerFunc) {
	if methodTable == nil {
		methodTable = make(map[string]handlerFunc)
	}
	methodTable[name] = fn
}

// Dispatcher wires the session registry, store, and metrics together
// and serves Handle calls for every connection.
type Dispatcher struct {
	Registry *session.Registry
	Store    Store
	Auth     Authenticator
	Serials  session.SerialStore
	Throttle Throttle
	Metrics  *Metrics
	Log      log.Logger
}

// Store is the persistence surface a handler needs beyond the
// in-memory mailbox aggregate: flushing mutated entities back to the
// database inside the same snapshot/restore envelope that guards the
// in-memory change. Implemented concretely by internal/store.SQLStore.
type Store interface {
	SaveFolder(ctx context.Context, userID uint64, f *mailbox.Folder) error
	DeleteFolder(ctx context.Context, folderID uint64) error
	SaveMessage(ctx context.Context, userID uint64, m *mailbox.Message) error
	SaveMessages(ctx context.Context, userID uint64, msgs []*mailbox.Message) error
	SaveContact(ctx context.Context, userID uint64, c *mailbox.Contact) error
	DeleteContact(ctx context.Context, contactID uint64) error
	SaveAlert(ctx context.Context, userID uint64, a *mailbox.Alert) error
	SaveConfig(ctx context.Context, userID uint64, key string, entry *mailbox.ConfigEntry) error
	SaveUser(ctx context.Context, u *mailbox.User) error
}

// Authenticator resolves a normalized username to its stored
// credential row; methods_auth.go performs the bcrypt comparison
// itself so the taxonomy's AuthFailed/AccountLocked distinction stays
// in the RPC layer rather than buried in the store.
type Authenticator interface {
	LookupCredentials(ctx context.Context, username string) (userID uint64, passwordHash []byte, locked mailbox.LockReason, err error)
}

// Throttle is the anti-abuse collaborator behind the `auth` method's
// 16-failures/24h lockout.
type Throttle interface {
	IsThrottled(ctx context.Context, username string, now time.Time) (bool, error)
	RecordAuthFailure(ctx context.Context, username string, now time.Time) error
	ClearAuthFailures(ctx context.Context, username string) error
}

// NewDispatcher wires a Dispatcher around an already-constructed
// session registry and its collaborators.
func NewDispatcher(registry *session.Registry, store Store, auth Authenticator, serials session.SerialStore, throttle Throttle, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Store:    store,
		Auth:     auth,
		Serials:  serials,
		Throttle: throttle,
		Metrics:  metrics,
		Log:      log.Logger{Name: "portal"},
	}
}

// connState tracks the per-connection violation counter from §4.6's
// anti-abuse policy; the protocol front end terminates the connection
// once it crosses a threshold.
type connState struct {
	violations int32
}

// ViolationThreshold is the per-connection malformed/rejected request
// count at which the front end should drop the connection.
const ViolationThreshold = 32

// RecordViolation increments the connection's violation counter and
// reports whether the threshold has now been crossed.
func (c *connState) RecordViolation() bool {
	return atomic.AddInt32(&c.violations, 1) >= ViolationThreshold
}

// Handle decodes and dispatches one JSON-RPC request. token identifies
// the caller's session, or "" for a not-yet-authenticated connection.
func (d *Dispatcher) Handle(ctx context.Context, token string, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return d.errorResponse(nil, apperr.New(apperr.InvalidRequest, "malformed JSON"))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return d.errorResponse(req.ID, apperr.New(apperr.InvalidRequest, "missing jsonrpc/method"))
	}

	fn, ok := methodTable[req.Method]
	if !ok {
		return d.errorResponse(req.ID, apperr.New(apperr.InvalidRequest, "unknown method"))
	}

	var sess *session.Session
	if req.Method != "auth" {
		sess = d.Registry.Lookup(token)
	}
	if !anonymousAllowed[req.Method] && sess.IsAnonymous() {
		return d.errorResponse(req.ID, apperr.New(apperr.PermissionDenied, "method requires an authenticated session"))
	}

	result, err := fn(ctx, d, sess, req.Params)
	if err != nil {
		if d.Metrics != nil {
			d.Metrics.ObserveError(req.Method, err)
		}
		return d.errorResponse(req.ID, err)
	}
	if d.Metrics != nil {
		d.Metrics.ObserveSuccess(req.Method)
	}
	return Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (d *Dispatcher) errorResponse(id json.RawMessage, err error) Response {
	code, symbol, message := mapError(err)
	return Response{
		JSONRPC: "2.0",
		Error:   &WireError{Code: code, Symbol: symbol, Message: message},
		ID:      id,
	}
}

// MethodNames returns the sorted, closed set of methods the dispatcher
// accepts, primarily useful for the `meta` capability response and tests.
func MethodNames() []string {
	names := make([]string, 0, len(methodTable))
	for name := range methodTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bumpSerial increments the object-class serial for sess's user after
// a mutating op commits, per §4.7 step 8. Failures here are logged but
// not surfaced to the caller — the mutation already committed and the
// client already has its result; a lagging serial only costs an extra
// refresh on the next read.
func (d *Dispatcher) bumpSerial(ctx context.Context, sess *session.Session, class session.ObjectClass) {
	if d.Serials == nil || sess == nil || sess.UserState == nil {
		return
	}
	if _, _, err := sess.UserState.SerialIncrement(ctx, d.Serials, class); err != nil {
		d.Log.Error("serial increment failed", err, "class", string(class))
	}
}

// unpackParams decodes params into dst, strictly rejecting unknown
// keys per §4.6 step 3 ("unknown schema keys ⇒ InvalidParams").
func unpackParams(params json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return apperr.New(apperr.InvalidParams, "missing params")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Newf(apperr.InvalidParams, "invalid params: %v", err)
	}
	return nil
}
