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
	"strings"
	"time"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/session"
)

func init() {
	registerMethod("alert.list", handleAlertList)
	registerMethod("alert.acknowledge", handleAlertAcknowledge)
	registerMethod("meta", handleMeta)
	registerMethod("debug", handleDebug)
	registerMethod("search", handleSearch)
}

func alertSummary(a *mailbox.Alert) map[string]interface{} {
	return map[string]interface{}{
		"alertID":    a.AlertID,
		"kind":       a.Kind,
		"message":    a.Message,
		"createdUTC": a.CreatedUTC,
	}
}

func handleAlertList(_ context.Context, _ *Dispatcher, sess *session.Session, _ json.RawMessage) (interface{}, error) {
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	alerts := us.Mailbox.ListAlerts()
	out := make([]map[string]interface{}, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertSummary(a))
	}
	return out, nil
}

type alertAcknowledgeParams struct {
	AlertIDs []uint64 `json:"alertIDs"`
}

// handleAlertAcknowledge is transactional per §4.4: the in-memory
// acknowledgement is snapshotted first and restored if any backing
// write fails, so a partial DB failure never desynchronizes the
// in-memory alert state from what's persisted.
func handleAlertAcknowledge(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p alertAcknowledgeParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.AlertIDs) == 0 {
		return nil, apperr.New(apperr.InvalidParams, "alertIDs must not be empty")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotAlerts()
	if err := us.Mailbox.AcknowledgeAlerts(p.AlertIDs, time.Now()); err != nil {
		return nil, err
	}

	if d.Store != nil {
		for _, id := range p.AlertIDs {
			a, ok := us.Mailbox.Alerts[id]
			if !ok {
				continue
			}
			if err := d.Store.SaveAlert(ctx, us.UserID, a); err != nil {
				us.Mailbox.RestoreAlerts(snap)
				return nil, apperr.Newf(apperr.InternalError, "save alert: %v", err)
			}
		}
	}
	d.bumpSerial(ctx, sess, session.ClassAlerts)
	return map[string]interface{}{"ok": true}, nil
}

// handleMeta reports the server's fixed capability surface: the closed
// method table and the protocol version it speaks. It is not in
// anonymousAllowed, so the dispatcher only runs it for an
// authenticated session.
func handleMeta(_ context.Context, _ *Dispatcher, _ *session.Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"methods": MethodNames(),
	}, nil
}

// handleDebug echoes request diagnostics back to the caller; it never
// touches mailbox state and carries no information the caller didn't
// already provide.
func handleDebug(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"echo":          json.RawMessage(params),
		"anonymous":     sess.IsAnonymous(),
		"serverTimeUTC": time.Now().UTC(),
	}, nil
}

type searchParams struct {
	Query string `json:"query"`
}

// handleSearch does a linear, case-insensitive scan over the already
// loaded in-memory message set; there is no SQL full-text index behind
// it, matching the no-SQL-query-text boundary of this layer.
func handleSearch(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p searchParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	needle := strings.ToLower(p.Query)
	if needle == "" {
		return nil, apperr.New(apperr.InvalidParams, "query is required")
	}

	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	var out []map[string]interface{}
	for _, m := range us.Mailbox.Messages {
		if !m.Visible {
			continue
		}
		if strings.Contains(strings.ToLower(m.Subject), needle) ||
			strings.Contains(strings.ToLower(m.Snippet), needle) ||
			strings.Contains(strings.ToLower(m.From), needle) ||
			strings.Contains(strings.ToLower(m.To), needle) {
			out = append(out, messageSummary(m))
		}
	}
	if out == nil {
		out = []map[string]interface{}{}
	}
	return out, nil
}
