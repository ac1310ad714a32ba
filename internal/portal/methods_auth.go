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
	"golang.org/x/text/secure/precis"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/session"
)

func init() {
	registerMethod("auth", handleAuth)
	registerMethod("logout", handleLogout)
	registerMethod("cookies", handleCookies)
	registerMethod("ad", handleAd)
	registerMethod("scrape", handleScrape)
	registerMethod("scrape.add", handleScrapeAdd)
}

type authParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Protocol string `json:"protocol,omitempty"`
}

// handleAuth implements §4.6's `auth` method: normalize the username,
// check the 16-failures/24h throttle before touching credentials at
// all (so a throttled caller never learns whether the username was
// valid), verify the bcrypt hash, and on success materialize or join
// the shared UserState and mint a session token.
func handleAuth(ctx context.Context, d *Dispatcher, _ *session.Session, params json.RawMessage) (interface{}, error) {
	var p authParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.Username == "" || p.Password == "" {
		return nil, apperr.New(apperr.InvalidParams, "username and password are required")
	}
	protocol := p.Protocol
	if protocol == "" {
		protocol = "web"
	}

	key, err := precis.UsernameCaseMapped.CompareKey(p.Username)
	if err != nil {
		return nil, apperr.New(apperr.InvalidParams, "malformed username")
	}

	now := time.Now()
	if d.Throttle != nil {
		throttled, err := d.Throttle.IsThrottled(ctx, key, now)
		if err != nil {
			return nil, apperr.Newf(apperr.InternalError, "throttle check: %v", err)
		}
		if throttled {
			return nil, apperr.New(apperr.AuthThrottled, "too many failed attempts")
		}
	}

	userID, hash, locked, err := d.Auth.LookupCredentials(ctx, key)
	if err != nil {
		if d.Throttle != nil {
			_ = d.Throttle.RecordAuthFailure(ctx, key, now)
		}
		if apperr.Is(err, apperr.AuthFailed) {
			return nil, err
		}
		return nil, apperr.Newf(apperr.InternalError, "lookup credentials: %v", err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(p.Password)); err != nil {
		if d.Throttle != nil {
			_ = d.Throttle.RecordAuthFailure(ctx, key, now)
		}
		return nil, apperr.New(apperr.AuthFailed, "invalid credentials")
	}

	if locked != mailbox.LockNone {
		// Per §7: locked accounts get a positive response carrying the
		// sub-reason, not an error envelope.
		return map[string]interface{}{"auth": "locked", "reason": string(locked)}, nil
	}

	if d.Throttle != nil {
		_ = d.Throttle.ClearAuthFailures(ctx, key)
	}

	us, err := d.Registry.Acquire(ctx, userID, protocol)
	if err != nil {
		return nil, apperr.Newf(apperr.InternalError, "acquire user state: %v", err)
	}
	sess := d.Registry.NewSession(protocol, us)

	return map[string]interface{}{"auth": "success", "token": sess.Token}, nil
}

func handleLogout(_ context.Context, d *Dispatcher, sess *session.Session, _ json.RawMessage) (interface{}, error) {
	if sess != nil {
		d.Registry.Terminate(sess.Token)
	}
	return map[string]interface{}{"ok": true}, nil
}

// handleCookies, handleAd, handleScrape, and handleScrapeAdd are
// anonymous utility methods from the original method table (§6); none
// of them touch mailbox state, so they return fixed, documented
// responses rather than proxying to the excluded web-asset pipeline.
func handleCookies(_ context.Context, _ *Dispatcher, _ *session.Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"accepted": true}, nil
}

func handleAd(_ context.Context, _ *Dispatcher, _ *session.Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"ads": []string{}}, nil
}

func handleScrape(_ context.Context, _ *Dispatcher, _ *session.Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"scraped": false}, nil
}

func handleScrapeAdd(_ context.Context, _ *Dispatcher, _ *session.Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"added": false}, nil
}
