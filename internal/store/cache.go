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

// Package store's cache.go gives the session layer a crash-durable,
// database-backed authority for per-user serials and the auth-failure
// counters the portal dispatcher's throttle relies on. Both are plain
// SQL-backed counters rather than an in-process cache: correctness
// across process restarts and multiple front ends matters more here
// than microsecond latency.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/lavabit/magmad/framework/log"
	"github.com/lavabit/magmad/internal/session"
)

// Cache wraps a GORM database to provide serial reconciliation and
// authentication throttling on top of the durable store.
type Cache struct {
	db  *gorm.DB
	log log.Logger
}

// NewCache wraps an already-migrated database handle.
func NewCache(db *gorm.DB) *Cache {
	return &Cache{db: db, log: log.Logger{Name: "store.cache"}}
}

// Get satisfies session.SerialStore.
func (c *Cache) Get(ctx context.Context, userID uint64, class session.ObjectClass) (uint64, error) {
	var row SerialRow
	err := c.db.WithContext(ctx).Where("user_id = ? AND class = ?", userID, string(class)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Value, nil
}

// Set satisfies session.SerialStore.
func (c *Cache) Set(ctx context.Context, userID uint64, class session.ObjectClass, value uint64) error {
	row := SerialRow{UserID: userID, Class: string(class), Value: value}
	return c.db.WithContext(ctx).Save(&row).Error
}

// ThrottleWindow and ThrottleLimit implement the 16-failures/24h account
// lockout the dispatcher's auth method enforces.
const (
	ThrottleWindow = 24 * time.Hour
	ThrottleLimit  = 16
)

// RecordAuthFailure appends a failed-login marker for username.
func (c *Cache) RecordAuthFailure(ctx context.Context, username string, now time.Time) error {
	return c.db.WithContext(ctx).Create(&AuthFailure{Username: username, OccurredAt: now}).Error
}

// ClearAuthFailures removes every failure marker for username, called
// after a successful authentication.
func (c *Cache) ClearAuthFailures(ctx context.Context, username string) error {
	return c.db.WithContext(ctx).Delete(&AuthFailure{}, "username = ?", username).Error
}

// AuthFailureCount returns the number of failures recorded for username
// within the trailing ThrottleWindow.
func (c *Cache) AuthFailureCount(ctx context.Context, username string, now time.Time) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&AuthFailure{}).
		Where("username = ? AND occurred_at > ?", username, now.Add(-ThrottleWindow)).
		Count(&n).Error
	return n, err
}

// IsThrottled reports whether username has hit ThrottleLimit failures
// within the window and should be refused further attempts with
// apperr.AuthThrottled.
func (c *Cache) IsThrottled(ctx context.Context, username string, now time.Time) (bool, error) {
	n, err := c.AuthFailureCount(ctx, username, now)
	if err != nil {
		return false, err
	}
	if n >= ThrottleLimit {
		c.log.Msg("account throttled", "username", username, "failures", n)
		return true, nil
	}
	return false, nil
}
