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

// Package log provides the structured logger used throughout magmad.
// Call sites pass a message followed by alternating key/value pairs,
// e.g. log.Msg("folder created", "user", userID, "folder", name).
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger is the process-wide fallback logger, configured once at
// startup. Individual components normally embed their own Logger value
// carrying a component Name instead of calling through this directly.
var DefaultLogger = Logger{Name: "magmad"}

var (
	baseMu  sync.RWMutex
	base    *zap.Logger
	initted bool
)

// Init installs the zap core used by every Logger value. debug selects
// development-level verbosity; it must be called once before the first
// log line is emitted, normally from the process entry point.
func Init(debug bool) {
	baseMu.Lock()
	defer baseMu.Unlock()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), level)
	base = zap.New(core)
	initted = true
}

func logger() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if !initted {
		baseMu.RUnlock()
		Init(false)
		baseMu.RLock()
	}
	return base
}

// Logger is a lightweight, named logging handle. The zero value is
// usable and logs at Info/Error level through the process-wide zap core.
type Logger struct {
	Name  string
	Debug bool
}

func (l Logger) fields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2+1)
	fields = append(fields, zap.String("component", l.Name))
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}

// Msg logs an informational event.
func (l Logger) Msg(msg string, kv ...interface{}) {
	logger().Info(msg, l.fields(kv)...)
}

// DebugMsg logs a debug event; it is silently dropped unless the
// process-wide logger was initialized with debug=true.
func (l Logger) DebugMsg(msg string, kv ...interface{}) {
	logger().Debug(msg, l.fields(kv)...)
}

// Error logs a failure, attaching the error under the "error" key.
func (l Logger) Error(msg string, err error, kv ...interface{}) {
	fields := l.fields(kv)
	fields = append(fields, zap.Error(err))
	logger().Error(msg, fields...)
}

// Debugln logs a debug line built from space-joined arguments, matching
// the call shape used by modules that print free-form debug text.
func (l Logger) Debugln(args ...interface{}) {
	logger().Sugar().Debug(args...)
}

// Debugf logs a formatted debug line.
func (l Logger) Debugf(format string, args ...interface{}) {
	logger().Sugar().Debugf(format, args...)
}
