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

// Package config implements the small typed configuration map used by
// magmad's modules. Call sites register each expected key against a
// destination pointer, then call Process once to apply values drawn
// from the backing source map (environment-style key=value pairs) and
// surface missing-required-key errors in one place.
package config

import (
	"fmt"
	"time"
)

// Map accumulates key registrations and applies them against Source
// when Process is called.
type Map struct {
	Source map[string]string

	entries []entry
}

type entry struct {
	key      string
	inherit  bool
	required bool
	apply    func(raw string, present bool) error
}

// String registers a string key.
func (m *Map) String(key string, inherit, required bool, def string, dest *string) {
	*dest = def
	m.entries = append(m.entries, entry{key: key, inherit: inherit, required: required, apply: func(raw string, present bool) error {
		if present {
			*dest = raw
		}
		return nil
	}})
}

// StringList registers a comma-separated string list key.
func (m *Map) StringList(key string, inherit, required bool, def []string, dest *[]string) {
	*dest = def
	m.entries = append(m.entries, entry{key: key, inherit: inherit, required: required, apply: func(raw string, present bool) error {
		if !present {
			return nil
		}
		var out []string
		start := 0
		for i := 0; i <= len(raw); i++ {
			if i == len(raw) || raw[i] == ',' {
				if i > start {
					out = append(out, raw[start:i])
				}
				start = i + 1
			}
		}
		*dest = out
		return nil
	}})
}

// Bool registers a boolean key ("true"/"false").
func (m *Map) Bool(key string, inherit, def bool, dest *bool) {
	*dest = def
	m.entries = append(m.entries, entry{key: key, inherit: inherit, apply: func(raw string, present bool) error {
		if !present {
			return nil
		}
		*dest = raw == "true" || raw == "1" || raw == "yes"
		return nil
	}})
}

// Int registers an integer key.
func (m *Map) Int(key string, inherit, required bool, def int, dest *int) {
	*dest = def
	m.entries = append(m.entries, entry{key: key, inherit: inherit, required: required, apply: func(raw string, present bool) error {
		if !present {
			return nil
		}
		var v int
		if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
			return fmt.Errorf("config: key %q: invalid int %q: %w", key, raw, err)
		}
		*dest = v
		return nil
	}})
}

// Int64 registers a 64-bit integer key.
func (m *Map) Int64(key string, inherit, required bool, def int64, dest *int64) {
	*dest = def
	m.entries = append(m.entries, entry{key: key, inherit: inherit, required: required, apply: func(raw string, present bool) error {
		if !present {
			return nil
		}
		var v int64
		if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
			return fmt.Errorf("config: key %q: invalid int64 %q: %w", key, raw, err)
		}
		*dest = v
		return nil
	}})
}

// Duration registers a time.Duration key using Go duration syntax.
func (m *Map) Duration(key string, inherit, required bool, def time.Duration, dest *time.Duration) {
	*dest = def
	m.entries = append(m.entries, entry{key: key, inherit: inherit, required: required, apply: func(raw string, present bool) error {
		if !present {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: key %q: invalid duration %q: %w", key, raw, err)
		}
		*dest = d
		return nil
	}})
}

// Process applies every registered key against Source, returning the
// first validation error and, on success, the set of keys that were
// not recognized by any registration (callers treat unknown keys as a
// hard error at the RPC boundary but not here, where a config source
// may carry keys for modules this Map does not represent).
func (m *Map) Process() ([]string, error) {
	known := make(map[string]bool, len(m.entries))
	for _, e := range m.entries {
		known[e.key] = true
		raw, present := m.Source[e.key]
		if e.required && !present {
			return nil, fmt.Errorf("config: missing required key %q", e.key)
		}
		if err := e.apply(raw, present); err != nil {
			return nil, err
		}
	}

	var unknown []string
	for k := range m.Source {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	return unknown, nil
}
