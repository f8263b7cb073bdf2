// Copyright Project Contour Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timeout describes durations that can be exactly one of "use the
// default", "disabled", or an explicit value, and parses them from the
// command-line/config string form sliced accepts for frequencies and
// I/O deadlines.
package timeout

import (
	"fmt"
	"time"
)

// Setting describes a timeout or frequency setting that can be exactly one
// of: disable the operation entirely, use the default, or use a specific
// value. The zero value is a Setting representing "use the default".
type Setting struct {
	val      time.Duration
	disabled bool
}

// IsDisabled returns whether the operation should be disabled entirely.
func (s Setting) IsDisabled() bool {
	return s.disabled
}

// UseDefault returns whether the default value should be used.
func (s Setting) UseDefault() bool {
	return !s.disabled && s.val == 0
}

// Duration returns the explicit value if one exists.
func (s Setting) Duration() time.Duration {
	return s.val
}

// DefaultSetting returns a Setting representing "use the default".
func DefaultSetting() Setting {
	return Setting{}
}

// DisabledSetting returns a Setting representing "disabled".
func DisabledSetting() Setting {
	return Setting{disabled: true}
}

// DurationSetting returns a timeout setting with the given duration.
func DurationSetting(duration time.Duration) Setting {
	return Setting{val: duration}
}

// Parse parses the string representation of a timeout/frequency setting:
//   - an empty string means "use the default".
//   - any valid representation of "0" means "use the default".
//   - "-" or "infinity" means "disabled".
//   - any other valid Go duration string is used as the specific value.
//
// An unparsable non-empty, non-magic string is an error; the caller should
// fall back to DefaultSetting() rather than silently disable the setting.
func Parse(s string) (Setting, error) {
	if s == "" {
		return DefaultSetting(), nil
	}

	if s == "-" || s == "infinity" || s == "infinite" {
		return DisabledSetting(), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return DefaultSetting(), fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d == 0 {
		return DefaultSetting(), nil
	}

	return DurationSetting(d), nil
}
