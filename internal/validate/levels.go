// SPDX-License-Identifier: MIT
package validate

import (
	"strings"

	"github.com/rs/zerolog"
)

// LogLevels lists the levels accepted from configuration, in ascending
// severity. Empty means the logger default.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// LogLevel validates that value names one of LogLevels, case-insensitively.
func (v *Validator) LogLevel(field, value string) {
	if value == "" {
		return
	}
	level, err := zerolog.ParseLevel(strings.ToLower(value))
	if err != nil || level < zerolog.TraceLevel || level > zerolog.ErrorLevel {
		v.AddError(field, "must be one of: "+strings.Join(LogLevels, ", "), value)
	}
}
