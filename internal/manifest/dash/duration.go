// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reISODuration = regexp.MustCompile(`^(-)?P(?:(\d+(?:\.\d+)?)Y)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)W)?(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// Years and months use 365 and 30 day approximations.
var isoUnits = [...]time.Duration{
	365 * 24 * time.Hour, // Y
	30 * 24 * time.Hour,  // M
	7 * 24 * time.Hour,   // W
	24 * time.Hour,       // D
	time.Hour,            // H
	time.Minute,          // M
	time.Second,          // S
}

// ParseDuration parses an xs:duration value such as "PT1H2M3.5S" or "P1DT2H".
// An empty string yields zero.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	m := reISODuration.FindStringSubmatch(v)
	if m == nil || v == "P" || strings.HasSuffix(v, "T") {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", v)
	}
	var total float64
	for i, unit := range isoUnits {
		s := m[i+2]
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", v, err)
		}
		total += f * float64(unit)
	}
	d := time.Duration(total)
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

// ParseDateTime parses an xs:dateTime. Values without a zone are taken as UTC.
func ParseDateTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05.999999999Z0700"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid xs:dateTime %q", v)
}
