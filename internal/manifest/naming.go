// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"path"
	"strings"
	"unicode"
)

// SanitizeName makes name safe for use as a single path element.
func SanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		bad := unicode.IsControl(r) || strings.ContainsRune(`\/:*?"<>|`, r)
		if bad || unicode.IsSpace(r) {
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = r == '_'
	}
	out := strings.Trim(b.String(), "._ ")
	if out == "" {
		return "stream"
	}
	return out
}

// NameFromURL derives a display name from the last path element of a URL.
func NameFromURL(raw string) string {
	base := path.Base(URLPath(raw))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// ExtensionFromURL returns the lower cased file extension of a URL path.
func ExtensionFromURL(raw string) string {
	return strings.ToLower(path.Ext(URLPath(raw)))
}
