// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLang canonicalizes a BCP 47 (or ISO 639-2) tag. Values that do not
// parse are returned trimmed but otherwise unchanged.
func NormalizeLang(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return t.String()
}

// LangMatches reports whether lang satisfies the preferred tag, comparing base
// languages so that "en" matches "en-US".
func LangMatches(lang, preferred string) bool {
	if preferred == "" {
		return true
	}
	a, errA := language.Parse(lang)
	b, errB := language.Parse(preferred)
	if errA != nil || errB != nil {
		return strings.EqualFold(lang, preferred)
	}
	baseA, _ := a.Base()
	baseB, _ := b.Base()
	return baseA == baseB
}
