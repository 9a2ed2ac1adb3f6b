// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"net/url"
	"path"
	"strings"
)

// BaseURI is the immutable resolution context threaded through a parse. Derived
// copies are returned by the With* methods; sibling branches never share edits.
type BaseURI struct {
	Name    string
	HomeURL string // the manifest location
	BaseURL string // directory used to resolve relative references
}

// NewBaseURI derives the base directory from a manifest location.
func NewBaseURI(manifestURL, name string) BaseURI {
	return BaseURI{Name: name, HomeURL: manifestURL, BaseURL: DirURL(manifestURL)}
}

// WithBaseURL returns a copy with a new base directory.
func (b BaseURI) WithBaseURL(base string) BaseURI {
	b.BaseURL = base
	return b
}

// WithName returns a copy with a new display name.
func (b BaseURI) WithName(name string) BaseURI {
	b.Name = name
	return b
}

// Resolve joins a reference against the base directory.
func (b BaseURI) Resolve(ref string) string {
	return JoinURL(b.BaseURL, ref)
}

// DirURL strips the query and the last path element, keeping the trailing slash.
func DirURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		// keep "scheme://host" intact
		if j := strings.Index(raw, "://"); j >= 0 && i < j+3 {
			return raw + "/"
		}
		return raw[:i+1]
	}
	return ""
}

// IsAbsoluteURL reports whether ref carries its own scheme.
func IsAbsoluteURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// ResolveBase resolves a BaseURL override against the previously resolved base:
//
//	absolute URL      replaces the parent
//	"../" prefix      strips one parent path segment per occurrence
//	"/" prefix        keeps scheme and host, replaces the path
//	anything else     is appended as a path segment
func ResolveBase(parent, override string) string {
	override = strings.TrimSpace(override)
	switch {
	case override == "":
		return parent
	case IsAbsoluteURL(override):
		return override
	case parent == "":
		return override
	case strings.HasPrefix(override, "../"):
		p := strings.TrimSuffix(parent, "/")
		floor := originLen(p)
		for strings.HasPrefix(override, "../") {
			override = override[3:]
			if i := strings.LastIndex(p, "/"); i >= floor {
				p = p[:i]
			}
		}
		return p + "/" + override
	case strings.HasPrefix(override, "/"):
		return parent[:originLen(parent)] + override
	default:
		if strings.HasSuffix(parent, "/") {
			return parent + override
		}
		return parent + "/" + override
	}
}

// originLen returns the length of the "scheme://host" prefix of u, or 0.
func originLen(u string) int {
	i := strings.Index(u, "://")
	if i < 0 {
		return 0
	}
	rest := u[i+3:]
	if j := strings.Index(rest, "/"); j >= 0 {
		return i + 3 + j
	}
	return len(u)
}

// JoinURL resolves ref against base following RFC 3986. Absolute references and
// an empty base return ref unchanged.
func JoinURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == "" || IsAbsoluteURL(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if b.Scheme == "" {
		// local file manifests
		if path.IsAbs(ref) {
			return ref
		}
		return path.Join(DirURL(base), ref)
	}
	return b.ResolveReference(r).String()
}

// URLPath returns the path component of raw, used for query-insensitive comparisons.
func URLPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	return u.Path
}
