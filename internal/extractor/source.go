// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jlaffaye/ftp"
)

// maxManifestSize bounds a single manifest read.
const maxManifestSize = 64 << 20

// ErrUnsupportedScheme is returned for URIs that are not http(s), ftp or local paths.
var ErrUnsupportedScheme = errors.New("extractor: unsupported uri scheme")

// StatusError reports a non-200 manifest response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("extractor: GET %s: status %d", e.URL, e.Code)
}

// location classifies a URI. Paths without a scheme (and file:// URLs) are local.
func location(uri string) (scheme, localPath string, err error) {
	u, perr := url.Parse(uri)
	if perr != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// no scheme, or a Windows drive letter
		return "file", uri, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return "http", "", nil
	case "ftp":
		return "ftp", "", nil
	case "file":
		return "file", u.Path, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// fetchHTTP returns the body and the final URL after redirects, which is the
// base for relative references.
func (e *Extractor) fetchHTTP(ctx context.Context, uri string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", &StatusError{URL: uri, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return "", "", err
	}
	final := uri
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return string(body), final, nil
}

func (e *Extractor) fetchFTP(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}
	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(e.timeout))
	if err != nil {
		return "", fmt.Errorf("ftp dial %s: %w", host, err)
	}
	defer func() { _ = conn.Quit() }()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return "", fmt.Errorf("ftp login: %w", err)
	}
	r, err := conn.Retr(u.Path)
	if err != nil {
		return "", fmt.Errorf("ftp retr %s: %w", u.Path, err)
	}
	defer r.Close()
	body, err := io.ReadAll(io.LimitReader(r, maxManifestSize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func readLocal(path string) (string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
