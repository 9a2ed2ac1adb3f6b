// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid socks5", "socks5://127.0.0.1:1080", []string{"http", "https", "socks5"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Range(t *testing.T) {
	v := New()
	v.Range("LimitPerHost", 4, 1, 64)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.Range("LimitPerHost", 0, 1, 64)
	v.Range("LimitPerHost", 65, 1, 64)
	if got := len(v.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d", got)
	}
}

func TestValidator_Directory(t *testing.T) {
	tmp := t.TempDir()

	t.Run("creates missing", func(t *testing.T) {
		v := New()
		dir := filepath.Join(tmp, "new")
		v.Directory("SaveDir", dir, false)
		if !v.IsValid() {
			t.Fatalf("unexpected error: %v", v.Err())
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory was not created: %v", err)
		}
	})

	t.Run("must exist", func(t *testing.T) {
		v := New()
		v.Directory("SaveDir", filepath.Join(tmp, "missing"), true)
		if v.IsValid() {
			t.Fatal("expected error for missing directory")
		}
	})

	t.Run("file is not a directory", func(t *testing.T) {
		file := filepath.Join(tmp, "file")
		if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		v := New()
		v.Directory("SaveDir", file, false)
		if v.IsValid() {
			t.Fatal("expected error for regular file")
		}
	})
}

func TestValidator_Hex(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid 16 bytes", "00112233445566778899aabbccddeeff", false},
		{"0x prefix", "0x00112233445566778899AABBCCDDEEFF", false},
		{"short", "0011", true},
		{"not hex", "zz112233445566778899aabbccddeeff", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Hex("Key", tt.value, 16)
			if tt.wantErr == v.IsValid() {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, v.Err())
			}
		})
	}
}

func TestValidator_Base64RedactsValue(t *testing.T) {
	v := New()
	v.Base64("AESKey", "c2VjcmV0", 16)
	if v.IsValid() {
		t.Fatal("expected size error")
	}
	if v.Errors()[0].Value != "<redacted>" {
		t.Errorf("key material leaked into validation error: %v", v.Errors()[0].Value)
	}
}

func TestValidationError_Joins(t *testing.T) {
	v := New()
	v.Positive("A", 0)
	v.NonNegative("B", -1)
	v.OneOf("C", "x", []string{"y"})
	err := v.Err()

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(ve.Errors()))
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("expected joined message, got %q", err.Error())
	}
}

func TestLogLevel(t *testing.T) {
	for _, ok := range []string{"", "trace", "DEBUG", "info", "warn", "error"} {
		v := New()
		v.LogLevel("LogLevel", ok)
		if !v.IsValid() {
			t.Errorf("%q: unexpected errors %v", ok, v.Errors())
		}
	}
	for _, bad := range []string{"loud", "fatal", "disabled"} {
		v := New()
		v.LogLevel("LogLevel", bad)
		if v.IsValid() {
			t.Errorf("%q: expected error", bad)
		}
	}
}
