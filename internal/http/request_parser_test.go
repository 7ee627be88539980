package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr string
	}{
		{name: "valid object", body: `{"name":"Flat 4B"}`, want: "Flat 4B"},
		{name: "empty body", body: ``, wantErr: "request body is empty"},
		{name: "unknown field", body: `{"name":"x","admin":true}`, wantErr: "unknown field"},
		{name: "malformed", body: `{"name":`, wantErr: "invalid JSON body"},
		{name: "trailing object", body: `{"name":"a"}{"name":"b"}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got payload
			err := decodeJSON(httptest.NewRecorder(), r, &got)

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("decodeJSON() error = nil, want %q", tt.wantErr)
				}
				var bad *badRequestError
				if !errors.As(err, &bad) {
					t.Errorf("decodeJSON() error type = %T, want *badRequestError", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("decodeJSON() error = %q, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeJSON() error = %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("Name = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input     string
		allowZero bool
		want      int64
		wantErr   bool
	}{
		{"12.34", false, 1234, false},
		{"12,34", false, 1234, false},
		{"0.005", false, 1, false},
		{"0", false, 0, true},
		{"0", true, 0, false},
		{"0,00", true, 0, false},
		{"-1", true, 0, true},
		{"abc", false, 0, true},
		{"", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAmount("amount", tt.input, tt.allowZero)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseAmount(%q) = %d, want error", tt.input, got.Cents)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAmount(%q) error = %v", tt.input, err)
			}
			if got.Cents != tt.want {
				t.Errorf("parseAmount(%q) = %d, want %d", tt.input, got.Cents, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{"tab\there", "tab\there"},
		{"bell\x07gone", "bellgone"},
		{"line\nbreak", "line\nbreak"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEtagMatches(t *testing.T) {
	etag := `"abc"`
	tests := []struct {
		header string
		want   bool
	}{
		{``, false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`"abcd"`, false},
		{`*`, true},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, etag); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
