// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request
// bodies and conditional request headers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

const maxBodyBytes = 1 << 20

// badRequestError marks malformed client input that never reached the
// service layer.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields,
// trailing data and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &tooLarge):
			return badRequest("request body exceeds %d bytes", tooLarge.Limit)
		default:
			return badRequest("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// parseAmount converts a major-unit decimal string to cents. Zero is
// accepted only when allowZero is set.
func parseAmount(field, s string, allowZero bool) (core.Money, error) {
	if allowZero {
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
		if err == nil && d.IsZero() {
			return core.Money{}, nil
		}
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, badRequest("invalid %s %q", field, s)
	}
	return core.Money{Cents: cents}, nil
}

// sanitizeInput removes control characters (except tab and newlines) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// etagMatches reports whether an If-None-Match header value matches etag,
// using the weak comparison GET requests call for.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
