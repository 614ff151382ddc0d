package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted in query parameters
const DateLayout = "2006-01-02"

// ErrBodyTooLarge is returned when a request body exceeds the MaxBytes limit
var ErrBodyTooLarge = errors.New("request body too large")

// ParseJSON decodes a single JSON value from the request body into dest.
// Trailing data after the value is rejected.
func ParseJSON(r *http.Request, dest interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrBodyTooLarge
		}
		return fmt.Errorf("read body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: unexpected data after value")
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			WriteErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// ParseQueryDate extracts a YYYY-MM-DD query parameter as a UTC midnight.
// ok is false when the parameter is absent.
func ParseQueryDate(r *http.Request, key string) (t time.Time, ok bool, err error) {
	str := ParseQueryString(r, key, "")
	if str == "" {
		return time.Time{}, false, nil
	}
	t, err = time.ParseInLocation(DateLayout, str, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date for query param %s: %s", key, str)
	}
	return t, true, nil
}

// ClientIP returns the originating client address: the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote address without port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
