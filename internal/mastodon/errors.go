package mastodon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized marks 401/403 responses: a bad or missing access token.
	ErrUnauthorized = errors.New("mastodon: unauthorized")
	ErrNotFound     = errors.New("mastodon: not found")
	ErrRateLimited  = errors.New("mastodon: rate limited")
)

// APIError is a non-2xx response from a server.
type APIError struct {
	Server  string
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s%s: %d %s", e.Method, e.Server, e.Path, e.Status, msg)
}

// Is lets callers match APIErrors against the sentinel errors above.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// TransportError is a failure to get any response: DNS, TLS, connection, timeout.
type TransportError struct {
	Server string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Server, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// parseAPIError extracts Mastodon's {"error": "..."} body when present.
func parseAPIError(server, method, path string, status int, body []byte) *APIError {
	e := &APIError{Server: server, Method: method, Path: path, Status: status}
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Error
		if payload.ErrorDescription != "" {
			e.Message = strings.TrimSpace(e.Message + ": " + payload.ErrorDescription)
		}
	}
	return e
}
