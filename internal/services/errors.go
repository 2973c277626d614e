package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/desertthunder/shotlog/internal/shared"
)

// APIError is a non-2xx response from the workout API.
//
// It unwraps to [shared.ErrAuthFailed] (401/403), [shared.ErrNotFound] (404),
// [shared.ErrValidation] (other 4xx) or [shared.ErrServiceUnavailable] (5xx).
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return shared.ErrAuthFailed
	case e.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return shared.ErrValidation
	case e.StatusCode >= 500:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// IsUnauthorized reports whether the credential itself was rejected.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func newAPIError(method, path string, resp *APIResponse) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Detail:     errorDetail(resp.Body),
		Body:       resp.Body,
	}
}

// errorDetail extracts a human readable message from a DRF-style error body:
// {"detail": "..."}, {"non_field_errors": [...]} or {"field": ["..."]}.
func errorDetail(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(shared.Truncate(string(body), 200))
	}

	if detail, ok := payload["detail"].(string); ok {
		return detail
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		msg := flattenMessages(payload[k])
		if msg == "" {
			continue
		}
		if k == "non_field_errors" {
			parts = append(parts, msg)
		} else {
			parts = append(parts, k+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

func flattenMessages(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		msgs := make([]string, 0, len(t))
		for _, item := range t {
			if s := flattenMessages(item); s != "" {
				msgs = append(msgs, s)
			}
		}
		return strings.Join(msgs, ", ")
	default:
		return ""
	}
}
