package octiv

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/octiv-sniper/internal/domain/booking"
)

// APIError is a non-2xx provider response.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
	kind    booking.Kind
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("octiv: %s failed (status=%d)", e.Op, e.Status)
	}
	return fmt.Sprintf("octiv: %s failed (status=%d): %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Kind() booking.Kind { return e.kind }

func newAPIError(op string, status int, body []byte, rules Rules) *APIError {
	code, msg := parseErrorBody(body)
	return &APIError{
		Op:      op,
		Status:  status,
		Code:    code,
		Message: msg,
		kind:    rules.Classify(status, code, msg),
	}
}

// parseErrorBody pulls a machine code and a human message out of the common
// error envelopes; anything else falls back to the raw (truncated) body.
func parseErrorBody(body []byte) (code, msg string) {
	var env struct {
		Code      any      `json:"code"`
		ErrorCode string   `json:"errorCode"`
		Message   string   `json:"message"`
		Error     any      `json:"error"`
		Errors    []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", truncate(strings.TrimSpace(string(body)), 300)
	}
	switch v := env.Code.(type) {
	case string:
		code = v
	case float64:
		code = fmt.Sprintf("%.0f", v)
	}
	if code == "" {
		code = env.ErrorCode
	}
	msg = env.Message
	if msg == "" {
		if s, ok := env.Error.(string); ok {
			msg = s
		}
	}
	if msg == "" && len(env.Errors) > 0 {
		msg = strings.Join(env.Errors, "; ")
	}
	if msg == "" {
		msg = truncate(strings.TrimSpace(string(body)), 300)
	}
	return code, msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
