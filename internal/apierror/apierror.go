// Package apierror decodes API failure responses into a typed error once, at the
// HTTP boundary, so the rest of the code switches on a Kind instead of poking at
// response bodies.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error codes the API places in 401 response bodies.
const (
	CodeTokenExpired   = "AUTH_TOKEN_EXPIRED"
	CodeSessionExpired = "SESSION_EXPIRED"
	CodeSessionRevoked = "SESSION_REVOKED"
	CodeHijackDetected = "SESSION_HIJACK_DETECTED"
)

// maxBodyBytes bounds how much of an error body is read.
const maxBodyBytes = 64 * 1024

// Kind classifies an API error.
type Kind int

const (
	KindOther Kind = iota
	KindTokenExpired
	KindSessionExpired
	KindSessionRevoked
	KindHijackDetected
)

func (k Kind) String() string {
	switch k {
	case KindTokenExpired:
		return "TokenExpired"
	case KindSessionExpired:
		return "SessionExpired"
	case KindSessionRevoked:
		return "SessionRevoked"
	case KindHijackDetected:
		return "HijackDetected"
	default:
		return "Other"
	}
}

// EndsSession reports whether the kind means the session is dead and must not be refreshed.
func (k Kind) EndsSession() bool {
	return k == KindSessionExpired || k == KindSessionRevoked || k == KindHijackDetected
}

// KindOf maps a status code and body code to a Kind. Only 401 responses carry auth kinds.
func KindOf(status int, code string) Kind {
	if status != http.StatusUnauthorized {
		return KindOther
	}
	switch code {
	case CodeTokenExpired:
		return KindTokenExpired
	case CodeSessionExpired:
		return KindSessionExpired
	case CodeSessionRevoked:
		return KindSessionRevoked
	case CodeHijackDetected:
		return KindHijackDetected
	default:
		return KindOther
	}
}

// Error is a non-2xx API response.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
}

// New builds an Error, deriving the Kind from status and code.
func New(status int, code, message string) *Error {
	return &Error{
		Kind:       KindOf(status, code),
		StatusCode: status,
		Code:       code,
		Message:    message,
	}
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// body is the error payload shape; some endpoints use "error" instead of "message".
type body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Decode reads resp.Body into an Error. It never fails: an unreadable or
// non-JSON body yields KindOther with the status text as message.
func Decode(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	var b body
	if len(data) > 0 && json.Unmarshal(data, &b) == nil {
		msg := b.Message
		if msg == "" {
			msg = b.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return New(resp.StatusCode, b.Code, msg)
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return New(resp.StatusCode, "", msg)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, status int) bool {
	apiErr, ok := As(err)
	return ok && apiErr.StatusCode == status
}

// IsUnauthorized reports whether err is a 401 API error.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// KindFor returns the Kind of err, or KindOther if err is not an API error.
func KindFor(err error) Kind {
	if apiErr, ok := As(err); ok {
		return apiErr.Kind
	}
	return KindOther
}
