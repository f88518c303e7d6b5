package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	// KindAuthentication is a 401 or rejected credentials. The
	// session must be re-established; never retried.
	KindAuthentication Kind = iota + 1
	// KindValidation carries field-level messages for a malformed payload.
	KindValidation
	// KindNetwork is an unreachable backend, a timeout or a 5xx.
	KindNetwork
	// KindDomain is a business rule rejection.
	KindDomain
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindDomain:
		return "domain"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is the structured failure returned by every backend call and by
// the fail-fast checks in front of them.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	// RequiresAuth tells the caller to send the user to login and
	// re-issue the action afterwards.
	RequiresAuth bool
	Cause        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Status > 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && e.Message == "" {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// FieldMessages flattens Fields into "field: message" strings in field order.
func (e *Error) FieldMessages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, msg := range e.Fields[k] {
			out = append(out, k+": "+msg)
		}
	}
	return out
}

// KindOf returns the Kind of err when it wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindAuthentication
}

// NewDomainError builds a fail-fast business rule rejection.
func NewDomainError(msg string) *Error {
	return &Error{Kind: KindDomain, Message: msg}
}

// NewValidationError builds a fail-fast field validation error.
func NewValidationError(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid request", Fields: fields}
}

// keys that carry a message rather than a field error
var messageKeys = map[string]bool{"detail": true, "error": true, "message": true, "code": true}

// classify turns a non-2xx response into an *Error.
func classify(status int, body []byte) *Error {
	e := &Error{Status: status}
	parsed := gjson.ParseBytes(body)

	if parsed.IsObject() {
		for _, key := range []string{"detail", "error", "message"} {
			if v := parsed.Get(key); v.Exists() && v.Type == gjson.String {
				e.Message = v.String()
				break
			}
		}
		parsed.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if messageKeys[k] {
				return true
			}
			var msgs []string
			switch {
			case value.IsArray():
				value.ForEach(func(_, m gjson.Result) bool {
					msgs = append(msgs, m.String())
					return true
				})
			case value.Type == gjson.String:
				msgs = []string{value.String()}
			}
			if len(msgs) > 0 {
				if e.Fields == nil {
					e.Fields = map[string][]string{}
				}
				e.Fields[k] = msgs
			}
			return true
		})
		if e.Message == "" {
			if nf := e.Fields["non_field_errors"]; len(nf) > 0 {
				e.Message = nf[0]
			}
		}
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 && !strings.HasPrefix(s, "<") {
		e.Message = s
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
		e.RequiresAuth = true
		if e.Message == "" {
			e.Message = "authentication required"
		}
	case status >= http.StatusInternalServerError:
		e.Kind = KindNetwork
		e.Message = "the store is temporarily unavailable"
		e.Fields = nil
	case len(e.Fields) > 0 && (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity):
		e.Kind = KindValidation
		if e.Message == "" {
			e.Message = "invalid request"
		}
	default:
		e.Kind = KindDomain
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}
	return e
}
