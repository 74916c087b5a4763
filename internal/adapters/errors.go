package adapters

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tags why a provider could not produce a series.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited" // advance to the next key or provider, never retry
	KindTransient   ErrorKind = "transient"    // network / 5xx, retried with backoff
	KindStructural  ErrorKind = "structural"   // malformed or empty payload
)

// FetchError is the only error type providers return.
type FetchError struct {
	Kind     ErrorKind
	Provider string
	Symbol   string
	Message  string
	Cause    error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s error for %s: %s (%v)", e.Provider, e.Kind, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s error for %s: %s", e.Provider, e.Kind, e.Symbol, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

func NewRateLimitError(provider, symbol, message string) *FetchError {
	return &FetchError{Kind: KindRateLimited, Provider: provider, Symbol: symbol, Message: message}
}

func NewTransientError(provider, symbol, message string, cause error) *FetchError {
	return &FetchError{Kind: KindTransient, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

func NewStructuralError(provider, symbol, message string, cause error) *FetchError {
	return &FetchError{Kind: KindStructural, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

// KindOf reports the tag of err. Errors that are not FetchErrors count as
// transient.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

func IsStructural(err error) bool {
	return err != nil && KindOf(err) == KindStructural
}

// rateLimitMarkers are lower-case fragments providers put in JSON bodies
// when a key has hit its request allocation.
var rateLimitMarkers = [][]byte{
	[]byte("rate limit"),
	[]byte("call frequency"),
	[]byte("too many requests"),
	[]byte("quota"),
	[]byte("run over your"),
	[]byte("exceeded your"),
	[]byte("request allocation"),
}

func hasRateLimitMarker(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, m := range rateLimitMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// classifyResponse maps an HTTP status and body onto a FetchError, or nil
// when the response can be parsed.
func classifyResponse(provider, symbol string, status int, body []byte) *FetchError {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return NewRateLimitError(provider, symbol, fmt.Sprintf("HTTP %d", status))
	case hasRateLimitMarker(body):
		return NewRateLimitError(provider, symbol, truncate(string(body), 200))
	case status >= 500 || status == http.StatusRequestTimeout:
		return NewTransientError(provider, symbol, fmt.Sprintf("HTTP %d: %s", status, truncate(string(body), 200)), nil)
	case status < 200 || status >= 300:
		return NewStructuralError(provider, symbol, fmt.Sprintf("HTTP %d: %s", status, truncate(string(body), 200)), nil)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
