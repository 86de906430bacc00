// Package apierr classifies failures returned by the external LLM, speech and
// search providers so the pipeline can decide how a stage failed.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindRateLimited   Kind = "rate_limited"
	KindMalformed     Kind = "malformed"
	KindTransient     Kind = "transient"
	KindEmptyResponse Kind = "empty_response"
	KindUnknown       Kind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Validation(provider, msg string) *Error {
	return &Error{Provider: provider, Kind: KindValidation, Message: msg}
}

func EmptyResponse(provider string) *Error {
	return &Error{Provider: provider, Kind: KindEmptyResponse, Message: "empty response body"}
}

func Malformed(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindMalformed, Message: "could not decode response", Err: err}
}

// FromStatus maps a non-2xx HTTP response to a kind. body is a short excerpt
// of the response used as the message.
func FromStatus(provider string, status int, body string) *Error {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &Error{Provider: provider, Status: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusRequestTimeout:
		e.Kind = KindTransient
	case status >= 500:
		e.Kind = KindTransient
	case status >= 400:
		e.Kind = KindMalformed
	default:
		e.Kind = KindUnknown
	}
	return e
}

// FromTransport wraps an error returned by http.Client.Do. Timeouts and
// connection errors are not distinguished: both are transient.
func FromTransport(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	e := &Error{Provider: provider, Kind: KindTransient, Err: err}
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Message = "request timed out"
	case errors.As(err, &ne) && ne.Timeout():
		e.Message = "request timed out"
	case errors.Is(err, context.Canceled):
		e.Message = "request cancelled"
	}
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Retryable reports whether retrying later can succeed without operator action.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient, KindEmptyResponse:
		return true
	default:
		return false
	}
}
