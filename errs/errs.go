// Package errs provides the structured error envelope shared by gateway components.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a gateway error category.
type Code string

const (
	// CodeConfig indicates missing or malformed configuration.
	CodeConfig Code = "config"
	// CodeAuth indicates an authentication or login rejection.
	CodeAuth Code = "auth"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeExchange indicates a counter or exchange side rejection.
	CodeExchange Code = "exchange_error"
	// CodeNetwork indicates a transport failure between the gateway and a front.
	CodeNetwork Code = "network"
	// CodeNotReady indicates a request issued before the session reached Ready.
	CodeNotReady Code = "not_ready"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the component is shut down or temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// CanonicalCode captures venue-agnostic failure categories.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalMissingCredentials indicates the connection settings are incomplete.
	CanonicalMissingCredentials CanonicalCode = "missing_credentials"
	// CanonicalOrderRejected indicates an order insert was refused.
	CanonicalOrderRejected CanonicalCode = "order_rejected"
	// CanonicalCancelRejected indicates an order action was refused.
	CanonicalCancelRejected CanonicalCode = "cancel_rejected"
	// CanonicalFlowControl indicates the native request queue refused the call.
	CanonicalFlowControl CanonicalCode = "flow_control"
	// CanonicalInvalidSymbol indicates an unknown or malformed instrument.
	CanonicalInvalidSymbol CanonicalCode = "invalid_symbol"
)

// E captures structured error information produced across the gateway.
type E struct {
	Gateway       string
	Code          Code
	RawCode       string
	RawMsg        string
	Message       string
	Canonical     CanonicalCode
	VenueMetadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the gateway and error code.
func New(gateway string, code Code, opts ...Option) *E {
	e := &E{
		Gateway:       strings.TrimSpace(gateway),
		Code:          code,
		RawCode:       "",
		RawMsg:        "",
		Message:       "",
		Canonical:     CanonicalUnknown,
		VenueMetadata: nil,
		cause:         nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRawCode captures the native error id.
func WithRawCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) {
		e.RawCode = trimmed
	}
}

// WithNativeCode captures an integer native error id.
func WithNativeCode(code int) Option {
	return WithRawCode(strconv.Itoa(code))
}

// WithRawMessage captures the decoded native error message.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithVenueField appends a single venue metadata key/value pair.
func WithVenueField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.VenueMetadata == nil {
			e.VenueMetadata = make(map[string]string, 1)
		}
		e.VenueMetadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	gateway := strings.TrimSpace(e.Gateway)
	if gateway == "" {
		gateway = "unknown"
	}
	parts = append(parts, "gateway="+gateway)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawCode != "" {
		parts = append(parts, "raw_code="+strconv.Quote(e.RawCode))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if len(e.VenueMetadata) > 0 {
		keys := make([]string, 0, len(e.VenueMetadata))
		for k := range e.VenueMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.VenueMetadata[k]))
		}
		parts = append(parts, "venue="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err carries an envelope with the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var target *E
	if !errors.As(err, &target) {
		return false
	}
	return target.Code == code
}
