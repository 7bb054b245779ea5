package linking

import (
	"errors"
	"fmt"
)

// Kind discriminates link failures for callers. Every failure surfaced by
// this package is an *Error carrying exactly one Kind.
type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindInvalidInput        Kind = "invalid_input"
	KindProviderRejected    Kind = "provider_rejected"
	KindProviderTimeout     Kind = "provider_timeout"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindProfileUnavailable  Kind = "profile_unavailable"
	KindAlreadyLinked       Kind = "already_linked"
	KindBindingNotFound     Kind = "binding_not_found"
	KindInternal            Kind = "internal"
)

// RejectionReason narrows KindProviderRejected to the provider-specific
// causes the caller can act on.
type RejectionReason string

const (
	ReasonRedirectMismatch       RejectionReason = "redirect-mismatch"
	ReasonExpiredOrConsumedCode  RejectionReason = "expired-or-consumed-artifact"
	ReasonUnsupportedAccountType RejectionReason = "unsupported-account-type"
	ReasonRegionUnsupported      RejectionReason = "region-unsupported"
	ReasonUnknown                RejectionReason = "unknown"
)

// Error is the typed failure threaded through the link pipeline. Detail is
// for diagnostics only and must never contain a full token or secret.
type Error struct {
	Kind            Kind
	Reason          RejectionReason // set for KindProviderRejected
	ConflictingName string          // set for KindAlreadyLinked
	Hop             int             // exchange hop the failure occurred at, 0 if n/a
	Detail          string
	cause           error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + string(e.Reason)
	}
	if e.Hop > 0 {
		msg = fmt.Sprintf("%s (hop %d)", msg, e.Hop)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// AsError unwraps err into a linking *Error if it carries one.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func ErrUnauthenticated(detail string) *Error {
	return &Error{Kind: KindUnauthenticated, Detail: detail}
}

func ErrInvalidInput(detail string) *Error {
	return &Error{Kind: KindInvalidInput, Detail: detail}
}

func ErrRejected(hop int, reason RejectionReason, detail string) *Error {
	return &Error{Kind: KindProviderRejected, Reason: reason, Hop: hop, Detail: detail}
}

func ErrTimeout(hop int, cause error) *Error {
	return &Error{Kind: KindProviderTimeout, Hop: hop, cause: cause}
}

func ErrUnavailable(hop int, cause error) *Error {
	return &Error{Kind: KindProviderUnavailable, Hop: hop, cause: cause}
}

func ErrProfileUnavailable(detail string) *Error {
	return &Error{Kind: KindProfileUnavailable, Detail: detail}
}

func ErrAlreadyLinked(conflictingName string) *Error {
	return &Error{Kind: KindAlreadyLinked, ConflictingName: conflictingName}
}

func ErrInternal(cause error) *Error {
	return &Error{Kind: KindInternal, cause: cause}
}
