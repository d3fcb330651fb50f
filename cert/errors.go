package cert

import (
	"errors"
	"strings"
)

// Kind is a stable failure category.
//
// Callers branch on Kind (via IsKind or KindOf) rather than matching error strings.
// Every Kind maps to exactly one user-facing message category (see UserMessage).
type Kind string

const (
	KindInvalidTransition  Kind = "InvalidTransition"
	KindMissingReason      Kind = "MissingReason"
	KindMissingFields      Kind = "MissingFields"
	KindNetwork            Kind = "NetworkError"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindUserRejected       Kind = "UserRejected"
	KindNotAnchored        Kind = "NotAnchored"
	KindNotFound           Kind = "NotFound"
	KindContentUnavailable Kind = "ContentUnavailable"
	KindGeneric            Kind = "Generic"
)

// Error is the structured error returned across component boundaries.
//
// Fields is only populated for KindMissingFields and lists every absent field.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Fields) > 0 {
		return e.Message + ": " + strings.Join(e.Fields, ", ")
	}
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a *Error of the given kind.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError returns a *Error of the given kind that wraps cause.
func WrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// MissingFields returns a KindMissingFields error naming every field, or nil when fields is empty.
func MissingFields(fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return &Error{Kind: KindMissingFields, Message: "missing required fields", Fields: out}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of err, KindGeneric for unstructured errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return KindGeneric
	}
	return e.Kind
}

// FieldsOf returns the missing field names carried by err, if any.
func FieldsOf(err error) []string {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e.Fields
}

var userMessages = map[Kind]string{
	KindInvalidTransition:  "This action is not allowed for the certificate in its current state.",
	KindMissingReason:      "A revocation reason is required.",
	KindMissingFields:      "The certificate is missing required information.",
	KindNetwork:            "Your wallet is not connected to the required network.",
	KindInsufficientFunds:  "Your wallet does not have enough funds to pay for the transaction.",
	KindUserRejected:       "The request was rejected in the wallet. You can try again.",
	KindNotAnchored:        "This certificate has not been anchored yet.",
	KindNotFound:           "No certificate exists with this code.",
	KindContentUnavailable: "The certificate content could not be retrieved.",
	KindGeneric:            "The operation failed.",
}

// UserMessage returns the human-readable category message for err.
// For KindGeneric the underlying message is appended when available.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	msg, ok := userMessages[kind]
	if !ok {
		msg = userMessages[KindGeneric]
	}
	switch kind {
	case KindGeneric:
		if detail := err.Error(); detail != "" {
			return msg + " " + detail
		}
	case KindMissingFields:
		if fields := FieldsOf(err); len(fields) > 0 {
			return msg + " Missing: " + strings.Join(fields, ", ") + "."
		}
	}
	return msg
}
