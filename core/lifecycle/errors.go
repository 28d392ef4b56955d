package lifecycle

import "errors"

// Kind classifies engine failures so the transport layer can map them to
// status codes without string matching.
type Kind string

const (
	KindInvalidTransition Kind = "invalid_transition"
	KindIneligibleAppeal  Kind = "ineligible_appeal"
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindStoreUnavailable  Kind = "store_unavailable"
)

// Appeal denial codes, reported inside KindIneligibleAppeal errors.
const (
	DenialWrongStatus   = "wrong_status"
	DenialNotGuilty     = "not_guilty"
	DenialLevelTooLow   = "level_too_low"
	DenialWindowExpired = "window_expired"
)

// Error carries the failure kind, an optional machine code, and a
// human-readable reason.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return string(e.Kind) + " (" + e.Code + "): " + e.Reason
	}
	return string(e.Kind) + ": " + e.Reason
}

func NewError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func NewCodedError(kind Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

// AsError unwraps err into *Error when possible.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
