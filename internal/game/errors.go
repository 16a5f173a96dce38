// internal/game/errors.go
package game

import (
	"errors"
)

// Validation errors returned by the Manager. They are always returned before any state is
// touched, so a caller receiving one can assume the match is unchanged.
var (
	ErrNotFound          = errors.New("match not found")
	ErrInvalidPhase      = errors.New("action not valid in current phase")
	ErrNotAMember        = errors.New("not a member of this match")
	ErrAlreadyEliminated = errors.New("participant already eliminated")
	ErrAlreadyStarted    = errors.New("match already started")
	ErrFull              = errors.New("match is full")
	ErrUnauthorized      = errors.New("only the creator may do this")
	ErrInvalidConfig     = errors.New("invalid match configuration")
	ErrNotReady          = errors.New("match is not ready to start")
	ErrExternalService   = errors.New("external service failure")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "NotFound"},
	{ErrInvalidPhase, "InvalidPhase"},
	{ErrNotAMember, "NotAMember"},
	{ErrAlreadyEliminated, "AlreadyEliminated"},
	{ErrAlreadyStarted, "AlreadyStarted"},
	{ErrFull, "Full"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidConfig, "InvalidConfig"},
	{ErrNotReady, "NotReady"},
	{ErrExternalService, "ExternalServiceFailure"},
}

// ErrorKind maps err to its taxonomy name, or "Internal" if it is not a game error.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
