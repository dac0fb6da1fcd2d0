package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a failure reported to the caller of a membership operation.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindWrongCredential
	KindAlreadyMember
	KindNotMember
	KindNotOwner
	KindOwnerCannotLeave
	KindAlreadyOwner
	KindNoOp
	KindQuotaExceeded
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindWrongCredential:
		return "WrongCredential"
	case KindAlreadyMember:
		return "AlreadyMember"
	case KindNotMember:
		return "NotMember"
	case KindNotOwner:
		return "NotOwner"
	case KindOwnerCannotLeave:
		return "OwnerCannotLeave"
	case KindAlreadyOwner:
		return "AlreadyOwner"
	case KindNoOp:
		return "NoOp"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "Internal"
	}
}

// Error is a structured failure. Two errors match under errors.Is when
// their kinds are equal, so a wrapped or reworded error still matches the
// sentinel of its kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

// Withf returns a copy of e with a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrNotFound         = newError(KindNotFound, "not found")
	ErrAlreadyExists    = newError(KindAlreadyExists, "group name already exists")
	ErrWrongCredential  = newError(KindWrongCredential, "wrong join password")
	ErrAlreadyMember    = newError(KindAlreadyMember, "already a member")
	ErrNotMember        = newError(KindNotMember, "not a member")
	ErrNotOwner         = newError(KindNotOwner, "not the group owner")
	ErrOwnerCannotLeave = newError(KindOwnerCannotLeave, "the owner cannot leave the group")
	ErrAlreadyOwner     = newError(KindAlreadyOwner, "already the group owner")
	ErrNoOp             = newError(KindNoOp, "nothing to change")
	ErrQuotaExceeded    = newError(KindQuotaExceeded, "too many groups created recently")
	ErrInvalidArgument  = newError(KindInvalidArgument, "invalid argument")
)

// KindOf reports the kind of err, KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Store-level conflicts. Store implementations return these when a
// uniqueness constraint rejects a write at commit time.
var (
	ErrNameTaken           = errors.New("group name key taken")
	ErrDuplicateMembership = errors.New("membership already exists")
)
