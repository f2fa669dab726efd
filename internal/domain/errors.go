package domain

import "errors"

// Typed mutation failures. Every failed operation leaves state unchanged and
// surfaces one of these, usually wrapped with call-site context.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyAssigned    = errors.New("item is already assigned")
	ErrConflict           = errors.New("conflicting concurrent write")
)

// Validation failures raised by constructors and normalizers.
var (
	ErrInvalidID              = errors.New("invalid id")
	ErrInvalidName            = errors.New("invalid name")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidBody            = errors.New("invalid body")
	ErrInvalidBlockerType     = errors.New("invalid blocker type")
	ErrInvalidBlockerPriority = errors.New("invalid blocker priority")
	ErrInvalidBlockerStatus   = errors.New("invalid blocker status")
	ErrBlockerHasDiscussion   = errors.New("blocker has discussion messages")
)
