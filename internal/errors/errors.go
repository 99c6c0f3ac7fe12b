package errors

import "errors"

var (
	ErrFrontNameRequired = errors.New("front name is required")
	ErrInvalidFrontName  = errors.New("invalid front name")
	ErrFrontCollision    = errors.New("fronts produce colliding logical ids")
	ErrUnknownFront      = errors.New("front is not defined in configuration")
	ErrPolicyViolation   = errors.New("least-privilege policy violation")
	ErrStackNotFound     = errors.New("stack not found")
	ErrStackFailed       = errors.New("stack operation failed")
	ErrOutputNotFound    = errors.New("stack output not found")
	ErrRecordNotFound    = errors.New("deployment record not found")
)
