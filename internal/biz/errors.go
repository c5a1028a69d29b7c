package biz

import "errors"

var (
	// ErrMissingState is returned when an authorization URL is requested without a state nonce.
	ErrMissingState = errors.New("state parameter required")
	// ErrMissingCode is returned when a code exchange carries no authorization code.
	ErrMissingCode = errors.New("code parameter required")
	// ErrInvalidState is returned when state verification is on and the state was never issued.
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrUnauthorized is returned for unknown or expired API tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrProvider wraps failures talking to the identity provider.
	ErrProvider = errors.New("identity provider failure")

	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already exists")

	ErrMissingEmail     = errors.New("email parameter required")
	ErrForbidden        = errors.New("access denied")
	ErrEnvelopeNotFound = errors.New("email not found")
	ErrMailboxExists    = errors.New("mailbox already exists")
)

// wrapError 包装错误信息
func wrapError(op string, err error) error {
	return &opError{op: op, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *opError) Unwrap() error {
	return e.err
}
