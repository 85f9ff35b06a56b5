package domain

import "errors"

// Domain errors
var (
	ErrInvalidScore      = errors.New("invalid score value")
	ErrWalletRequired    = errors.New("no wallet address bound to user")
	ErrUserMismatch      = errors.New("submission identity does not match session")
	ErrInvalidSignature  = errors.New("signature does not match wallet address")
	ErrSubmissionExpired = errors.New("signed submission timestamp outside allowed window")
	ErrNonceNotFound     = errors.New("nonce challenge not found")
	ErrNonceExpired      = errors.New("nonce challenge expired")
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrStoreUnavailable  = errors.New("key-value store unavailable")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternalError     = errors.New("internal server error")
)

// IsValidationError checks if an error should map to a 4xx response
// rather than a 500.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidScore) ||
		errors.Is(err, ErrWalletRequired) ||
		errors.Is(err, ErrUserMismatch) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrSubmissionExpired) ||
		errors.Is(err, ErrNonceNotFound) ||
		errors.Is(err, ErrNonceExpired) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrInvalidRequest)
}
