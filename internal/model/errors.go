package model

import "github.com/maxbolgarin/errm"

var (
	// ErrUnauthorized means the credential was rejected, it is always fatal
	ErrUnauthorized = errm.New("credential rejected by remote API")
	// ErrRateLimited means the API kept refusing requests after all retries
	ErrRateLimited = errm.New("remote API rate limit exceeded")
	// ErrNotFound means the API authoritatively reported the object does not exist
	ErrNotFound = errm.New("not found")
	// ErrTransient covers network failures and server errors that outlived retries
	ErrTransient = errm.New("transient remote failure")
	// ErrNotSupported is returned by providers for lookups they cannot perform
	ErrNotSupported = errm.New("operation is not supported by provider")
)

// IsFatal reports whether a remote error must abort the whole run
func IsFatal(err error) bool {
	return errm.Is(err, ErrUnauthorized)
}
