package domain

import "errors"

var (
	// auth / integrity
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidSignature   = errors.New("invalid signature")

	// client input
	ErrMalformedRequest = errors.New("malformed request")
	ErrMissingCustomer  = errors.New("missing customer")
	ErrInvalidItems     = errors.New("invalid items")
	ErrEmptyItems       = errors.New("empty items")

	// ErrNotFound is a valid empty result, not a failure.
	ErrNotFound = errors.New("not found")

	ErrStorage = errors.New("storage error")
)

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrMissingCustomer) ||
		errors.Is(err, ErrInvalidItems) ||
		errors.Is(err, ErrEmptyItems)
}

// IsAuthError reports whether err is a signature or credential failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrInvalidSignature)
}
