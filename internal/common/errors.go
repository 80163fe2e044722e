// Package common defines sentinel errors shared by the directory, the
// credential stores and the authentication providers. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// ErrorInvalidPrincipal is returned when the acting actor or the target
	// user is anonymous (0) or does not exist on a mutating call.
	ErrorInvalidPrincipal = errors.New("invalid principal")

	// ErrorConflict reports a uniqueness violation, e.g. an external identity
	// already bound to another user or a duplicate user name.
	ErrorConflict = errors.New("conflict")

	// ErrorTransient tags failures of the underlying store that a caller may retry.
	ErrorTransient = errors.New("transient store failure")

	// Provider errors.
	ErrorInvalidPayload  = errors.New("invalid provider payload")
	ErrorUnknownProvider = errors.New("unknown provider")

	// Directory errors.
	ErrorGroupNotEmpty = errors.New("group is not empty")
)
