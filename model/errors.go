package model

import "errors"

// ErrorKind classifies backplane errors for the propagation policy: request
// path operations surface them to the caller, background sweeps log and
// continue.
type ErrorKind string

const (
	// KindValidation - caller-correctable input error, e.g. a malformed
	// scope string or a missing required field.
	KindValidation ErrorKind = "validation"
	// KindAuthorization - the request exceeds what the client was granted.
	// Never reported as not-found.
	KindAuthorization ErrorKind = "authorization"
	// KindInvalidScope - the scope string is malformed or names an unknown
	// field, reported with its own OAuth2 error code.
	KindInvalidScope ErrorKind = "invalid_scope"
	// KindNotFound - merged "does not exist or not in scope" condition. The
	// merging is intentional, out-of-scope ids must not be enumerable.
	KindNotFound ErrorKind = "not_found"
	// KindQuotaExceeded - the channel is at its message ceiling.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindBackingStore - wraps a failure of the durable store, retryable.
	KindBackingStore ErrorKind = "backing_store"
)

type BackplaneError struct {
	Kind      ErrorKind
	Message   string
	RootError error
}

func (err *BackplaneError) Error() string {
	return err.Message
}

func (err *BackplaneError) Unwrap() error {
	return err.RootError
}

func ValidationError(message string) *BackplaneError {
	return &BackplaneError{Kind: KindValidation, Message: message}
}

func AuthorizationError(message string) *BackplaneError {
	return &BackplaneError{Kind: KindAuthorization, Message: message}
}

func InvalidScopeError(message string) *BackplaneError {
	return &BackplaneError{Kind: KindInvalidScope, Message: message}
}

func NotFoundError(message string) *BackplaneError {
	return &BackplaneError{Kind: KindNotFound, Message: message}
}

func QuotaExceededError(message string) *BackplaneError {
	return &BackplaneError{Kind: KindQuotaExceeded, Message: message}
}

func BackingStoreError(message string, rootError error) *BackplaneError {
	return &BackplaneError{Kind: KindBackingStore, Message: message, RootError: rootError}
}

/**
* Returns the kind of the given error, or an empty kind for errors that did
* not originate in the backplane core.
 */
func KindOf(err error) ErrorKind {
	var backplaneError *BackplaneError
	if errors.As(err, &backplaneError) {
		return backplaneError.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
