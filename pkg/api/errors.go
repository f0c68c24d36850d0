package api

import "fmt"

// Kind classifies a request failure. Callers that only want user-facing text
// can read Error.Message; callers that branch (retry hints, re-auth prompts)
// match the kind.
type Kind string

const (
	// KindNetwork means the request never produced a response: dial failure,
	// timeout, or a cancelled context.
	KindNetwork Kind = "network"
	// KindSessionExpired covers 401 responses and redirects to the login page.
	KindSessionExpired Kind = "session_expired"
	// KindPermissionDenied covers 403 responses.
	KindPermissionDenied Kind = "permission_denied"
	// KindBadResponse covers non-JSON bodies and unparseable payloads.
	KindBadResponse Kind = "bad_response"
	// KindApplication covers well-formed JSON failures: non-2xx statuses and
	// 2xx bodies carrying success=false.
	KindApplication Kind = "application"
)

// Error is the single failure value produced by the client.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// FieldErrors maps form field names to validation messages, when the
	// backend returned them. Rendered next to the offending input by callers.
	FieldErrors map[string]string
	// Err is the underlying transport error for KindNetwork failures.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func sessionExpiredError(status int) *Error {
	return &Error{
		Kind:    KindSessionExpired,
		Status:  status,
		Message: "Session expired. Please sign in again.",
	}
}

func permissionDeniedError(status int) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Status:  status,
		Message: "You do not have permission to perform this action.",
	}
}

func badResponseError(status int) *Error {
	return &Error{
		Kind:    KindBadResponse,
		Status:  status,
		Message: fmt.Sprintf("Unexpected response from server (status %d). Please try again.", status),
	}
}

func networkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Could not reach the server. Check your connection and try again.",
		Err:     err,
	}
}
