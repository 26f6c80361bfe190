package live

import (
	"errors"
	"net/http"

	"github.com/nerrad567/inventory-gateway/internal/store"
)

// Domain errors for the live layer. Check with errors.Is.
var (
	// ErrProtocol is logged for frames that are not valid JSON objects.
	ErrProtocol = errors.New("live: protocol error")

	// ErrInvalidMessage is logged for frames naming an unknown handler.
	ErrInvalidMessage = errors.New("live: invalid message")

	// ErrInvalidResource is reported for unknown resources and unsupported operations.
	ErrInvalidResource = errors.New("live: invalid resource")

	// ErrAccessDenied is reported when a subscription is not allowed.
	ErrAccessDenied = errors.New("live: access denied")

	// ErrMissingParameter is an ErrAccessDenied raised by the query builder.
	ErrMissingParameter = newAccessDenied("missing parameter")

	// ErrDataStore wraps store and bus failures.
	ErrDataStore = errors.New("live: data store error")

	// ErrSendFailure is returned when the transport rejects a frame.
	ErrSendFailure = errors.New("live: send failure")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("live: session closed")
)

// Error codes carried in error frames.
const (
	CodeInvalidResource = "invalid_resource"
	CodeAccessDenied    = "access_denied"
	CodeDataStoreError  = "data_store_error"
	CodeNotFound        = "not_found"
	CodeInvalidQuery    = "invalid_query"
)

// accessDeniedError lets ErrMissingParameter match ErrAccessDenied.
type accessDeniedError struct{ msg string }

func newAccessDenied(msg string) error { return &accessDeniedError{msg: msg} }

func (e *accessDeniedError) Error() string        { return "live: " + e.msg }
func (e *accessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// ErrorPayload is the params body of an error frame. It has the same shape
// as the REST error response.
type ErrorPayload struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PayloadFor maps err onto the error frame payload.
func PayloadFor(err error) ErrorPayload {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrorPayload{Status: http.StatusNotFound, Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrInvalidQuery):
		return ErrorPayload{Status: http.StatusBadRequest, Code: CodeInvalidQuery, Message: err.Error()}
	case errors.Is(err, ErrInvalidResource):
		return ErrorPayload{Status: http.StatusNotFound, Code: CodeInvalidResource, Message: err.Error()}
	case errors.Is(err, ErrAccessDenied):
		return ErrorPayload{Status: http.StatusForbidden, Code: CodeAccessDenied, Message: err.Error()}
	default:
		return ErrorPayload{Status: http.StatusInternalServerError, Code: CodeDataStoreError, Message: err.Error()}
	}
}
