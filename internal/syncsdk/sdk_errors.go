package syncsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
	"github.com/openmined/syftsync/internal/endpoint"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Sync errors
	CodeNotFound  = "E_NOT_FOUND" // the file or directory does not exist
	CodeIntegrity = "E_INTEGRITY" // a block did not match its checksum
	CodeCodec     = "E_CODEC"     // a payload could not be compressed or inflated
	CodeIO        = "E_IO"        // the server failed to read or write storage

	CodeVersionMismatch = "E_VERSION_MISMATCH" // client and server speak different protocol versions
)

type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// APIError is the error body returned by the server
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) ErrorCode() string    { return e.Code }
func (e *APIError) ErrorMessage() string { return e.Message }

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

var _ SDKError = (*APIError)(nil)

// kindOf maps an API error code back to the endpoint error kind the server
// started from.
func kindOf(code string) endpoint.Kind {
	switch code {
	case CodeInvalidRequest, CodeVersionMismatch:
		return endpoint.KindValidation
	case CodeAccessDenied:
		return endpoint.KindPermission
	case CodeNotFound:
		return endpoint.KindNotFound
	case CodeIntegrity:
		return endpoint.KindIntegrity
	case CodeCodec:
		return endpoint.KindCodec
	case CodeIO:
		return endpoint.KindIO
	case CodeRateLimited:
		return endpoint.KindBusy
	}
	return endpoint.KindInternal
}

// handleAPIError turns transport failures and error responses into endpoint
// errors, so callers see the same kinds as with a local endpoint.
func handleAPIError(resp *req.Response, requestErr error, operation, path string) error {
	// an error status is mapped even when its body failed to decode
	if resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			return endpoint.E(kindOf(err.Code), operation, path, err)
		}
		return endpoint.Errorf(statusKind(resp.StatusCode), operation, path, "api error: %s", resp.Status)
	}

	if requestErr != nil {
		return endpoint.E(endpoint.KindIO, operation, path, fmt.Errorf("http request error: %w", requestErr))
	}
	return nil
}

// statusKind maps a bare status code for error bodies that carry no code.
func statusKind(status int) endpoint.Kind {
	switch status {
	case http.StatusNotFound:
		return endpoint.KindNotFound
	case http.StatusBadRequest, http.StatusUpgradeRequired:
		return endpoint.KindValidation
	case http.StatusForbidden, http.StatusUnauthorized:
		return endpoint.KindPermission
	case http.StatusTooManyRequests:
		return endpoint.KindBusy
	}
	return endpoint.KindInternal
}
