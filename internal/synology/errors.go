package synology

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Session expiry codes. Both trigger a single re-login on restricted calls.
const (
	CodeSessionTimeout     = 106
	CodeSessionInterrupted = 107
)

var commonErrorMessages = map[int]string{
	100: "Unknown error",
	101: "No parameter of API, method or version",
	102: "The requested API does not exist",
	103: "The requested method does not exist",
	104: "The requested version does not support the functionality",
	105: "The logged in session does not have permission",
	106: "Session timeout",
	107: "Session interrupted by duplicate login",
	117: "Need manager rights for operation",
}

var loginErrorMessages = map[int]string{
	400: "No such account or incorrect password",
	401: "Account disabled",
	402: "Permission denied",
	403: "2-step verification code required",
	404: "Failed to authenticate 2-step verification code",
}

const (
	unknownCommonErrorMessage = "Unknown common error, please check the documentation"
	unknownAPIErrorMessage    = "Unknown API error, please check the documentation"
)

var (
	// ErrMalformedResponse is returned when the router answers with a body
	// that is not a valid SRM envelope.
	ErrMalformedResponse = errors.New("the output received by the server is malformed")

	// ErrInvalidProfiles is returned by SetNetworkSetting when the argument
	// is neither a profile list nor an object holding a "profiles" key.
	ErrInvalidProfiles = errors.New("profiles must be a list or an object with a 'profiles' key")

	// ErrUnexpectedArchive is returned by Call when the router streams an
	// archive; only Download accepts those.
	ErrUnexpectedArchive = errors.New("unexpected archive response, use Download")

	// ErrLoginFailed marks router-side rejections of the login call.
	ErrLoginFailed = errors.New("login to the router failed")
)

// StatusError is a non-200 HTTP answer from the router.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("the server answered a wrong status code (code=%d)", e.StatusCode)
}

// CommonError is a protocol-level error in the 100-199 range.
type CommonError struct {
	Code    int
	Message string
}

func (e *CommonError) Error() string {
	return fmt.Sprintf("%s (error=%d)", e.Message, e.Code)
}

// SessionError is a 106/107 answer that could not be recovered by a re-login,
// either because the call was unauthenticated or because it was already retried.
type SessionError struct {
	Code    int
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s (error=%d)", e.Message, e.Code)
}

// APIError is an API-specific error outside the common range.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (error=%d)", e.Message, e.Code)
}

// IsSessionError reports whether err carries an unrecoverable session failure.
func IsSessionError(err error) bool {
	var sessionErr *SessionError
	return errors.As(err, &sessionErr)
}

// IsAuthError reports whether err means the configured credentials are wrong
// or the session cannot be established, so prompting for credentials makes sense.
func IsAuthError(err error) bool {
	return IsSessionError(err) || errors.Is(err, ErrLoginFailed)
}

func isSessionExpiry(code int) bool {
	return code == CodeSessionTimeout || code == CodeSessionInterrupted
}

func commonErrorMessage(code int) string {
	if msg, ok := commonErrorMessages[code]; ok {
		return msg
	}
	return unknownCommonErrorMessage
}
