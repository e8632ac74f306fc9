package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST  ErrCode = "REQUEST_FAILED"
	BAD_REQUEST     ErrCode = "FAILED_TO_DECODE"
	NOT_FOUND       ErrCode = "NOT_FOUND"
	LOCKED          ErrCode = "LOCKED"
	SESSION_EXPIRED ErrCode = "SESSION_EXPIRED"
	NO_ACCOUNT      ErrCode = "NO_ACCOUNT"
	NO_SEMESTER     ErrCode = "NO_SEMESTER"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("resource not found")
	ErrLocked     = errors.New("resource is locked")

	// ErrSessionExpired means the upstream rejected the stored session;
	// the caller must re-authenticate, a plain retry will not help.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoAccount means no account is linked for the provider at all,
	// distinct from an expired one.
	ErrNoAccount = errors.New("no linked account")
	// ErrNoSemester is an expected condition (vacation), not a failure.
	ErrNoSemester = errors.New("no semester covers the date")

	ErrCourseInfoEmpty  = errors.New("course info lookup returned no rows")
	ErrMissingCode      = errors.New("missing authorization code")
	ErrMissingOAuthConf = errors.New("missing oauth config")
	ErrStoreNotOpened   = errors.New("store not opened")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
