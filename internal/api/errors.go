package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrLoginRequired = errors.New("login required")
	ErrForcedLogout  = errors.New("forced logout")
)

type Kind int

const (
	// KindRequest is any failure the server answered with.
	KindRequest Kind = iota
	// KindTransport means no response arrived.
	KindTransport
	KindLoginRequired
	KindForcedLogout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindLoginRequired:
		return "login_required"
	case KindForcedLogout:
		return "forced_logout"
	default:
		return "request"
	}
}

const (
	msgBadRequest    = "잘못된 요청입니다. 입력값을 확인해주세요."
	msgConflict      = "이미 처리된 요청입니다."
	msgServerError   = "서버에 문제가 발생했습니다. 잠시 후 다시 시도해주세요."
	msgLoginRequired = "로그인이 필요한 서비스입니다."
	msgForcedLogout  = "로그인이 만료되었습니다. 다시 로그인해주세요."
)

// Error is the single error shape the client surfaces. The UI decides how
// to present it; ForceLogout and RedirectToSignup tell it where to navigate.
type Error struct {
	Kind             Kind
	Status           int
	Code             string
	Message          string
	ForceLogout      bool
	RedirectToSignup bool
	Err              error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api error [%d %s]: %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func loginRequired(status int) *Error {
	return &Error{
		Kind:             KindLoginRequired,
		Status:           status,
		Message:          msgLoginRequired,
		RedirectToSignup: true,
		Err:              ErrLoginRequired,
	}
}

func forcedLogout() *Error {
	return &Error{
		Kind:        KindForcedLogout,
		Status:      http.StatusUnauthorized,
		Message:     msgForcedLogout,
		ForceLogout: true,
		Err:         ErrForcedLogout,
	}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

// statusMessage is the canned text used when the body carries none.
func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return msgBadRequest
	case http.StatusConflict:
		return msgConflict
	case http.StatusInternalServerError:
		return msgServerError
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
