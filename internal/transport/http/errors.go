package http

import (
	"fmt"
	"net/http"
)

// HTTPError 业务层直接返回的带状态码错误
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Status 供 filters.StatusOf 读取
func (e *HTTPError) Status() int { return e.Code }

func NewError(code int, format string, args ...any) *HTTPError {
	return &HTTPError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(msg string) error {
	return &HTTPError{Code: http.StatusBadRequest, Message: msg}
}

func NotFound(msg string) error {
	return &HTTPError{Code: http.StatusNotFound, Message: msg}
}

func bindError(err error) error {
	return &HTTPError{Code: http.StatusBadRequest, Message: err.Error(), Err: err}
}
