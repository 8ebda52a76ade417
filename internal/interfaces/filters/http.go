package filters

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gnest/internal/interfaces/guards"
	"gnest/internal/kernel"
	"gnest/internal/pkg/response"

	"github.com/go-playground/validator/v10"
)

// StatusCoder 自带 HTTP 状态码的错误
type StatusCoder interface {
	Status() int
}

// StatusOf 将错误映射为 HTTP 状态码
func StatusOf(err error) int {
	var sc StatusCoder
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &sc):
		return sc.Status()
	case errors.Is(err, guards.ErrUnauthorized):
		return http.StatusUnauthorized
	case kernel.IsForbidden(err):
		return http.StatusForbidden
	case errors.Is(err, guards.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, kernel.ErrTimeout):
		return http.StatusGatewayTimeout
	case kernel.IsCancelled(err):
		return 499
	}
	return http.StatusInternalServerError
}

// Body 构造错误响应体，5xx 不暴露内部错误信息
func Body(err error) *response.Body {
	code := StatusOf(err)
	if code >= http.StatusInternalServerError {
		return response.New(code, "internal server error")
	}
	return response.New(code, Message(err))
}

// Message 校验错误拼接为友好提示
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		// 使用 Field + Tag + Param 自动生成提示
		msg := fmt.Sprintf("%s failed on '%s' validation", e.Field(), e.Tag())
		if e.Param() != "" {
			msg += fmt.Sprintf(" (param=%s)", e.Param())
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// HTTPException 把异常转换为 {statusCode, message, error} 并结束异常处理。
// status 为 0 时按 StatusOf 推断。
func HTTPException(status int) kernel.ExceptionHandlerFunc {
	return func(ec *kernel.ExceptionContext) (any, error) {
		body := Body(ec.Error)
		if status != 0 {
			body = response.New(status, Message(ec.Error))
		}
		ec.MarkDone()
		return body, nil
	}
}
