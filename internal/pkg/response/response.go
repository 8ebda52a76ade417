package response

import "net/http"

// Body 统一的错误响应体 {statusCode, message, error}
type Body struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Reason     string `json:"error"`
}

func New(code int, message string) *Body {
	if message == "" {
		message = http.StatusText(code)
	}
	return &Body{StatusCode: code, Message: message, Reason: http.StatusText(code)}
}

// Status 供协议层读取状态码
func (b *Body) Status() int { return b.StatusCode }

// Error 使 Body 可以直接作为错误返回
func (b *Body) Error() string { return b.Message }

// Result 成功响应包装
type Result struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func OK(data interface{}) *Result {
	return &Result{Code: http.StatusOK, Message: "success", Data: data}
}
