package errcode

import (
	"errors"
	"net/http"
)

// 通知码约定（WebSocket 推送中的 error_code 字段）：
// - 0：无错误
// - 4xxx：导出失败但可由用户重试
// - 5xxx：系统错误
const (
	OK              = 0
	ResourceMissing = 4001
	CaptureFailed   = 4002
	SystemError     = 5000
)

// 错误分类。服务层用 %w 包装，接口层用 errors.Is 映射状态码。
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrAuth       = errors.New("invalid credentials")
	ErrNotFound   = errors.New("not found")
	ErrCapture    = errors.New("capture failed")
	ErrInternal   = errors.New("internal error")
)

// Error 携带一个可直接返回给调用方的消息，并通过 Unwrap 暴露错误分类。
type Error struct {
	kind error
	msg  string
}

// New 构造带分类的错误；msg 会原样出现在 HTTP 响应中，不要放内部细节。
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Message 返回可以展示给调用方的消息；未分类或内部错误统一返回 fallback。
func Message(err error, fallback string) string {
	if errors.Is(err, ErrInternal) {
		return fallback
	}
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return fallback
}

// HTTPStatus 将错误分类映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
