package errors

import "fmt"

// 错误码
const (
	CodeSuccess         = 200
	CodePartialSuccess  = 206 // 部分成功
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeInternalError   = 500
	CodeDatabaseError   = 501
	CodeUpstreamError   = 502
	CodeValidationError = 503
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 预定义错误
var (
	ErrBadRequest    = New(CodeBadRequest, "请求参数错误")
	ErrNotFound      = New(CodeNotFound, "资源不存在")
	ErrConflict      = New(CodeConflict, "资源冲突")
	ErrInternalError = New(CodeInternalError, "内部服务器错误")
	ErrDatabaseError = New(CodeDatabaseError, "数据库错误")
	ErrUpstreamError = New(CodeUpstreamError, "上游服务调用失败")

	// 具体业务错误
	ErrRecordNotFound      = New(CodeNotFound, "记录不存在")
	ErrRecordExists        = New(CodeConflict, "记录已存在")
	ErrInstanceIDExists    = New(CodeConflict, "实例ID已存在")
	ErrInstanceNotFound    = New(CodeNotFound, "部署实例不存在")
	ErrCredentialNotFound  = New(CodeNotFound, "凭据不存在")
	ErrCredentialsRequired = New(CodeBadRequest, "需要同时激活 source 与 target 凭据")
	ErrNoInstanceSelected  = New(CodeBadRequest, "请至少选择一个部署实例")
)
