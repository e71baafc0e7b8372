package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"

	// 业务逻辑错误
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// 数据库错误
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"

	// 检索链路错误
	ErrCodeIndexUnavailable     ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeEmbeddingFailure     ErrorCode = "EMBEDDING_FAILURE"
	ErrCodeRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewDatabaseError 创建数据库错误
func NewDatabaseError(op string, cause error) *AppError {
	return NewSystemError(ErrCodeDatabaseError, fmt.Sprintf("database %s failed", op)).WithCause(cause)
}

// NewIndexUnavailableError 向量库创建/写入/检索失败
func NewIndexUnavailableError(op string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeIndexUnavailable,
		Message:  fmt.Sprintf("vector index %s failed", op),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
	}
}

// NewEmbeddingFailureError 向量化失败或向量维度不符
func NewEmbeddingFailureError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeEmbeddingFailure,
		Message:  "embedding failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
	}
}

// NewRetrievalUnavailableError 问答检索阶段的向量化/向量库错误
func NewRetrievalUnavailableError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeRetrievalUnavailable,
		Message:  "retrieval unavailable",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
	}
}

// getHTTPCodeForError 根据错误码获取HTTP状态码
func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeIndexUnavailable, ErrCodeEmbeddingFailure, ErrCodeRetrievalUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError 检查错误链中是否有AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// IsCode 检查错误链中第一个AppError的错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// HasCode 检查错误链中任意一层AppError是否带有该错误码
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}
