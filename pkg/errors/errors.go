package errors

import (
	"errors"
	"strings"
)

// Kind 稳定的错误分类，对外响应中原样返回
type Kind string

const (
	KindNoCapabilityResolved   Kind = "NoCapabilityResolved"
	KindCapabilityNotFound     Kind = "CapabilityNotFound"
	KindValidationFailure      Kind = "ValidationFailure"
	KindDuplicateRequestNumber Kind = "DuplicateRequestNumber"
	KindTransientStoreFailure  Kind = "TransientStoreFailure"
	KindSubmissionInProgress   Kind = "SubmissionInProgress"
	KindNotFound               Kind = "NotFound"
)

// FieldError 字段级校验信息
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError 带分类的业务错误
// errors.Is 按 Kind 匹配，因此可直接与包级哨兵错误比较
type AppError struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		b.WriteString(" (")
		b.WriteString(e.FieldSummary())
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Err }

// Is 同 Kind 即视为同一类错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// FieldSummary 将字段错误拼接为一行文本
func (e *AppError) FieldSummary() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// New 创建指定分类的错误
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap 以指定分类包装底层错误
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Validation 创建带字段信息的校验错误
func Validation(fields ...FieldError) *AppError {
	return &AppError{
		Kind:    KindValidationFailure,
		Message: "数据校验失败",
		Fields:  fields,
	}
}

// KindOf 提取错误分类，非 AppError 返回空字符串
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
