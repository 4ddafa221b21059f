// gameerr/errors.go
package gameerr

import (
	"errors"
	"fmt"
)

// 错误分类: 输入错误 / 状态前置条件错误 / 目标不存在
// 调用方通过 errors.As 或 Is* 辅助函数区分处理。

// ValidationError 表示调用方输入不合法
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PreconditionError 表示输入合法但当前状态不允许该操作
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// NotFoundError 表示操作目标不存在
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func Preconditionf(format string, args ...interface{}) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsPrecondition(err error) bool {
	var e *PreconditionError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// Kind 返回错误分类名，用于下发给客户端
func Kind(err error) string {
	switch {
	case IsValidation(err):
		return "validation"
	case IsPrecondition(err):
		return "precondition"
	case IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}
