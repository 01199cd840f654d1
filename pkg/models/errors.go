package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("记录不存在")
	ErrDuplicateID       = errors.New("ID 已存在")
	ErrAlreadyRunning    = errors.New("同类任务正在运行")
	ErrInvalidTransition = errors.New("当前状态不允许该操作")
	ErrInvalidInput      = errors.New("参数错误")
	ErrSimulatedFailure  = errors.New("推理服务失败")
)

// SimulatedFailure 推理服务返回的可读失败（不会导致进程退出）
type SimulatedFailure struct {
	Message string
}

func (e *SimulatedFailure) Error() string { return e.Message }

func (e *SimulatedFailure) Is(target error) bool { return target == ErrSimulatedFailure }

// Failf 构造 SimulatedFailure
func Failf(format string, args ...any) error {
	return &SimulatedFailure{Message: fmt.Sprintf(format, args...)}
}

// Invalidf 构造参数错误
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
