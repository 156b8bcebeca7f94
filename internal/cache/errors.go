package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey 表示 identifier/name 无法映射到 identifier 目录内的合法路径。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrTypeMismatch 表示 producer 返回的结果既不是 string 也不是 []byte。
	ErrTypeMismatch = errors.New("producer result type mismatch")
	// ErrIO 标记所有文件系统失败，调用方可统一通过 errors.Is 判断。
	ErrIO = errors.New("cache io failure")
	// ErrNilProducer 表示调用方没有提供 producer。
	ErrNilProducer = errors.New("producer required")
)

// TypeMismatchError 携带 producer 实际返回的类型名。
type TypeMismatchError struct {
	Type string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("file type must be a string, received: %s", e.Type)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// ProducerError 包装 producer 的失败，所有合并等待者拿到同一个实例。
type ProducerError struct {
	Key Key
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer for %s failed: %v", e.Key, e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}

// IOError 描述一次失败的文件系统操作（mkdir/read/write/stat/remove/walk）。
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
