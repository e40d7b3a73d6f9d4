package core

import (
	"errors"
	"fmt"
)

var (
	ErrDriverUnavailable     = errors.New("no usable compute driver")
	ErrNoPhysicalDevice      = errors.New("no physical device found")
	ErrNoGraphicsQueueFamily = errors.New("no graphics-capable queue family found")
	ErrMemoryTypeNotFound    = errors.New("no suitable memory type found")
	ErrCommandBufferState    = errors.New("command buffer is not in a recordable state")
	ErrShaderAsset           = errors.New("invalid shader asset")
	ErrVerificationFailed    = errors.New("verification failed")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrContextClosed         = errors.New("device context already closed")
	ErrUnknown               = errors.New("unknown")
)

// ErrorKind is the category of a failure, so callers can decide whether to
// retry, pick another device or give up.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindDriver
	KindResource
	KindDevice
	KindAsset
	KindVerification
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindDriver:
		return "driver"
	case KindResource:
		return "resource"
	case KindDevice:
		return "device"
	case KindAsset:
		return "asset"
	case KindVerification:
		return "verification"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind ErrorKind
	// Op is the operation that failed, e.g. "vulkan.CreateBuffer".
	Op  string
	Err error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	if err == nil {
		err = ErrUnknown
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is formatted like fmt.Errorf, %w included.
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return NewError(kind, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost Error in the chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
