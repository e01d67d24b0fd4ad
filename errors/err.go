package errors

import (
	stderrors "errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type ErrCode int

// MountErr is the error type raised by the mount and device layers.
// Level is the severity the failure should be reported with; Errno is set
// only for syscall failures.
type MountErr struct {
	Code  ErrCode
	Msg   string
	Level logrus.Level
	Errno unix.Errno
	cause error
}

func (e *MountErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
}

func (e *MountErr) Unwrap() error {
	return e.cause
}

// Is matches any MountErr carrying the same code, so the sentinels below can
// be used with errors.Is regardless of the message.
func (e *MountErr) Is(target error) bool {
	t, ok := target.(*MountErr)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func new(code ErrCode, msg string) *MountErr {
	return &MountErr{
		Code:  code,
		Msg:   msg,
		Level: logrus.ErrorLevel,
	}
}

const (
	parseFailed ErrCode = iota
	validationFailed
	syscallFailed
)

func (c ErrCode) String() string {
	switch c {
	case parseFailed:
		return "parse"
	case validationFailed:
		return "validation"
	case syscallFailed:
		return "syscall"
	default:
		return "unknown"
	}
}

// Kind sentinels.
var (
	ErrParse      = new(parseFailed, "malformed request")
	ErrValidation = new(validationFailed, "invalid request")
	ErrSyscall    = new(syscallFailed, "syscall failed")
)

// ParseErrorf reports a request that does not follow the expected grammar.
func ParseErrorf(format string, args ...interface{}) error {
	return pkgerrors.WithStack(new(parseFailed, fmt.Sprintf(format, args...)))
}

// ValidationErrorf reports a well-formed request rejected by filesystem checks.
func ValidationErrorf(format string, args ...interface{}) error {
	return pkgerrors.WithStack(new(validationFailed, fmt.Sprintf(format, args...)))
}

// WrapValidation turns err into a validation failure described by msg.
func WrapValidation(err error, format string, args ...interface{}) error {
	e := new(validationFailed, fmt.Sprintf(format, args...))
	e.cause = err
	return pkgerrors.WithStack(e)
}

// SyscallError wraps the failure of op on path. The errno is kept when err
// carries one.
func SyscallError(op, path string, err error) error {
	e := new(syscallFailed, fmt.Sprintf("%s %s", op, path))
	e.cause = err
	var errno unix.Errno
	if stderrors.As(err, &errno) {
		e.Errno = errno
	}
	return pkgerrors.WithStack(e)
}

// Wrapf adds context to err. The kind and severity of err are preserved.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func IsParse(err error) bool {
	return stderrors.Is(err, ErrParse)
}

func IsValidation(err error) bool {
	return stderrors.Is(err, ErrValidation)
}

func IsSyscall(err error) bool {
	return stderrors.Is(err, ErrSyscall)
}

// levelErr overrides the severity of the error it wraps.
type levelErr struct {
	cause error
	level logrus.Level
}

func (e *levelErr) Error() string { return e.cause.Error() }

func (e *levelErr) Unwrap() error { return e.cause }

// Format keeps the stack of the wrapped error printable with %+v.
func (e *levelErr) Format(s fmt.State, verb rune) {
	if f, ok := e.cause.(fmt.Formatter); ok {
		f.Format(s, verb)
		return
	}
	_, _ = io.WriteString(s, e.Error())
}

// LevelOf returns the outermost severity attached to err, defaulting to error
// level for errors not raised by this module.
func LevelOf(err error) logrus.Level {
	for err != nil {
		switch e := err.(type) {
		case *levelErr:
			return e.level
		case *MountErr:
			return e.Level
		}
		err = stderrors.Unwrap(err)
	}
	return logrus.ErrorLevel
}

// WithLevel returns err reported at level. err itself is left unchanged.
func WithLevel(err error, level logrus.Level) error {
	if err == nil {
		return nil
	}
	return &levelErr{cause: err, level: level}
}

// ErrnoOf returns the errno of the first syscall failure in the chain.
func ErrnoOf(err error) (unix.Errno, bool) {
	var me *MountErr
	if stderrors.As(err, &me) && me.Errno != 0 {
		return me.Errno, true
	}
	var errno unix.Errno
	if stderrors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
