// Package wireerr implements the PostgreSQL error taxonomy used to populate
// ErrorResponse/NoticeResponse field bodies. Errors are built by decorating a
// plain Go error with SQLSTATE code, severity, hint, detail, and source
// metadata, mirroring how the teacher library layers withCode/withSeverity
// wrappers around a cause.
package wireerr

import (
	stderrors "errors"

	"github.com/pgmock/pgmock/internal/wirecodes"
)

// Severity is the severity tag carried by the 'S' error field.
type Severity string

const (
	LevelError   Severity = "ERROR"
	LevelFatal   Severity = "FATAL"
	LevelPanic   Severity = "PANIC"
	LevelWarning Severity = "WARNING"
	LevelNotice  Severity = "NOTICE"
)

// Source captures where an internal error originated. Only populated in
// development mode (see Flatten).
type Source struct {
	File     string
	Line     int32
	Function string
}

// Fields is the flattened, wire-ready representation of an error.
type Fields struct {
	Code           wirecodes.Code
	Message        string
	Detail         string
	Hint           string
	Where          string
	Severity       Severity
	ConstraintName string
	Source         *Source
}

// WithCode decorates err with a SQLSTATE code.
func WithCode(err error, code wirecodes.Code) error {
	if err == nil {
		return nil
	}
	return &withCode{cause: err, code: code}
}

// GetCode returns the most specific SQLSTATE code found while unwrapping err.
func GetCode(err error) wirecodes.Code {
	if err == nil {
		return wirecodes.Uncategorized
	}
	if c, ok := err.(*withCode); ok {
		return c.code
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetCode(n)
	}
	return wirecodes.Uncategorized
}

type withCode struct {
	cause error
	code  wirecodes.Code
}

func (w *withCode) Error() string { return w.cause.Error() }
func (w *withCode) Unwrap() error { return w.cause }

// WithSeverity decorates err with a severity level.
func WithSeverity(err error, severity Severity) error {
	if err == nil {
		return nil
	}
	return &withSeverity{cause: err, severity: severity}
}

// GetSeverity returns the severity found while unwrapping err, or "" if none.
func GetSeverity(err error) Severity {
	if err == nil {
		return ""
	}
	if c, ok := err.(*withSeverity); ok {
		return c.severity
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetSeverity(n)
	}
	return ""
}

type withSeverity struct {
	cause    error
	severity Severity
}

func (w *withSeverity) Error() string { return w.cause.Error() }
func (w *withSeverity) Unwrap() error { return w.cause }

// WithDetail decorates err with a detail message.
func WithDetail(err error, detail string) error {
	if err == nil {
		return nil
	}
	return &withDetail{cause: err, detail: detail}
}

// GetDetail returns the detail message found while unwrapping err.
func GetDetail(err error) string {
	if err == nil {
		return ""
	}
	if d, ok := err.(*withDetail); ok {
		return d.detail
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetDetail(n)
	}
	return ""
}

type withDetail struct {
	cause  error
	detail string
}

func (w *withDetail) Error() string { return w.cause.Error() }
func (w *withDetail) Unwrap() error { return w.cause }

// WithHint decorates err with a hint message.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &withHint{cause: err, hint: hint}
}

// GetHint returns the hint found while unwrapping err.
func GetHint(err error) string {
	if err == nil {
		return ""
	}
	if h, ok := err.(*withHint); ok {
		return h.hint
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetHint(n)
	}
	return ""
}

type withHint struct {
	cause error
	hint  string
}

func (w *withHint) Error() string { return w.cause.Error() }
func (w *withHint) Unwrap() error { return w.cause }

// WithWhere decorates err with context/where information (offending query
// text, stack-like trail). Only ever surfaced to the client in dev mode.
func WithWhere(err error, where string) error {
	if err == nil {
		return nil
	}
	return &withWhere{cause: err, where: where}
}

func GetWhere(err error) string {
	if err == nil {
		return ""
	}
	if w, ok := err.(*withWhere); ok {
		return w.where
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetWhere(n)
	}
	return ""
}

type withWhere struct {
	cause error
	where string
}

func (w *withWhere) Error() string { return w.cause.Error() }
func (w *withWhere) Unwrap() error { return w.cause }

// WithConstraintName decorates err with the name of the constraint that was
// violated.
func WithConstraintName(err error, constraint string) error {
	if err == nil {
		return nil
	}
	return &withConstraint{cause: err, constraint: constraint}
}

// GetConstraintName returns the constraint name found while unwrapping err.
func GetConstraintName(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := err.(*withConstraint); ok {
		return c.constraint
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetConstraintName(n)
	}
	return ""
}

type withConstraint struct {
	cause      error
	constraint string
}

func (w *withConstraint) Error() string { return w.cause.Error() }
func (w *withConstraint) Unwrap() error { return w.cause }

// WithSource decorates err with the internal call site that raised it.
// Surfaced to clients only when Flatten is called in dev mode.
func WithSource(err error, file string, line int32, function string) error {
	if err == nil {
		return nil
	}
	return &withSource{cause: err, file: file, line: line, function: function}
}

// GetSource returns the Source found while unwrapping err, or nil if none.
func GetSource(err error) *Source {
	if err == nil {
		return nil
	}
	if s, ok := err.(*withSource); ok {
		return &Source{File: s.file, Line: s.line, Function: s.function}
	}
	if n := stderrors.Unwrap(err); n != nil {
		return GetSource(n)
	}
	return nil
}

type withSource struct {
	cause    error
	file     string
	line     int32
	function string
}

func (w *withSource) Error() string { return w.cause.Error() }
func (w *withSource) Unwrap() error { return w.cause }

// Flatten reduces a decorated error chain to its wire-ready Fields. Code,
// Message, Hint, Severity and ConstraintName are always included; Detail,
// Where and Source are included only when dev is true.
func Flatten(err error, dev bool) Fields {
	if err == nil {
		return Fields{
			Code:     wirecodes.Internal,
			Message:  "unknown error, an internal process attempted to throw an error",
			Severity: LevelFatal,
		}
	}

	f := Fields{
		Code:           GetCode(err),
		Message:        err.Error(),
		Hint:           GetHint(err),
		Severity:       defaultSeverity(GetSeverity(err)),
		ConstraintName: GetConstraintName(err),
	}

	if dev {
		f.Detail = GetDetail(err)
		f.Where = GetWhere(err)
		f.Source = GetSource(err)
	}

	return f
}

func defaultSeverity(s Severity) Severity {
	if s == "" {
		return LevelError
	}
	return s
}
