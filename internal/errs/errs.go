// Package errs описывает классы ошибок конвейера загрузки:
// временные (можно повторить), ошибки разбора одной записи и фатальные.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// TransientError - 429/503 и подобное, вызывающий может повторить запрос.
type TransientError struct {
	StatusCode int
	// RetryAfter - задержка, предложенная сервером (0 если не указана)
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ParseError - одна запись не разобрана, пакет продолжается.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// FatalError прерывает пакет целиком.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func Transient(status int, retryAfter time.Duration, err error) error {
	return &TransientError{StatusCode: status, RetryAfter: retryAfter, Err: err}
}

func Parse(reason string, err error) error {
	return &ParseError{Reason: reason, Err: err}
}

// Fatal оборачивает err как фатальную ошибку. nil остаётся nil,
// уже фатальная ошибка не оборачивается повторно.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// RetryAfter возвращает задержку сервера из TransientError, иначе 0.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// Kind - короткое имя класса ошибки для журналов запуска.
func Kind(err error) string {
	// исчерпанные повторы оборачиваются в FatalError, поэтому он проверяется первым
	switch {
	case IsFatal(err):
		return "FatalError"
	case IsParse(err):
		return "ParseError"
	case IsTransient(err):
		return "TransientError"
	default:
		return "Error"
	}
}
