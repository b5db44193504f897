// Пакет apperr — виды ошибок консоли, которые видит пользователь.
// AuthError, ValidationError, NetworkError и AuthorizationError различаются
// политикой показа: валидация и auth/network выводятся сообщением,
// ошибка авторизации приводит к тихому redirect.
package apperr

import (
	"errors"
	"fmt"
)

// Kind — вид ошибки.
type Kind string

const (
	// KindAuth — неверные учётные данные, истёкший или отсутствующий токен.
	KindAuth Kind = "auth"
	// KindValidation — ошибка проверки ввода на стороне клиента.
	KindValidation Kind = "validation"
	// KindNetwork — сбой запроса или таймаут.
	KindNetwork Kind = "network"
	// KindAuthorization — недостаточно ролей.
	KindAuthorization Kind = "authorization"
	// KindAPI — прочие ошибки backend (4xx/5xx).
	KindAPI Kind = "api"
)

// Error — ошибка с видом и сообщением для пользователя.
// Message может быть пустым: тогда показывается локализованный текст по умолчанию.
type Error struct {
	Kind    Kind
	Message string
	// Status — HTTP-статус ответа backend (0, если ответа не было).
	Status int
	// Err — исходная ошибка.
	Err error
	// Args — аргументы сообщения, если Message — ключ каталога переводов.
	Args []any
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Auth создаёт AuthError.
func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message, Status: 401}
}

// Validation создаёт ValidationError. Message может быть ключом
// каталога переводов, args подставляются в перевод.
func Validation(message string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: message, Args: args}
}

// Network создаёт NetworkError поверх ошибки транспорта.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// Authorization создаёт AuthorizationError.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message, Status: 403}
}

// API создаёт ошибку backend с HTTP-статусом.
func API(status int, message string) *Error {
	return &Error{Kind: KindAPI, Message: message, Status: status}
}

// KindOf возвращает вид ошибки или пустую строку для прочих ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is проверяет вид ошибки.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ArgsOf возвращает аргументы сообщения.
func ArgsOf(err error) []any {
	var e *Error
	if errors.As(err, &e) {
		return e.Args
	}
	return nil
}

// MessageOf возвращает сообщение для пользователя, если оно есть.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
