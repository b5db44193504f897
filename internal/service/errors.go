// errors.go — ошибки сервисного слоя и их показ пользователю.
package service

import (
	"errors"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/session"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrUnknownEntity — сущность отсутствует в реестре.
	ErrUnknownEntity = errors.New("неизвестная сущность")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNoSession — операция требует входа в систему.
	ErrNoSession = session.ErrNoSession
)

// Ключи каталога сообщений, используемые сервисами.
const (
	msgGeneric             = "error.generic"
	msgAuth                = "error.auth"
	msgSessionExpired      = "error.session_expired"
	msgRegister            = "error.register"
	msgNetwork             = "error.network"
	msgForbidden           = "error.forbidden"
	msgNotFound            = "error.not_found"
	msgUnknownEntity       = "error.unknown_entity"
	msgValidation          = "error.validation"
	msgCredentialsRequired = "validation.credentials_required"
	msgPasswordTooShort    = "validation.password_too_short"
	msgPasswordMismatch    = "validation.password_mismatch"
	msgIDMissing           = "validation.id_missing"
	msgInvalidValue        = "validation.invalid_value"
	msgInvalidTheme        = "validation.invalid_theme"
	msgNotPending          = "validation.not_pending"
)

// InlineMessage переводит ошибку в текст для показа рядом с формой.
// Сообщение backend показывается как есть; ключи каталога переводятся;
// без сообщения используется текст по умолчанию для вида ошибки.
// Для nil возвращает пустую строку.
func InlineMessage(bundle *i18n.Bundle, err error, lang string) string {
	if err == nil {
		return ""
	}

	if msg := apperr.MessageOf(err); msg != "" {
		if bundle.Has(msg) {
			return bundle.Translatef(lang, msg, apperr.ArgsOf(err)...)
		}
		return msg
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return bundle.Translate(lang, msgNotFound)
	case errors.Is(err, ErrUnknownEntity):
		return bundle.Translate(lang, msgUnknownEntity)
	case errors.Is(err, ErrNoSession):
		return bundle.Translate(lang, msgSessionExpired)
	case errors.Is(err, ErrValidation):
		return bundle.Translate(lang, msgValidation)
	}

	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		// Вход сам подставляет error.auth, здесь остаётся истёкший токен
		return bundle.Translate(lang, msgSessionExpired)
	case apperr.KindNetwork:
		return bundle.Translate(lang, msgNetwork)
	case apperr.KindValidation:
		return bundle.Translate(lang, msgValidation)
	case apperr.KindAuthorization:
		return bundle.Translate(lang, msgForbidden)
	default:
		return bundle.Translate(lang, msgGeneric)
	}
}
