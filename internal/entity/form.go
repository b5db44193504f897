package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
)

// ErrInvalidValue — значение формы не соответствует типу поля.
var ErrInvalidValue = errors.New("некорректное значение поля")

// Формы datetime: ввод формы и формат отправки на backend (LocalDateTime).
const (
	InputDateTimeLayout   = "2006-01-02T15:04"
	BackendDateTimeLayout = "2006-01-02T15:04:05"
)

// multilineMarkers — подстроки имён полей с многострочным вводом.
var multilineMarkers = []string{"description", "remarks", "reason", "content", "address", "result", "opinion"}

// FormField — поле формы редактирования.
type FormField struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Input     string    `json:"input"`
	Multiline bool      `json:"multiline,omitempty"`
	Disabled  bool      `json:"disabled,omitempty"`
	Value     any       `json:"value"`
}

// InputType подбирает тип элемента ввода.
func InputType(f FieldSpec) string {
	switch f.Type {
	case TypeBoolean:
		return "checkbox"
	case TypeInteger, TypeFloat:
		return "number"
	case TypeDateTime:
		return "datetime-local"
	}
	name := strings.ToLower(f.Name)
	switch {
	case strings.Contains(name, "email"):
		return "email"
	case strings.Contains(name, "password"):
		return "password"
	}
	return "text"
}

// Multiline сообщает, нужен ли многострочный ввод.
func Multiline(f FieldSpec) bool {
	if f.Type != TypeString {
		return false
	}
	name := strings.ToLower(f.Name)
	for _, marker := range multilineMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// BuildForm строит форму по схеме. rec == nil — форма создания.
func BuildForm(cfg *Config, rec model.Record) []FormField {
	out := make([]FormField, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		ff := FormField{
			Name:      f.Name,
			Label:     f.Label,
			Type:      f.Type,
			Input:     InputType(f),
			Multiline: Multiline(f),
			Disabled:  !cfg.Editable(f),
		}
		var v any
		if rec != nil {
			v = rec[f.Name]
		}
		switch ff.Input {
		case "checkbox":
			ff.Value = truthy(v)
		case "datetime-local":
			if t, ok := ParseDateTime(v); ok {
				ff.Value = t.Format(InputDateTimeLayout)
			} else {
				ff.Value = ""
			}
		default:
			ff.Value = model.Stringify(v)
		}
		out = append(out, ff)
	}
	return out
}

// FieldError — значение формы не приводится к типу поля.
type FieldError struct {
	Field    string
	Value    string
	Expected string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: ожидалось %s, получено %q", ErrInvalidValue, e.Field, e.Expected, e.Value)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidValue
}

// Coerce приводит значение формы к типу поля.
// Пустое значение числа или даты даёт nil (поле очищается).
func Coerce(f FieldSpec, v any) (any, error) {
	switch f.Type {
	case TypeBoolean:
		return truthy(v), nil
	case TypeInteger:
		s := strings.TrimSpace(model.Stringify(v))
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Value: s, Expected: "целое число"}
		}
		return n, nil
	case TypeFloat:
		s := strings.TrimSpace(model.Stringify(v))
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Value: s, Expected: "число"}
		}
		return n, nil
	case TypeDateTime:
		s := strings.TrimSpace(model.Stringify(v))
		if s == "" {
			return nil, nil
		}
		t, ok := ParseDateTime(s)
		if !ok {
			return nil, &FieldError{Field: f.Name, Value: s, Expected: "дата"}
		}
		return t.Format(BackendDateTimeLayout), nil
	default:
		if v == nil {
			return nil, nil
		}
		return model.Stringify(v), nil
	}
}

// Payload собирает тело create/update: редактируемые поля из base
// (исходная запись при update) поверх которых применяются значения формы.
// Поля вне схемы и нередактируемые поля формы игнорируются.
// В конце применяется Transform сущности.
func Payload(cfg *Config, base model.Record, form map[string]any) (model.Record, error) {
	payload := model.Record{}
	for _, f := range cfg.EditableFields() {
		v, fromForm := form[f.Name]
		if !fromForm {
			if bv, ok := base[f.Name]; ok {
				payload[f.Name] = bv
			}
			continue
		}
		coerced, err := Coerce(f, v)
		if err != nil {
			return nil, err
		}
		payload[f.Name] = coerced
	}
	if cfg.Transform != nil {
		payload = cfg.Transform(payload)
	}
	return payload, nil
}

// truthy приводит значение чекбокса к bool.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	}
	switch strings.ToLower(strings.TrimSpace(model.Stringify(v))) {
	case "true", "1", "on", "yes", "y":
		return true
	}
	return false
}

// nowLocal — текущее время для преобразований payload (подменяется в тестах).
var nowLocal = time.Now
