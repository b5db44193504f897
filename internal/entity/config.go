// Пакет entity — реестр сущностей backend: базовый путь, поле-идентификатор,
// схема полей и необязательные функции выборки и преобразования payload.
// Конфигурации статичны, проверяются один раз при создании реестра.
package entity

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
)

// FieldType — семантический тип поля.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDateTime FieldType = "datetime"
)

// Valid проверяет, что тип известен.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDateTime:
		return true
	}
	return false
}

// FieldSpec — описание поля сущности.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label"`
	ReadOnly bool      `json:"readOnly,omitempty"`
}

// Lister — источник списков записей (apiclient.Client).
type Lister interface {
	List(ctx context.Context, basePath string, params url.Values) ([]model.Record, error)
}

// Scope — контекст выполнения пользовательской выборки.
type Scope struct {
	// Entity — ключ сущности (для логов и метрик).
	Entity string
	// UserID — идентификатор пользователя текущей сессии.
	UserID string
	// Limit — сколько связанных записей обходит fan-out.
	Limit  int
	Logger *slog.Logger
}

// ListFunc — пользовательская выборка списка вместо GET {BasePath}.
type ListFunc func(ctx context.Context, l Lister, scope Scope) ([]model.Record, error)

// TransformFunc — преобразование payload перед create/update.
type TransformFunc func(model.Record) model.Record

// Config — конфигурация сущности.
type Config struct {
	Key      string
	Label    string
	BasePath string
	IDField  string
	Fields   []FieldSpec
	// ListParams — query-параметры стандартной выборки (page, size, фильтры).
	ListParams url.Values
	// Route — путь экрана сущности в навигации.
	Route string
	// Roles — роли, которым доступен экран.
	Roles rbac.Set
	// List — необязательная пользовательская выборка.
	List ListFunc
	// Transform — необязательное преобразование payload.
	Transform TransformFunc
}

// Field возвращает описание поля по имени.
func (c *Config) Field(name string) (FieldSpec, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Editable сообщает, можно ли редактировать поле.
// Поле-идентификатор не редактируется никогда.
func (c *Config) Editable(f FieldSpec) bool {
	return !f.ReadOnly && f.Name != c.IDField
}

// EditableFields возвращает редактируемые поля в порядке объявления.
func (c *Config) EditableFields() []FieldSpec {
	out := make([]FieldSpec, 0, len(c.Fields))
	for _, f := range c.Fields {
		if c.Editable(f) {
			out = append(out, f)
		}
	}
	return out
}

// RecordID возвращает идентификатор записи или пустую строку.
func (c *Config) RecordID(rec model.Record) string {
	return rec.String(c.IDField)
}

// AllowedFor проверяет доступ ролей к экрану сущности.
func (c *Config) AllowedFor(roles rbac.Set) bool {
	return c.Roles.Empty() || c.Roles.Intersects(roles)
}

// HasCustomList сообщает, использует ли сущность пользовательскую выборку.
func (c *Config) HasCustomList() bool {
	return c.List != nil
}
