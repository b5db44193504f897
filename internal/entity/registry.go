package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
)

// ErrInvalidConfig — конфигурация сущности не прошла проверку.
var ErrInvalidConfig = errors.New("некорректная конфигурация сущности")

// Registry — неизменяемый реестр конфигураций сущностей.
type Registry struct {
	byKey map[string]*Config
	order []string
}

// NewRegistry проверяет конфигурации и строит реестр.
// Проверки: уникальный ключ, путь с ведущим /, поле-идентификатор
// объявлено в схеме, имена полей уникальны, типы известны.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{byKey: make(map[string]*Config, len(configs))}
	routes := make(map[string]string, len(configs))
	for i := range configs {
		cfg := configs[i]
		if err := validate(&cfg); err != nil {
			return nil, err
		}
		if _, dup := r.byKey[cfg.Key]; dup {
			return nil, fmt.Errorf("%w: повторный ключ %q", ErrInvalidConfig, cfg.Key)
		}
		if cfg.Route != "" {
			if other, dup := routes[cfg.Route]; dup {
				return nil, fmt.Errorf("%w: путь %s занят сущностью %q", ErrInvalidConfig, cfg.Route, other)
			}
			routes[cfg.Route] = cfg.Key
		}
		// Поля без типа считаются строками, без подписи — получают подпись из имени
		fields := make([]FieldSpec, len(cfg.Fields))
		for j, f := range cfg.Fields {
			if f.Type == "" {
				f.Type = TypeString
			}
			if f.Label == "" {
				f.Label = Humanize(f.Name)
			}
			fields[j] = f
		}
		cfg.Fields = fields
		if cfg.Label == "" {
			cfg.Label = Humanize(cfg.Key)
		}
		r.byKey[cfg.Key] = &cfg
		r.order = append(r.order, cfg.Key)
	}
	return r, nil
}

// MustRegistry — NewRegistry для статических каталогов; паникует при ошибке.
func MustRegistry(configs ...Config) *Registry {
	r, err := NewRegistry(configs...)
	if err != nil {
		panic(err)
	}
	return r
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Key) == "" {
		return fmt.Errorf("%w: пустой ключ", ErrInvalidConfig)
	}
	if !strings.HasPrefix(cfg.BasePath, "/") {
		return fmt.Errorf("%w: %s: путь %q должен начинаться с /", ErrInvalidConfig, cfg.Key, cfg.BasePath)
	}
	if len(cfg.Fields) == 0 {
		return fmt.Errorf("%w: %s: нет полей", ErrInvalidConfig, cfg.Key)
	}
	seen := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s: поле без имени", ErrInvalidConfig, cfg.Key)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s: повторное поле %q", ErrInvalidConfig, cfg.Key, f.Name)
		}
		seen[f.Name] = true
		if f.Type != "" && !f.Type.Valid() {
			return fmt.Errorf("%w: %s: поле %q: неизвестный тип %q", ErrInvalidConfig, cfg.Key, f.Name, f.Type)
		}
	}
	if !seen[cfg.IDField] {
		return fmt.Errorf("%w: %s: поле-идентификатор %q не объявлено", ErrInvalidConfig, cfg.Key, cfg.IDField)
	}
	for _, role := range cfg.Roles.Roles() {
		if !role.IsKnown() {
			return fmt.Errorf("%w: %s: неизвестная роль %q", ErrInvalidConfig, cfg.Key, role)
		}
	}
	return nil
}

// Get возвращает конфигурацию по ключу.
func (r *Registry) Get(key string) (*Config, bool) {
	cfg, ok := r.byKey[key]
	return cfg, ok
}

// Keys возвращает ключи в порядке регистрации.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.order...)
}

// All возвращает конфигурации в порядке регистрации.
func (r *Registry) All() []*Config {
	out := make([]*Config, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// ForRoles возвращает конфигурации, доступные набору ролей.
func (r *Registry) ForRoles(roles rbac.Set) []*Config {
	var out []*Config
	for _, cfg := range r.All() {
		if cfg.AllowedFor(roles) {
			out = append(out, cfg)
		}
	}
	return out
}

// ByRoute ищет сущность по пути экрана.
func (r *Registry) ByRoute(route string) (*Config, bool) {
	for _, cfg := range r.byKey {
		if cfg.Route != "" && cfg.Route == route {
			return cfg, true
		}
	}
	return nil, false
}

// Routes возвращает пути экранов с их ролями.
func (r *Registry) Routes() map[string]rbac.Set {
	out := make(map[string]rbac.Set)
	for _, cfg := range r.byKey {
		if cfg.Route != "" {
			out[cfg.Route] = cfg.Roles
		}
	}
	return out
}

// SortedRoutes возвращает пути экранов в лексикографическом порядке.
func (r *Registry) SortedRoutes() []string {
	routes := r.Routes()
	out := make([]string, 0, len(routes))
	for route := range routes {
		out = append(out, route)
	}
	sort.Strings(out)
	return out
}
