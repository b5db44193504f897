// crud.go — универсальный экран сущности: выборка, поиск, форма, изменения.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/session"
)

// EntityBackend — операции backend над записями сущности.
// Реализуется *apiclient.Client.
type EntityBackend interface {
	entity.Lister
	Create(ctx context.Context, basePath string, payload model.Record) (model.Record, error)
	Update(ctx context.Context, basePath, id string, payload model.Record) (model.Record, error)
	Delete(ctx context.Context, basePath, id string) error
}

// Confirmer запрашивает подтверждение удаления у пользователя.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc — Confirmer из функции.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm вызывает f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// CrudScreen — экран одной сущности. Хранит последнюю выборку и строку
// поиска. Изменение завершается только после повторной выборки, так что
// возвращаемый список отражает результат изменения.
// Экран обслуживает одного вызывающего; мьютекс защищает только кэш строк.
type CrudScreen struct {
	cfg     *entity.Config
	backend EntityBackend
	scope   entity.Scope
	logger  *slog.Logger

	mu   sync.Mutex
	rows []model.Record
	term string
}

// NewCrudScreen создаёт экран сущности.
func NewCrudScreen(cfg *entity.Config, backend EntityBackend, scope entity.Scope, logger *slog.Logger) *CrudScreen {
	logger = logger.With(slog.String("entity", cfg.Key))
	scope.Entity = cfg.Key
	if scope.Logger == nil {
		scope.Logger = logger
	}
	return &CrudScreen{
		cfg:     cfg,
		backend: backend,
		scope:   scope,
		logger:  logger,
	}
}

// Config возвращает конфигурацию сущности экрана.
func (c *CrudScreen) Config() *entity.Config {
	return c.cfg
}

// List загружает записи и фильтрует их строкой поиска.
// Пустая строка поиска возвращает все записи.
func (c *CrudScreen) List(ctx context.Context, term string) ([]model.Record, error) {
	rows, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rows = rows
	c.term = term
	c.mu.Unlock()

	return entity.Filter(rows, c.cfg.Fields, term), nil
}

// Search фильтрует уже загруженные записи без обращения к backend.
func (c *CrudScreen) Search(term string) []model.Record {
	c.mu.Lock()
	c.term = term
	rows := c.rows
	c.mu.Unlock()
	return entity.Filter(rows, c.cfg.Fields, term)
}

// Rows возвращает загруженные записи с учётом текущего поиска.
func (c *CrudScreen) Rows() []model.Record {
	c.mu.Lock()
	rows, term := c.rows, c.term
	c.mu.Unlock()
	return entity.Filter(rows, c.cfg.Fields, term)
}

// Table возвращает текущие записи в виде таблицы для отображения.
func (c *CrudScreen) Table() entity.Table {
	return entity.RenderTable(c.cfg, c.Rows())
}

// Form возвращает поля формы: пустой для создания (rec == nil)
// или заполненной значениями записи для редактирования.
func (c *CrudScreen) Form(rec model.Record) []entity.FormField {
	return entity.BuildForm(c.cfg, rec)
}

// Find ищет загруженную запись по идентификатору.
func (c *CrudScreen) Find(id string) (model.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.rows, func(r model.Record) bool {
		return c.cfg.RecordID(r) == id
	})
	if i < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.cfg.Key, id)
	}
	return c.rows[i], nil
}

// Create создаёт запись из значений формы и перечитывает список.
func (c *CrudScreen) Create(ctx context.Context, form map[string]any) ([]model.Record, error) {
	payload, err := c.payload(nil, form)
	if err != nil {
		return nil, err
	}
	if _, err := c.backend.Create(ctx, c.cfg.BasePath, payload); err != nil {
		return nil, fmt.Errorf("создание %s: %w", c.cfg.Key, err)
	}
	c.logger.Info("Запись создана")
	return c.refetch(ctx)
}

// Update изменяет запись rec значениями формы и перечитывает список.
// Идентификатор берётся из записи; форма не может его изменить.
func (c *CrudScreen) Update(ctx context.Context, rec model.Record, form map[string]any) ([]model.Record, error) {
	id := c.cfg.RecordID(rec)
	if id == "" {
		return nil, apperr.Validation(msgIDMissing)
	}
	payload, err := c.payload(rec, form)
	if err != nil {
		return nil, err
	}
	if _, err := c.backend.Update(ctx, c.cfg.BasePath, id, payload); err != nil {
		return nil, fmt.Errorf("изменение %s %s: %w", c.cfg.Key, id, err)
	}
	c.logger.Info("Запись изменена", slog.String("id", id))
	return c.refetch(ctx)
}

// Delete удаляет запись после подтверждения. Отказ или отсутствие
// confirm — без обращения к backend, deleted = false.
func (c *CrudScreen) Delete(ctx context.Context, rec model.Record, confirm Confirmer) (deleted bool, rows []model.Record, err error) {
	id := c.cfg.RecordID(rec)
	if id == "" {
		return false, nil, apperr.Validation(msgIDMissing)
	}
	if confirm == nil {
		return false, c.Rows(), nil
	}
	ok, err := confirm.Confirm(ctx, fmt.Sprintf("%s %s", c.cfg.Label, id))
	if err != nil {
		return false, nil, fmt.Errorf("подтверждение удаления: %w", err)
	}
	if !ok {
		return false, c.Rows(), nil
	}

	if err := c.backend.Delete(ctx, c.cfg.BasePath, id); err != nil {
		return false, nil, fmt.Errorf("удаление %s %s: %w", c.cfg.Key, id, err)
	}
	c.logger.Info("Запись удалена", slog.String("id", id))

	rows, err = c.refetch(ctx)
	return true, rows, err
}

// fetch выполняет пользовательскую или стандартную выборку.
func (c *CrudScreen) fetch(ctx context.Context) ([]model.Record, error) {
	if c.cfg.HasCustomList() {
		rows, err := c.cfg.List(ctx, c.backend, c.scope)
		if err != nil {
			return nil, fmt.Errorf("выборка %s: %w", c.cfg.Key, err)
		}
		return rows, nil
	}
	rows, err := c.backend.List(ctx, c.cfg.BasePath, c.cfg.ListParams)
	if err != nil {
		return nil, fmt.Errorf("выборка %s: %w", c.cfg.Key, err)
	}
	return rows, nil
}

// refetch перечитывает список с текущей строкой поиска.
func (c *CrudScreen) refetch(ctx context.Context) ([]model.Record, error) {
	c.mu.Lock()
	term := c.term
	c.mu.Unlock()
	return c.List(ctx, term)
}

// payload собирает тело запроса; ошибки приведения типов — ValidationError.
func (c *CrudScreen) payload(base model.Record, form map[string]any) (model.Record, error) {
	payload, err := entity.Payload(c.cfg, base, form)
	if err != nil {
		var fe *entity.FieldError
		if errors.As(err, &fe) {
			label := fe.Field
			if f, ok := c.cfg.Field(fe.Field); ok {
				label = f.Label
			}
			return nil, &apperr.Error{
				Kind:    apperr.KindValidation,
				Message: msgInvalidValue,
				Args:    []any{label},
				Err:     err,
			}
		}
		return nil, apperr.Validation(err.Error())
	}
	return payload, nil
}

// EntityService открывает экраны сущностей с учётом ролей сессии.
type EntityService struct {
	registry    *entity.Registry
	fanOutLimit int
	logger      *slog.Logger
}

// NewEntityService создаёт сервис экранов сущностей.
// fanOutLimit — лимит связанных записей для пользовательских выборок.
func NewEntityService(registry *entity.Registry, fanOutLimit int, logger *slog.Logger) *EntityService {
	return &EntityService{
		registry:    registry,
		fanOutLimit: fanOutLimit,
		logger:      logger.With(slog.String("service", "entities")),
	}
}

// Registry возвращает реестр сущностей.
func (s *EntityService) Registry() *entity.Registry {
	return s.registry
}

// Available возвращает сущности, доступные сессии.
func (s *EntityService) Available(sess *session.Session) []*entity.Config {
	if !sess.Authenticated() {
		return nil
	}
	return s.registry.ForRoles(sess.EffectiveRoles())
}

// Screen открывает экран сущности key для сессии.
// Недостаточно ролей — AuthorizationError.
func (s *EntityService) Screen(key string, sess *session.Session, backend EntityBackend) (*CrudScreen, error) {
	cfg, ok := s.registry.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	if !sess.Authenticated() {
		return nil, ErrNoSession
	}
	if !cfg.AllowedFor(sess.EffectiveRoles()) {
		return nil, apperr.Authorization("")
	}

	scope := entity.Scope{UserID: sess.UserID, Limit: s.fanOutLimit}
	return NewCrudScreen(cfg, backend, scope, s.logger), nil
}
