// appeals.go — рассмотрение жалоб на нарушения.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/entity"
)

// AppealService — решения по жалобам. Решение принимается только
// по жалобе в статусе Pending.
type AppealService struct {
	screen *CrudScreen
	logger *slog.Logger
}

// NewAppealService создаёт сервис поверх экрана жалоб.
func NewAppealService(screen *CrudScreen, logger *slog.Logger) *AppealService {
	return &AppealService{
		screen: screen,
		logger: logger.With(slog.String("service", "appeals")),
	}
}

// Approve принимает жалобу с результатом рассмотрения result.
func (s *AppealService) Approve(ctx context.Context, appeal model.Record, result string) ([]model.Record, error) {
	return s.review(ctx, appeal, entity.StatusApproved, result)
}

// Reject отклоняет жалобу с результатом рассмотрения result.
func (s *AppealService) Reject(ctx context.Context, appeal model.Record, result string) ([]model.Record, error) {
	return s.review(ctx, appeal, entity.StatusRejected, result)
}

func (s *AppealService) review(ctx context.Context, appeal model.Record, status, result string) ([]model.Record, error) {
	if !IsPending(appeal) {
		return nil, apperr.Validation(msgNotPending)
	}

	rows, err := s.screen.Update(ctx, appeal, map[string]any{
		"processStatus": status,
		"processResult": strings.TrimSpace(result),
	})
	if err != nil {
		return nil, fmt.Errorf("рассмотрение жалобы: %w", err)
	}

	s.logger.Info("Жалоба рассмотрена",
		slog.String("appeal_id", s.screen.Config().RecordID(appeal)),
		slog.String("status", status),
	)
	return rows, nil
}

// IsPending сообщает, ожидает ли жалоба рассмотрения.
// Жалоба без статуса считается новой.
func IsPending(appeal model.Record) bool {
	status := strings.TrimSpace(appeal.String("processStatus"))
	return status == "" || strings.EqualFold(status, entity.StatusPending)
}
