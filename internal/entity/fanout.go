package entity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
)

// DefaultFanOutLimit — сколько связанных записей обходится по умолчанию.
const DefaultFanOutLimit = 20

var (
	// fanOutSkippedTotal — пропущенные из-за ошибки зависимые запросы.
	fanOutSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ta_fanout_skipped_total",
			Help: "Зависимые запросы fan-out, пропущенные из-за ошибки",
		},
		[]string{"entity"},
	)

	// fanOutRequestsTotal — выполненные зависимые запросы.
	fanOutRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ta_fanout_requests_total",
			Help: "Зависимые запросы fan-out",
		},
		[]string{"entity"},
	)
)

// FanOut — выборка через связанную сущность: список связанных записей,
// затем по одному запросу зависимой сущности на каждую из первых Limit записей.
// Обходит отсутствие на backend фильтра по пользователю; ошибки отдельных
// зависимых запросов пропускаются, частичный результат лучше пустого.
type FanOut struct {
	// RelatedPath — путь списка связанных записей.
	RelatedPath string
	// UserParam — query-параметр связанного списка со значением UserID сессии.
	// Пусто — связанный список не фильтруется по пользователю.
	UserParam string
	// RelatedParams — дополнительные параметры связанного списка.
	RelatedParams url.Values
	// JoinField — поле связанной записи, передаваемое в зависимый запрос.
	JoinField string
	// DependentPath — путь списка зависимой сущности.
	DependentPath string
	// DependentParam — query-параметр зависимого запроса со значением JoinField.
	DependentParam string
	// DependentParams — дополнительные параметры зависимого запроса.
	DependentParams url.Values
	// IDField — поле зависимой записи для устранения повторов.
	IDField string
}

// List выполняет выборку. Зависимые запросы идут последовательно,
// порядок результата совпадает с порядком поступления.
// Ошибка связанного списка возвращается, ошибки зависимых — нет.
func (f FanOut) List(ctx context.Context, l Lister, scope Scope) ([]model.Record, error) {
	logger := scope.Logger
	if logger == nil {
		logger = slog.Default()
	}

	relatedParams := cloneValues(f.RelatedParams)
	if f.UserParam != "" {
		if scope.UserID == "" {
			// Без идентификатора пользователя нечего показывать в личном списке
			logger.Debug("Fan-out без идентификатора пользователя",
				slog.String("entity", scope.Entity),
			)
			return []model.Record{}, nil
		}
		relatedParams.Set(f.UserParam, scope.UserID)
	}

	related, err := l.List(ctx, f.RelatedPath, relatedParams)
	if err != nil {
		return nil, fmt.Errorf("связанный список %s: %w", f.RelatedPath, err)
	}

	limit := scope.Limit
	if limit <= 0 {
		limit = DefaultFanOutLimit
	}
	if len(related) > limit {
		related = related[:limit]
	}

	results := make([]model.Record, 0)
	seen := make(map[string]bool)
	for _, rec := range related {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := rec.String(f.JoinField)
		if key == "" {
			continue
		}

		params := cloneValues(f.DependentParams)
		params.Set(f.DependentParam, key)
		fanOutRequestsTotal.WithLabelValues(scope.Entity).Inc()

		items, err := l.List(ctx, f.DependentPath, params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fanOutSkippedTotal.WithLabelValues(scope.Entity).Inc()
			logger.Debug("Зависимый запрос fan-out пропущен",
				slog.String("entity", scope.Entity),
				slog.String(f.JoinField, key),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, item := range items {
			if f.IDField != "" {
				id := item.String(f.IDField)
				if id != "" {
					if seen[id] {
						continue
					}
					seen[id] = true
				}
			}
			results = append(results, item)
		}
	}
	return results, nil
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
