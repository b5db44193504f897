// Пакет session — сессия пользователя консоли: разбор ролей из JWT,
// сохранение атрибутов в постоянном хранилище и восстановление при старте.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
)

// Claims, в которых backend передаёт роли. Берётся первый непустой.
var roleClaimNames = []string{"roles", "authorities", "role"}

// ErrInvalidToken — токен не удалось разобрать или проверить.
var ErrInvalidToken = errors.New("некорректный токен")

// Метрики кэша claims.
var (
	claimsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ta_claims_cache_hits_total",
		Help: "Количество попаданий в кэш разобранных ролей JWT.",
	})
	claimsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ta_claims_cache_misses_total",
		Help: "Количество промахов кэша разобранных ролей JWT.",
	})
)

// Decoder извлекает роли из JWT. Подпись проверяется только если задан keyfunc
// (TA_JWKS_URL), иначе payload декодируется без проверки: доверие к токену
// остаётся на стороне backend.
// Результаты кэшируются по строке токена (LRU с TTL).
type Decoder struct {
	cache   *expirable.LRU[string, rbac.Set]
	keyfunc keyfunc.Keyfunc
	logger  *slog.Logger
}

// NewDecoder создаёт декодер ролей.
// kf может быть nil — тогда подпись не проверяется.
func NewDecoder(cacheSize int, ttl time.Duration, kf keyfunc.Keyfunc, logger *slog.Logger) *Decoder {
	return &Decoder{
		cache:   expirable.NewLRU[string, rbac.Set](cacheSize, nil, ttl),
		keyfunc: kf,
		logger:  logger.With(slog.String("component", "claims_decoder")),
	}
}

// NewJWKSKeyfunc создаёт keyfunc с JWKS, обновляемым в фоне.
// Стартует даже если JWKS endpoint ещё недоступен.
func NewJWKSKeyfunc(jwksURL string, httpClient *http.Client, refresh time.Duration, logger *slog.Logger) (keyfunc.Keyfunc, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refresh,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return k, nil
}

// Verifying возвращает true, если декодер проверяет подпись токенов.
func (d *Decoder) Verifying() bool {
	return d.keyfunc != nil
}

// Roles возвращает нормализованный набор ролей токена.
func (d *Decoder) Roles(ctx context.Context, token string) (rbac.Set, error) {
	if token == "" {
		return rbac.Set{}, fmt.Errorf("%w: пустой токен", ErrInvalidToken)
	}

	if roles, ok := d.cache.Get(token); ok {
		claimsCacheHits.Inc()
		return roles, nil
	}
	claimsCacheMisses.Inc()

	claims, err := d.parse(ctx, token)
	if err != nil {
		return rbac.Set{}, err
	}

	roles := RolesFromClaims(claims)
	d.cache.Add(token, roles)
	return roles, nil
}

// parse разбирает токен с проверкой подписи или без неё.
func (d *Decoder) parse(ctx context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	if d.keyfunc == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(token, claims, d.keyfunc.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		d.logger.Debug("Токен не прошёл проверку подписи", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// RolesFromClaims извлекает роли из claims roles, authorities или role.
// Каждый claim может быть массивом строк, массивом объектов {"authority": "..."}
// или строкой с ролями через запятую.
func RolesFromClaims(claims map[string]any) rbac.Set {
	for _, name := range roleClaimNames {
		raw, ok := claims[name]
		if !ok || raw == nil {
			continue
		}
		if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return parseRoleClaim(raw)
	}
	return rbac.Set{}
}

// parseRoleClaim разбирает значение одного claim с ролями.
func parseRoleClaim(raw any) rbac.Set {
	switch v := raw.(type) {
	case string:
		return rbac.ParseCSV(v)
	case []string:
		return rbac.ParseSet(v...)
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case string:
				names = append(names, it)
			case map[string]any:
				// Spring Security сериализует GrantedAuthority как {"authority": "ROLE_X"}
				if a, ok := it["authority"].(string); ok {
					names = append(names, a)
				}
			default:
				names = append(names, fmt.Sprint(it))
			}
		}
		return rbac.ParseSet(names...)
	default:
		return rbac.Set{}
	}
}
