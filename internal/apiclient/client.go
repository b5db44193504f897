// Пакет apiclient — HTTP-клиент backend REST API системы учёта нарушений.
// Каждый запрос получает Bearer-токен активной сессии, мутирующие запросы
// получают новый Idempotency-Key. Ответ 401 очищает сессию независимо
// от того, какой экран инициировал запрос.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/trafficadmin/internal/apperr"
)

// HeaderIdempotencyKey — заголовок ключа идемпотентности.
const HeaderIdempotencyKey = "Idempotency-Key"

// maxErrorBody — сколько байт тела ошибки читается для сообщения.
const maxErrorBody = 64 << 10

// Credentials — источник токена и обработчик отказа в аутентификации.
// Реализуется session.Store.
type Credentials interface {
	Token() string
	Invalidate()
}

// Client — HTTP-клиент backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	creds        Credentials
	logger       *slog.Logger
}

// New создаёт клиент backend.
// timeout — таймаут одного запроса; для SSE-потоков он ограничивает только
// ожидание заголовков ответа.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
func New(baseURL string, timeout time.Duration, caCertPath string, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата backend: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат backend добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	streamTransport := transport.Clone()
	streamTransport.ResponseHeaderTimeout = timeout

	return &Client{
		baseURL:      normalizeURL(baseURL),
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
		streamClient: &http.Client{Transport: streamTransport},
		logger:       logger.With(slog.String("component", "api_client")),
	}, nil
}

// WithCredentials возвращает копию клиента, привязанную к источнику токена.
// Транспорт разделяется между копиями.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл %s не содержит PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// requestOptions — параметры одного запроса.
type requestOptions struct {
	skipAuth       bool
	token          string
	query          url.Values
	idempotencyKey string
	accept         string
}

// RequestOption изменяет параметры запроса.
type RequestOption func(*requestOptions)

// WithoutAuth отключает Authorization для запроса (login, register).
func WithoutAuth() RequestOption {
	return func(o *requestOptions) { o.skipAuth = true }
}

// WithToken задаёт токен вместо токена активной сессии.
func WithToken(token string) RequestOption {
	return func(o *requestOptions) { o.token = token }
}

// WithQuery добавляет query-параметры.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithIdempotencyKey задаёт ключ идемпотентности явно, когда он должен
// совпадать с ключом в теле запроса.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) { o.idempotencyKey = key }
}

// mutating — методы, изменяющие состояние backend.
func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Do выполняет запрос к backend и декодирует JSON-ответ в out (если out != nil).
// Ошибки:
//   - транспорт или таймаут → apperr.KindNetwork;
//   - 401 → сессия очищается, apperr.KindAuth;
//   - 403 → apperr.KindAuthorization;
//   - прочие 4xx/5xx → apperr.KindAPI со статусом.
func (c *Client) Do(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	resp, err := c.send(ctx, c.httpClient, method, path, in, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decodeJSON(resp.Body, out); err != nil {
		return fmt.Errorf("декодирование ответа %s %s: %w", method, path, err)
	}
	return nil
}

// send собирает запрос, выполняет его и переводит ошибочные статусы в ошибки.
// При успехе вызывающий обязан закрыть resp.Body.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, in any, opts ...RequestOption) (*http.Response, error) {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}

	req, err := c.newRequest(ctx, method, path, in, o)
	if err != nil {
		return nil, err
	}

	metricPath := normalizeBackendPath(path)
	start := time.Now()
	resp, err := hc.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		backendRequestsTotal.WithLabelValues(method, metricPath, "error").Inc()
		backendRequestDuration.WithLabelValues(method, metricPath).Observe(duration)
		c.logger.Debug("Сбой запроса к backend",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, apperr.Network(err)
	}
	backendRequestsTotal.WithLabelValues(method, metricPath, strconv.Itoa(resp.StatusCode)).Inc()
	backendRequestDuration.WithLabelValues(method, metricPath).Observe(duration)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := extractMessage(body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if c.creds != nil {
			c.creds.Invalidate()
		}
		return nil, apperr.Auth(message)
	case http.StatusForbidden:
		return nil, apperr.Authorization(message)
	default:
		c.logger.Debug("Backend вернул ошибку",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apperr.API(resp.StatusCode, message)
	}
}

// newRequest создаёт HTTP-запрос с заголовками авторизации и идемпотентности.
func (c *Client) newRequest(ctx context.Context, method, path string, in any, o *requestOptions) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(o.query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		reqURL += sep + o.query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	accept := o.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	if !o.skipAuth {
		token := o.token
		if token == "" && c.creds != nil {
			token = c.creds.Token()
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	// Новый ключ на каждый вызов: повтор, инициированный пользователем,
	// является новой операцией
	if mutating(method) {
		key := o.idempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		req.Header.Set(HeaderIdempotencyKey, key)
	}

	return req, nil
}

// decodeJSON декодирует JSON с сохранением точности чисел.
// Пустое тело не считается ошибкой.
func decodeJSON(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// extractMessage достаёт сообщение для пользователя из тела ошибки:
// {"message": "..."}, {"error": "..."} или {"error": {"message": "..."}}.
func extractMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	switch e := payload["error"].(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
