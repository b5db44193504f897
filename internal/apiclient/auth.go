package apiclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
)

// Пути аутентификации backend.
const (
	PathLogin    = "/api/auth/login"
	PathRegister = "/api/auth/register"
)

// RegisterStatusCreated — статус успешной регистрации в ответе backend.
const RegisterStatusCreated = "CREATED"

// LoginResponse — ответ backend на login.
type LoginResponse struct {
	JWTToken string       `json:"jwtToken"`
	Token    string       `json:"token"`
	Message  string       `json:"message"`
	Error    string       `json:"error"`
	User     model.Record `json:"user"`
}

// BearerToken возвращает токен из ответа (jwtToken, затем token).
func (r *LoginResponse) BearerToken() string {
	if r.JWTToken != "" {
		return r.JWTToken
	}
	return r.Token
}

// RegisterResponse — ответ backend на регистрацию.
type RegisterResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// loginRequest — тело запроса login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// registerRequest — тело запроса регистрации.
type registerRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Login отправляет учётные данные: POST /api/auth/login без Authorization.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.Do(ctx, http.MethodPost, PathLogin,
		loginRequest{Username: username, Password: password}, &resp,
		WithoutAuth(),
	)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register регистрирует пользователя: POST /api/auth/register.
// Ключ идемпотентности передаётся и в теле, и в заголовке.
func (c *Client) Register(ctx context.Context, username, password, role string) (*RegisterResponse, error) {
	key := uuid.NewString()
	var resp RegisterResponse
	err := c.Do(ctx, http.MethodPost, PathRegister,
		registerRequest{Username: username, Password: password, Role: role, IdempotencyKey: key}, &resp,
		WithoutAuth(), WithIdempotencyKey(key),
	)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
