// auth.go — вход, регистрация и выход пользователя консоли.
package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/trafficadmin/internal/apiclient"
	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
	"github.com/bigkaa/trafficadmin/internal/session"
)

// MinPasswordLength — минимальная длина пароля при регистрации.
const MinPasswordLength = 5

// RegisterInput — данные формы регистрации.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirmPassword"`
	// Role — роль нового пользователя, по умолчанию USER.
	Role string `json:"role,omitempty"`
}

// AuthService — вход и выход пользователя.
type AuthService struct {
	client *apiclient.Client
	store  *session.Store
	logger *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(client *apiclient.Client, store *session.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		client: client,
		store:  store,
		logger: logger.With(slog.String("service", "auth")),
	}
}

// Login проверяет ввод, отправляет учётные данные и устанавливает сессию.
// Без токена в ответе возвращается AuthError с сообщением backend
// или текстом по умолчанию.
func (s *AuthService) Login(ctx context.Context, username, password string) (*session.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation(msgCredentialsRequired)
	}

	resp, err := s.client.Login(ctx, username, password)
	if err != nil {
		s.logger.Info("Вход отклонён",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, authFailure(err, msgAuth)
	}

	token := resp.BearerToken()
	if token == "" {
		return nil, apperr.Auth(firstMessage(resp.Message, resp.Error, msgAuth))
	}

	sess, err := s.store.Establish(ctx, token, username, profileFrom(resp.User))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindAuth, Message: msgAuth, Status: 401, Err: err}
	}

	s.logger.Info("Пользователь вошёл",
		slog.String("username", sess.UserName),
		slog.String("role", sess.PrimaryRole.String()),
	)
	return sess, nil
}

// Register проверяет форму и регистрирует пользователя.
// Успех — только статус CREATED в ответе.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) error {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return apperr.Validation(msgCredentialsRequired)
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return apperr.Validation(msgPasswordTooShort, MinPasswordLength)
	}
	if in.Password != in.Confirm {
		return apperr.Validation(msgPasswordMismatch)
	}

	role := rbac.Normalize(in.Role)
	if role == "" {
		role = rbac.RoleUser
	}

	resp, err := s.client.Register(ctx, username, in.Password, role.String())
	if err != nil {
		return authFailure(err, msgRegister)
	}
	if resp.Status != apiclient.RegisterStatusCreated {
		return apperr.Auth(firstMessage(resp.Message, resp.Error, msgRegister))
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("username", username),
		slog.String("role", role.String()),
	)
	return nil
}

// Logout очищает сессию. Тема оформления сохраняется.
func (s *AuthService) Logout() {
	if cur := s.store.Current(); cur != nil {
		s.logger.Info("Пользователь вышел", slog.String("username", cur.UserName))
	}
	s.store.Clear()
}

// Current возвращает текущую сессию или nil.
func (s *AuthService) Current() *session.Session {
	return s.store.Current()
}

// authFailure приводит ошибку входа или регистрации к AuthError.
// Сетевые ошибки остаются NetworkError, сообщение backend сохраняется.
func authFailure(err error, fallback string) error {
	if apperr.Is(err, apperr.KindNetwork) {
		return err
	}
	return &apperr.Error{
		Kind:    apperr.KindAuth,
		Message: firstMessage(apperr.MessageOf(err), fallback),
		Status:  401,
		Err:     err,
	}
}

// profileFrom читает профиль из объекта user ответа на login.
func profileFrom(user model.Record) session.Profile {
	return session.Profile{
		Name:       user.String("name"),
		RealName:   user.String("realName"),
		Email:      user.String("email"),
		UserID:     user.String("userId"),
		DriverID:   user.String("driverId"),
		DriverName: user.String("driverName"),
	}
}

func firstMessage(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
