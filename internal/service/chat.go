// chat.go — чат с ассистентом: один поток на владельца.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/chat"
)

// ChatService держит не более одного потока на владельца (экран CLI
// или сессию BFF). Новое сообщение сначала закрывает предыдущий поток,
// очереди нет.
type ChatService struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*chat.Subscription
}

// NewChatService создаёт сервис чата. path — путь SSE на backend.
func NewChatService(path string, logger *slog.Logger) *ChatService {
	return &ChatService{
		path:   path,
		logger: logger.With(slog.String("service", "chat")),
		active: make(map[string]*chat.Subscription),
	}
}

// Send открывает поток ответа на сообщение req от имени owner.
// Пустое сообщение отклоняется, текущий поток при этом не прерывается.
func (s *ChatService) Send(ctx context.Context, owner string, opener chat.Opener, req chat.Request) (*chat.Subscription, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.Validation(chat.MsgEmptyMessage)
	}

	sub := chat.New(opener, s.path, s.logger)

	s.mu.Lock()
	prev := s.active[owner]
	s.active[owner] = sub
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
		s.logger.Debug("Предыдущий поток чата закрыт", slog.String("owner", owner))
	}

	if err := sub.Start(ctx, req); err != nil {
		s.release(owner, sub)
		return nil, err
	}

	go func() {
		<-sub.Done()
		s.release(owner, sub)
	}()
	return sub, nil
}

// Stop закрывает поток владельца. Возвращает false, если потока нет.
func (s *ChatService) Stop(owner string) bool {
	s.mu.Lock()
	sub := s.active[owner]
	delete(s.active, owner)
	s.mu.Unlock()

	if sub == nil {
		return false
	}
	sub.Close()
	return true
}

// Active возвращает текущий поток владельца или nil.
func (s *ChatService) Active(owner string) *chat.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[owner]
}

// Close закрывает все потоки (остановка сервера).
func (s *ChatService) Close() {
	s.mu.Lock()
	subs := make([]*chat.Subscription, 0, len(s.active))
	for owner, sub := range s.active {
		subs = append(subs, sub)
		delete(s.active, owner)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// release убирает sub из активных, если его ещё не заменили.
func (s *ChatService) release(owner string, sub *chat.Subscription) {
	s.mu.Lock()
	if s.active[owner] == sub {
		delete(s.active, owner)
	}
	s.mu.Unlock()
}
