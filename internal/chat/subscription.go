package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/trafficadmin/internal/apperr"
)

// DefaultPath — путь SSE-чата на backend.
const DefaultPath = "/api/ai/chat"

// State — состояние подписки.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateClosed    State = "closed"
	StateErrored   State = "errored"
)

// Terminal возвращает true для конечных состояний.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// MsgEmptyMessage — ключ сообщения о пустом вводе.
const MsgEmptyMessage = "validation.message_empty"

// ErrAlreadyStarted — повторный запуск подписки.
var ErrAlreadyStarted = errors.New("подписка уже запущена")

// activeStreams — открытые потоки чата.
var activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ta_chat_streams_active",
	Help: "Открытые потоки чата с ассистентом",
})

// Opener открывает поток событий на backend.
type Opener interface {
	OpenStream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error)
}

// Request — сообщение пользователя.
type Request struct {
	Message   string `json:"message"`
	WebSearch bool   `json:"webSearch"`
}

// Query возвращает query-параметры запроса потока.
func (r Request) Query() url.Values {
	q := url.Values{}
	q.Set("message", strings.TrimSpace(r.Message))
	q.Set("webSearch", strconv.FormatBool(r.WebSearch))
	return q
}

// Update — изменение подписки: новый фрагмент или смена состояния.
type Update struct {
	Chunk string `json:"chunk,omitempty"`
	Reply string `json:"reply"`
	State State  `json:"state"`
	Err   error  `json:"-"`
}

// Subscription — один поток ответа ассистента.
// Переходы: idle → streaming → closed | errored. Закрытие из любого
// состояния, кроме конечного, переводит подписку в closed.
type Subscription struct {
	opener Opener
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	reply  strings.Builder
	err    error
	cancel context.CancelFunc

	updates chan Update
	done    chan struct{}
}

// New создаёт подписку в состоянии idle.
func New(opener Opener, path string, logger *slog.Logger) *Subscription {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{
		opener:  opener,
		path:    path,
		logger:  logger.With(slog.String("component", "chat")),
		state:   StateIdle,
		updates: make(chan Update),
		done:    make(chan struct{}),
	}
}

// Start открывает поток и начинает чтение в отдельной горутине.
// Ошибка открытия возвращается сразу, подписка переходит в errored.
// Пустое сообщение отклоняется до обращения к backend.
func (s *Subscription) Start(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Message) == "" {
		return apperr.Validation(MsgEmptyMessage)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.mu.Unlock()

	body, err := s.opener.OpenStream(ctx, s.path, req.Query())
	if err != nil {
		cancel()
		s.mu.Lock()
		if s.state == StateStreaming {
			s.state = StateErrored
			s.err = err
		}
		s.mu.Unlock()
		close(s.updates)
		close(s.done)
		return fmt.Errorf("открытие потока чата: %w", err)
	}

	activeStreams.Inc()
	// Отмена закрывает тело: чтение не зависит от того, следит ли транспорт за ctx
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	go s.run(ctx, body, stop)
	return nil
}

// run читает события до конца потока, ошибки или отмены.
func (s *Subscription) run(ctx context.Context, body io.ReadCloser, stop func() bool) {
	defer func() {
		stop()
		_ = body.Close()
		activeStreams.Dec()
		close(s.updates)
		close(s.done)
	}()

	reader := NewReader(body)
	for {
		ev, err := reader.Next()
		if err != nil {
			s.finish(ctx, err)
			return
		}
		if !ev.IsMessage() {
			continue
		}

		chunk := ExtractChunk(ev.Data)
		s.mu.Lock()
		s.reply.WriteString(chunk)
		u := Update{Chunk: chunk, Reply: s.reply.String(), State: s.state}
		s.mu.Unlock()

		select {
		case s.updates <- u:
		case <-ctx.Done():
			s.finish(ctx, ctx.Err())
			return
		}
	}
}

// finish фиксирует конечное состояние и отправляет последнее обновление.
// Конец потока и отмена дают closed, остальные ошибки — errored.
func (s *Subscription) finish(ctx context.Context, err error) {
	s.mu.Lock()
	if !s.state.Terminal() {
		switch {
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			s.state = StateClosed
		default:
			s.state = StateErrored
			s.err = apperr.Network(err)
			s.logger.Warn("Поток чата прерван", slog.String("error", err.Error()))
		}
	}
	u := Update{Reply: s.reply.String(), State: s.state, Err: s.err}
	s.mu.Unlock()

	if ctx.Err() != nil {
		// Получатель мог уйти, последнее обновление не ждёт его
		select {
		case s.updates <- u:
		default:
		}
		return
	}
	s.updates <- u
}

// Updates возвращает канал обновлений. Канал закрывается после
// перехода в конечное состояние; последнее обновление несёт это состояние.
// Получатель должен вычитывать канал до закрытия или вызвать Close.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Done закрывается по завершении подписки.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close прерывает поток. Повторный вызов безопасен.
func (s *Subscription) Close() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateClosed
		s.mu.Unlock()
		close(s.updates)
		close(s.done)
		return
	case StateStreaming:
		s.state = StateClosed
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait вычитывает оставшиеся обновления, ждёт завершения и возвращает
// собранный ответ. Для errored возвращается ошибка потока.
func (s *Subscription) Wait(ctx context.Context) (string, error) {
	for drained := false; !drained; {
		select {
		case _, ok := <-s.updates:
			drained = !ok
		case <-ctx.Done():
			return s.Reply(), ctx.Err()
		}
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply.String(), s.err
}

// State возвращает текущее состояние.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reply возвращает собранный на текущий момент ответ.
func (s *Subscription) Reply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply.String()
}

// Err возвращает ошибку подписки в состоянии errored.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
