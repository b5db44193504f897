package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/trafficadmin/internal/apiclient"
	"github.com/bigkaa/trafficadmin/internal/apperr"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeOpener отдаёт заранее заданный поток.
type fakeOpener struct {
	body  io.ReadCloser
	err   error
	path  string
	query url.Values
}

func (f *fakeOpener) OpenStream(_ context.Context, path string, query url.Values) (io.ReadCloser, error) {
	f.path, f.query = path, query
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

// errReader отдаёт данные, затем ошибку.
type errReader struct {
	data string
	err  error
}

func (r *errReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *errReader) Close() error { return nil }

func TestReader_Next(t *testing.T) {
	stream := ": комментарий\n" +
		"data: first\n\n" +
		"event: ping\ndata: skip\n\n" +
		"id: 7\ndata: line1\ndata: line2\n\n" +
		"\n" +
		"data:nospace\r\n\r\n" +
		"data: incomplete"

	r := NewReader(strings.NewReader(stream))
	var got []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, ev)
	}

	want := []Event{
		{Data: "first"},
		{Event: "ping", Data: "skip"},
		{ID: "7", Data: "line1\nline2"},
		{Data: "nospace"},
	}
	if len(got) != len(want) {
		t.Fatalf("получено %d событий (%+v), ожидалось %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("событие %d = %+v, ожидалось %+v", i, got[i], want[i])
		}
	}
	if got[1].IsMessage() {
		t.Error("именованное событие не должно считаться message")
	}
}

func TestExtractChunk(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "вложенный content", data: `{"result":{"output":{"content":"Привет"}}}`, want: "Привет"},
		{name: "поле message", data: `{"message":"штраф"}`, want: "штраф"},
		{name: "content важнее message", data: `{"result":{"output":{"content":"a"}},"message":"b"}`, want: "a"},
		{name: "пустой content", data: `{"result":{"output":{"content":""}},"message":"b"}`, want: "b"},
		{name: "объект без известных полей", data: `{"x":1}`, want: `{"x":1}`},
		{name: "число", data: `42`, want: "42"},
		{name: "сырой текст", data: "просто текст", want: "просто текст"},
		{name: "content не строка", data: `{"result":{"output":{"content":5}}}`, want: `{"result":{"output":{"content":5}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractChunk(tt.data); got != tt.want {
				t.Errorf("ExtractChunk(%q) = %q, ожидалось %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestRequest_Query(t *testing.T) {
	q := Request{Message: "  как оплатить штраф? ", WebSearch: true}.Query()
	if q.Get("message") != "как оплатить штраф?" || q.Get("webSearch") != "true" {
		t.Errorf("query = %v", q)
	}
	if (Request{Message: "x"}).Query().Get("webSearch") != "false" {
		t.Error("webSearch по умолчанию false")
	}
}

func TestSubscription_Stream(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"result\":{\"output\":{\"content\":\"Добрый \"}}}\n\n" +
			"data: день\n\n"))
	op := &fakeOpener{body: body}
	sub := New(op, "", testLogger())

	if sub.State() != StateIdle {
		t.Fatalf("начальное состояние %s", sub.State())
	}
	if err := sub.Start(context.Background(), Request{Message: "привет"}); err != nil {
		t.Fatal(err)
	}
	if op.path != DefaultPath {
		t.Errorf("путь %s, ожидался %s", op.path, DefaultPath)
	}

	var updates []Update
	for u := range sub.Updates() {
		updates = append(updates, u)
	}
	if len(updates) != 3 {
		t.Fatalf("получено %d обновлений, ожидалось 3", len(updates))
	}
	if updates[0].Chunk != "Добрый " || updates[0].State != StateStreaming {
		t.Errorf("первое обновление %+v", updates[0])
	}
	if updates[1].Reply != "Добрый день" {
		t.Errorf("ответ собирается по порядку: %q", updates[1].Reply)
	}
	if updates[2].State != StateClosed {
		t.Errorf("последнее обновление несёт конечное состояние: %+v", updates[2])
	}

	reply, err := sub.Wait(context.Background())
	if err != nil || reply != "Добрый день" {
		t.Errorf("Wait = %q, %v", reply, err)
	}
	if sub.State() != StateClosed {
		t.Errorf("состояние %s, ожидалось closed", sub.State())
	}
}

func TestSubscription_WaitWithoutReadingUpdates(t *testing.T) {
	op := &fakeOpener{body: io.NopCloser(strings.NewReader("data: a\n\ndata: b\n\n"))}
	sub := New(op, "/chat", testLogger())
	if err := sub.Start(context.Background(), Request{Message: "x"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := sub.Wait(ctx)
	if err != nil || reply != "ab" {
		t.Errorf("Wait = %q, %v", reply, err)
	}
}

func TestSubscription_Errored(t *testing.T) {
	t.Run("обрыв потока", func(t *testing.T) {
		op := &fakeOpener{body: &errReader{data: "data: часть\n\n", err: errors.New("connection reset")}}
		sub := New(op, "", testLogger())
		if err := sub.Start(context.Background(), Request{Message: "x"}); err != nil {
			t.Fatal(err)
		}
		reply, err := sub.Wait(context.Background())
		if !apperr.Is(err, apperr.KindNetwork) {
			t.Errorf("ожидалась NetworkError, получено %v", err)
		}
		if reply != "часть" {
			t.Errorf("полученная часть ответа сохраняется: %q", reply)
		}
		if sub.State() != StateErrored {
			t.Errorf("состояние %s, ожидалось errored", sub.State())
		}
	})

	t.Run("ошибка открытия", func(t *testing.T) {
		op := &fakeOpener{err: apperr.Auth("")}
		sub := New(op, "", testLogger())
		err := sub.Start(context.Background(), Request{Message: "x"})
		if !apperr.Is(err, apperr.KindAuth) {
			t.Errorf("ожидалась AuthError, получено %v", err)
		}
		if sub.State() != StateErrored {
			t.Errorf("состояние %s, ожидалось errored", sub.State())
		}
		if _, ok := <-sub.Updates(); ok {
			t.Error("канал обновлений должен быть закрыт")
		}
	})

	t.Run("пустое сообщение", func(t *testing.T) {
		op := &fakeOpener{}
		sub := New(op, "", testLogger())
		err := sub.Start(context.Background(), Request{Message: "   "})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("ожидалась ValidationError, получено %v", err)
		}
		if op.path != "" {
			t.Error("поток не должен открываться")
		}
		if sub.State() != StateIdle {
			t.Errorf("состояние %s, ожидалось idle", sub.State())
		}
	})
}

func TestSubscription_Close(t *testing.T) {
	pr, pw := io.Pipe()
	op := &fakeOpener{body: pr}
	sub := New(op, "", testLogger())
	if err := sub.Start(context.Background(), Request{Message: "x"}); err != nil {
		t.Fatal(err)
	}

	go func() {
		_, _ = pw.Write([]byte("data: a\n\n"))
	}()
	if u := <-sub.Updates(); u.Chunk != "a" {
		t.Fatalf("первое обновление %+v", u)
	}

	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("подписка не завершилась после Close")
	}
	if sub.State() != StateClosed {
		t.Errorf("состояние %s, ожидалось closed", sub.State())
	}
	sub.Close()

	if err := sub.Start(context.Background(), Request{Message: "x"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("повторный запуск должен отклоняться, получено %v", err)
	}
}

func TestSubscription_CloseIdle(t *testing.T) {
	sub := New(&fakeOpener{}, "", testLogger())
	sub.Close()
	if sub.State() != StateClosed {
		t.Errorf("состояние %s, ожидалось closed", sub.State())
	}
	select {
	case <-sub.Done():
	default:
		t.Error("Done должен быть закрыт")
	}
}

func TestSubscription_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %s", r.Header.Get("Accept"))
		}
		if r.URL.Query().Get("message") != "привет" {
			t.Errorf("message = %s", r.URL.Query().Get("message"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		rc := http.NewResponseController(w)
		for _, part := range []string{"Здравствуйте", ", водитель"} {
			fmt.Fprintf(w, "data: {\"message\":%q}\n\n", part)
			_ = rc.Flush()
		}
	}))
	t.Cleanup(server.Close)

	client, err := apiclient.New(server.URL, 2*time.Second, "", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	sub := New(client, "/api/ai/chat", testLogger())
	if err := sub.Start(context.Background(), Request{Message: "привет"}); err != nil {
		t.Fatal(err)
	}
	reply, err := sub.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Здравствуйте, водитель" {
		t.Errorf("ответ %q", reply)
	}
}
