package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/trafficadmin/internal/apiclient"
	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/session"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockBackend создаёт mock HTTP-сервер backend.
func setupMockBackend(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newTestStore создаёт хранилище сессии в памяти без проверки подписи токенов.
func newTestStore(initial map[string]string) (*session.Store, *storage.Memory) {
	mem := storage.NewMemory(initial)
	decoder := session.NewDecoder(16, time.Minute, nil, testLogger())
	return session.NewStore(mem, decoder, testLogger()), mem
}

// newTestClient создаёт клиент backend, привязанный к store.
func newTestClient(t *testing.T, baseURL string, store *session.Store) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(baseURL, 2*time.Second, "", testLogger())
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return c.WithCredentials(store)
}

// testToken подписывает токен с ролями; подпись декодером не проверяется.
func testToken(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "tester",
		"roles": roles,
	}).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mockEntities — REST-ресурс в памяти: GET/POST на basePath,
// PUT/DELETE на basePath/{id}.
type mockEntities struct {
	basePath string
	idField  string

	mu       sync.Mutex
	rows     []model.Record
	nextID   int
	lists    int
	keys     []string
	payloads []model.Record
	fail     map[string]int
}

func newMockEntities(basePath, idField string, rows ...model.Record) *mockEntities {
	return &mockEntities{basePath: basePath, idField: idField, rows: rows, nextID: 100, fail: map[string]int{}}
}

func (m *mockEntities) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status, ok := m.fail[r.Method]; ok {
		writeJSON(w, status, map[string]string{"message": "ошибка backend"})
		return
	}
	if key := r.Header.Get(apiclient.HeaderIdempotencyKey); key != "" {
		m.keys = append(m.keys, key)
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, m.basePath), "/")
	switch {
	case r.Method == http.MethodGet && id == "":
		m.lists++
		writeJSON(w, http.StatusOK, m.rows)
	case r.Method == http.MethodPost && id == "":
		var rec model.Record
		_ = json.NewDecoder(r.Body).Decode(&rec)
		m.payloads = append(m.payloads, rec)
		m.nextID++
		rec[m.idField] = m.nextID
		m.rows = append(m.rows, rec)
		writeJSON(w, http.StatusCreated, rec)
	case r.Method == http.MethodPut && id != "":
		var rec model.Record
		_ = json.NewDecoder(r.Body).Decode(&rec)
		m.payloads = append(m.payloads, rec)
		for i, row := range m.rows {
			if row.String(m.idField) == id {
				rec[m.idField] = row[m.idField]
				m.rows[i] = rec
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "не найдено"})
	case r.Method == http.MethodDelete && id != "":
		for i, row := range m.rows {
			if row.String(m.idField) == id {
				m.rows = append(m.rows[:i], m.rows[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "не найдено"})
	default:
		http.NotFound(w, r)
	}
}

func (m *mockEntities) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

func (m *mockEntities) idempotencyKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

func (m *mockEntities) lastPayload() model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payloads) == 0 {
		return nil
	}
	return m.payloads[len(m.payloads)-1]
}

func (m *mockEntities) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
