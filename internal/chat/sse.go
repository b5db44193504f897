// Пакет chat — потоковый чат с ассистентом поверх SSE.
// Файл sse.go — разбор потока text/event-stream и извлечение фрагментов ответа.
package chat

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Event — одно SSE-событие.
type Event struct {
	ID    string
	Event string
	Data  string
}

// IsMessage возвращает true для событий типа message (тип по умолчанию).
func (e Event) IsMessage() bool {
	return e.Event == "" || e.Event == "message"
}

// Reader читает события из потока text/event-stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader создаёт Reader поверх r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next возвращает следующее событие с непустыми данными.
// В конце потока возвращает io.EOF; незавершённое последнее событие
// отбрасывается, как это делает браузерный EventSource.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)
	for {
		line, err := r.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		if errors.Is(err, io.EOF) && line == "" {
			return Event{}, io.EOF
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			if hasData {
				ev.Data = data.String()
				return ev, nil
			}
			// Пустое событие не доставляется
			ev = Event{}
			continue
		}
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}

		field, value := splitField(line)
		switch field {
		case "":
			// комментарий
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			ev.Event = value
		case "id":
			ev.ID = value
		}
	}
}

// splitField разбирает строку "поле: значение". Один пробел после
// двоеточия отбрасывается. Для комментариев возвращает пустое поле.
func splitField(line string) (field, value string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	value = line[i+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:i], value
}

// ExtractChunk достаёт фрагмент ответа из данных события:
// result.output.content, затем message, иначе данные как есть.
func ExtractChunk(data string) string {
	var envelope any
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return data
	}
	obj, ok := envelope.(map[string]any)
	if !ok {
		return data
	}
	if s := nestedString(obj, "result", "output", "content"); s != "" {
		return s
	}
	if s := nestedString(obj, "message"); s != "" {
		return s
	}
	return data
}

// nestedString возвращает непустую строку по пути ключей или "".
func nestedString(obj map[string]any, path ...string) string {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}
