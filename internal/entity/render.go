package entity

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
)

// MaxColumns — сколько первых полей схемы выводится в таблице.
const MaxColumns = 8

// DateTimeLayout — формат вывода полей datetime.
const DateTimeLayout = "2006-01-02 15:04"

// CellKind — способ отображения ячейки.
type CellKind string

const (
	CellText     CellKind = "text"
	CellDateTime CellKind = "datetime"
	CellStatus   CellKind = "status"
)

// Tone — классификация статуса.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
	ToneNeutral Tone = "neutral"
)

// Column — столбец таблицы.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Cell — отображаемое значение поля.
type Cell struct {
	Field string   `json:"field"`
	Text  string   `json:"text"`
	Kind  CellKind `json:"kind"`
	Tone  Tone     `json:"tone,omitempty"`
}

// Row — строка таблицы.
type Row struct {
	ID    string `json:"id"`
	Cells []Cell `json:"cells"`
}

// Table — таблица записей сущности.
type Table struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Columns возвращает первые MaxColumns полей схемы.
func Columns(cfg *Config) []FieldSpec {
	if len(cfg.Fields) <= MaxColumns {
		return cfg.Fields
	}
	return cfg.Fields[:MaxColumns]
}

// RenderTable строит таблицу. Поля вне схемы не выводятся,
// отсутствующие значения дают пустую ячейку.
func RenderTable(cfg *Config, rows []model.Record) Table {
	fields := Columns(cfg)
	t := Table{
		Columns: make([]Column, len(fields)),
		Rows:    make([]Row, 0, len(rows)),
	}
	for i, f := range fields {
		t.Columns[i] = Column{Key: f.Name, Label: f.Label}
	}
	for _, rec := range rows {
		row := Row{ID: cfg.RecordID(rec), Cells: make([]Cell, len(fields))}
		for i, f := range fields {
			row.Cells[i] = RenderCell(f, rec[f.Name])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// RenderCell отображает значение поля: datetime в формате YYYY-MM-DD HH:mm,
// поля со словом status в имени — как статус с тоном, остальные — как есть.
func RenderCell(f FieldSpec, v any) Cell {
	if f.Type == TypeDateTime {
		return Cell{Field: f.Name, Text: FormatDateTime(v), Kind: CellDateTime}
	}
	text := model.Stringify(v)
	if strings.Contains(strings.ToLower(f.Name), "status") {
		return Cell{Field: f.Name, Text: text, Kind: CellStatus, Tone: StatusTone(text)}
	}
	return Cell{Field: f.Name, Text: text, Kind: CellText}
}

// Ключевые слова тонов. Опасные проверяются первыми:
// "unpaid" содержит "paid", "inactive" содержит "active".
var (
	dangerKeywords  = []string{"fail", "reject", "unpaid", "overdue", "inactive", "cancel", "error", "失败", "驳回", "未支付", "未缴", "逾期"}
	warningKeywords = []string{"pending", "processing", "review", "waiting", "待", "处理中", "审核"}
	successKeywords = []string{"approved", "paid", "success", "completed", "active", "done", "通过", "已支付", "已缴", "成功", "完成"}
)

// StatusTone классифицирует значение статуса по подстрокам без учёта регистра.
func StatusTone(value string) Tone {
	v := cases.Fold().String(value)
	if v == "" {
		return ToneNeutral
	}
	for _, group := range []struct {
		tone     Tone
		keywords []string
	}{
		{ToneDanger, dangerKeywords},
		{ToneWarning, warningKeywords},
		{ToneSuccess, successKeywords},
	} {
		for _, kw := range group.keywords {
			if strings.Contains(v, kw) {
				return group.tone
			}
		}
	}
	return ToneNeutral
}

// dateTimeLayouts — принимаемые форматы дат backend.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime разбирает дату из ответа backend: строку ISO-8601,
// epoch в миллисекундах или массив [год, месяц, день, час, минута, ...].
func ParseDateTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 10 {
			return time.UnixMilli(ms).UTC(), true
		}
	case json.Number:
		if ms, err := val.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(val)).UTC(), true
	case int64:
		return time.UnixMilli(val).UTC(), true
	case []any:
		return dateFromParts(val)
	}
	return time.Time{}, false
}

// dateFromParts разбирает дату в виде массива чисел (LocalDateTime в Jackson).
func dateFromParts(parts []any) (time.Time, bool) {
	if len(parts) < 3 {
		return time.Time{}, false
	}
	nums := make([]int, 6)
	for i := 0; i < len(parts) && i < 6; i++ {
		n, err := strconv.Atoi(model.Stringify(parts[i]))
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}
	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC), true
}

// FormatDateTime форматирует дату как YYYY-MM-DD HH:mm.
// Нераспознанное значение выводится как есть, пустое — пустой строкой.
func FormatDateTime(v any) string {
	if v == nil {
		return ""
	}
	if t, ok := ParseDateTime(v); ok {
		return t.Format(DateTimeLayout)
	}
	return model.Stringify(v)
}

// Humanize строит подпись из имени поля: offenseId → Offense Id,
// process_status → Process Status. Аббревиатуры сохраняются: userID → User ID.
func Humanize(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	// Caser хранит состояние и не разделяется между горутинами
	return cases.Title(language.English, cases.NoLower).String(strings.Join(strings.Fields(b.String()), " "))
}
