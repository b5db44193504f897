// Пакет model — доменные модели консоли.
// Записи backend не имеют фиксированной схемы: форма определяется ответом,
// консоль опирается только на объявленные поля сущности.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record — запись backend: имя поля → значение из JSON.
// Числа декодируются как json.Number, чтобы длинные идентификаторы
// не теряли точность.
type Record map[string]any

// Has проверяет наличие непустого значения поля.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil && Stringify(v) != ""
}

// String возвращает строковое представление поля или пустую строку.
func (r Record) String(field string) string {
	return Stringify(r[field])
}

// Clone возвращает поверхностную копию записи.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Stringify приводит значение из JSON к строке без экспоненциальной записи.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
