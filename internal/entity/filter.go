package entity

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
)

// Filter отбирает записи, у которых хотя бы одно объявленное поле содержит
// term без учёта регистра. Пустой или пробельный term возвращает все записи.
// Поля вне схемы в поиске не участвуют.
func Filter(rows []model.Record, fields []FieldSpec, term string) []model.Record {
	fold := cases.Fold()
	query := fold.String(strings.TrimSpace(term))
	if query == "" {
		return rows
	}

	out := make([]model.Record, 0, len(rows))
	for _, rec := range rows {
		for _, f := range fields {
			if strings.Contains(fold.String(searchText(f, rec[f.Name])), query) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// searchText — текст значения для поиска. Для datetime ищется и по
// отображаемой форме, чтобы "2024-05-01 10:" находил запись.
func searchText(f FieldSpec, v any) string {
	raw := model.Stringify(v)
	if f.Type == TypeDateTime {
		if shown := FormatDateTime(v); shown != raw {
			return raw + " " + shown
		}
	}
	return raw
}
