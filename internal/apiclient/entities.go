package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
)

// envelopeKeys — поля, в которых backend может вернуть список записей
// вместо голого массива (постраничные ответы).
var envelopeKeys = []string{"content", "data", "records", "items"}

// List запрашивает список записей: GET {basePath}?params.
// Принимает голый массив или объект-обёртку с массивом.
func (c *Client) List(ctx context.Context, basePath string, params url.Values) ([]model.Record, error) {
	var raw any
	if err := c.Do(ctx, http.MethodGet, basePath, nil, &raw, WithQuery(params)); err != nil {
		return nil, err
	}
	records, err := recordsFrom(raw)
	if err != nil {
		return nil, fmt.Errorf("список %s: %w", basePath, err)
	}
	return records, nil
}

// Get запрашивает одну запись: GET {basePath}/{id}.
func (c *Client) Get(ctx context.Context, basePath, id string) (model.Record, error) {
	var rec model.Record
	if err := c.Do(ctx, http.MethodGet, itemPath(basePath, id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create создаёт запись: POST {basePath}. Возвращает запись из ответа
// (nil, если backend ответил пустым телом).
func (c *Client) Create(ctx context.Context, basePath string, payload model.Record) (model.Record, error) {
	var rec model.Record
	if err := c.Do(ctx, http.MethodPost, basePath, payload, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update обновляет запись: PUT {basePath}/{id}.
func (c *Client) Update(ctx context.Context, basePath, id string, payload model.Record) (model.Record, error) {
	var rec model.Record
	if err := c.Do(ctx, http.MethodPut, itemPath(basePath, id), payload, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete удаляет запись: DELETE {basePath}/{id}.
func (c *Client) Delete(ctx context.Context, basePath, id string) error {
	return c.Do(ctx, http.MethodDelete, itemPath(basePath, id), nil, nil)
}

// GetJSON выполняет GET и декодирует ответ произвольной формы.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, WithQuery(params))
}

func itemPath(basePath, id string) string {
	return basePath + "/" + url.PathEscape(id)
}

// recordsFrom приводит декодированный JSON к списку записей.
// Элементы, не являющиеся объектами, пропускаются.
func recordsFrom(raw any) ([]model.Record, error) {
	switch v := raw.(type) {
	case nil:
		return []model.Record{}, nil
	case []any:
		out := make([]model.Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, model.Record(m))
			}
		}
		return out, nil
	case map[string]any:
		for _, key := range envelopeKeys {
			if inner, ok := v[key]; ok {
				switch inner.(type) {
				case []any, map[string]any:
					return recordsFrom(inner)
				}
			}
		}
		return nil, fmt.Errorf("ответ не содержит списка записей")
	default:
		return nil, fmt.Errorf("неожиданный тип ответа %T", raw)
	}
}
