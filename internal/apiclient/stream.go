package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// OpenStream открывает SSE-поток: GET {path}?query с Accept: text/event-stream.
// Общий таймаут запроса к потоку не применяется: отмена — через ctx.
// Вызывающий обязан закрыть возвращённый поток.
func (c *Client) OpenStream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	resp, err := c.send(ctx, c.streamClient, http.MethodGet, path, nil,
		WithQuery(query), withAccept("text/event-stream"),
	)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func withAccept(accept string) RequestOption {
	return func(o *requestOptions) { o.accept = accept }
}
