// ABOUTME: Row access through the rest endpoint and stored procedure calls
// ABOUTME: Encodes backend.Query filters, ordering, ranges and counts as query parameters

package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/safespace/safespace-admin/internal/backend"
)

const singleObject = "application/vnd.pgrst.object+json"

// Select returns the rows matching q. A Single query that matches no rows
// fails with a backend.CodeNoRows error.
func (c *Client) Select(ctx context.Context, table string, q backend.Query) ([]json.RawMessage, error) {
	params := encodeQuery(q)
	cols := q.Columns
	if cols == "" {
		cols = "*"
	}
	params.Set("select", cols)

	headers := http.Header{}
	if q.Single {
		headers.Set("Accept", singleObject)
	}

	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/rest/v1/" + url.PathEscape(table),
		query:   params,
		headers: headers,
	})
	if err != nil {
		return nil, err
	}

	if q.Single {
		return []json.RawMessage{json.RawMessage(resp.body)}, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding rows: %v", backend.ErrUnavailable, err)
	}
	return rows, nil
}

// Count returns the number of rows matching q's filters.
func (c *Client) Count(ctx context.Context, table string, q backend.Query) (int, error) {
	q.Range = nil
	q.Order = nil
	params := encodeQuery(q)
	params.Set("select", "*")

	resp, err := c.do(ctx, request{
		method:  http.MethodHead,
		path:    "/rest/v1/" + url.PathEscape(table),
		query:   params,
		headers: http.Header{"Prefer": {"count=exact"}},
	})
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.header.Get("Content-Range"))
}

// Insert stores row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/" + url.PathEscape(table),
		body:    row,
		headers: http.Header{"Prefer": {"return=representation"}},
	})
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding inserted row: %v", backend.ErrUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, &backend.Error{Status: resp.status, Code: backend.CodeNoRows, Message: "insert returned no rows"}
	}
	return rows[0], nil
}

// Update applies patch to every row matching filters and returns them.
func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, patch any) ([]json.RawMessage, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("refusing to update %s without filters", table)
	}
	resp, err := c.do(ctx, request{
		method:  http.MethodPatch,
		path:    "/rest/v1/" + url.PathEscape(table),
		query:   encodeQuery(backend.Query{Filters: filters}),
		body:    patch,
		headers: http.Header{"Prefer": {"return=representation"}},
	})
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding updated rows: %v", backend.ErrUnavailable, err)
	}
	return rows, nil
}

// Delete removes every row matching filters.
func (c *Client) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("refusing to delete from %s without filters", table)
	}
	_, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/rest/v1/" + url.PathEscape(table),
		query:  encodeQuery(backend.Query{Filters: filters}),
	})
	return err
}

// Call invokes a stored procedure and returns its raw result.
func (c *Client) Call(ctx context.Context, name string, args any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + url.PathEscape(name),
		body:   args,
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.body), nil
}

func encodeQuery(q backend.Query) url.Values {
	params := url.Values{}
	for _, f := range q.Filters {
		params.Add(f.Column, encodeFilter(f))
	}
	if len(q.Any) > 0 {
		parts := make([]string, 0, len(q.Any))
		for _, f := range q.Any {
			parts = append(parts, f.Column+"."+encodeOrValue(f))
		}
		params.Set("or", "("+strings.Join(parts, ",")+")")
	}
	if q.Order != nil {
		dir := "desc"
		if q.Order.Ascending {
			dir = "asc"
		}
		params.Set("order", q.Order.Column+"."+dir)
	}
	if q.Range != nil {
		params.Set("offset", strconv.Itoa(q.Range.From))
		params.Set("limit", strconv.Itoa(q.Range.To-q.Range.From+1))
	}
	return params
}

func encodeFilter(f backend.Filter) string {
	if f.Value == nil {
		if f.Op == backend.OpNeq {
			return "not.is.null"
		}
		return "is.null"
	}
	return string(f.Op) + "." + formatValue(f.Value)
}

// encodeOrValue quotes values containing characters reserved by the or=()
// grammar.
func encodeOrValue(f backend.Filter) string {
	if f.Value == nil {
		return encodeFilter(f)
	}
	v := formatValue(f.Value)
	if strings.ContainsAny(v, ",.:()\" \\") {
		v = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
	}
	return string(f.Op) + "." + v
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// parseContentRange reads the total from "0-24/100" or "*/0".
func parseContentRange(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return 0, fmt.Errorf("%w: missing count in Content-Range %q", backend.ErrUnavailable, h)
	}
	total := h[i+1:]
	if total == "*" {
		return 0, errors.New("backend did not return an exact count")
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("%w: bad Content-Range %q", backend.ErrUnavailable, h)
	}
	return n, nil
}
