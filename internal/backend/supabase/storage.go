// ABOUTME: Bucket object storage through the storage endpoint
// ABOUTME: Upload, list, remove and public URL construction

package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/safespace/safespace-admin/internal/backend"
)

// Upload stores body at path inside bucket and returns the stored path.
func (c *Client) Upload(ctx context.Context, bucket, path string, body io.Reader, opts backend.UploadOptions) (string, error) {
	headers := http.Header{}
	ct := opts.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	headers.Set("Content-Type", ct)
	if opts.CacheControl != "" {
		headers.Set("Cache-Control", "max-age="+opts.CacheControl)
	}
	headers.Set("x-upsert", strconv.FormatBool(opts.Upsert))

	resp, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/storage/v1/object/" + objectPath(bucket, path),
		raw:     body,
		headers: headers,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Key string `json:"Key"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.Key == "" {
		return path, nil
	}
	return strings.TrimPrefix(out.Key, bucket+"/"), nil
}

type listEntry struct {
	Name      string  `json:"name"`
	ID        *string `json:"id"`
	UpdatedAt string  `json:"updated_at"`
	Metadata  *struct {
		Size     int64  `json:"size"`
		MimeType string `json:"mimetype"`
	} `json:"metadata"`
}

// List returns the objects directly under prefix. Folder placeholders are
// skipped.
func (c *Client) List(ctx context.Context, bucket, prefix string, opts backend.ListOptions) ([]backend.ObjectInfo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	body := map[string]any{
		"prefix": prefix,
		"limit":  limit,
		"offset": 0,
		"sortBy": map[string]string{"column": "name", "order": "asc"},
	}
	if opts.Search != "" {
		body["search"] = opts.Search
	}

	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/list/" + url.PathEscape(bucket),
		body:   body,
	})
	if err != nil {
		return nil, err
	}

	var entries []listEntry
	if err := json.Unmarshal(resp.body, &entries); err != nil {
		return nil, fmt.Errorf("%w: decoding object list: %v", backend.ErrUnavailable, err)
	}

	out := make([]backend.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.ID == nil {
			continue
		}
		info := backend.ObjectInfo{Name: e.Name}
		if e.Metadata != nil {
			info.Size = e.Metadata.Size
			info.ContentType = e.Metadata.MimeType
		}
		if t, err := time.Parse(time.RFC3339Nano, e.UpdatedAt); err == nil {
			info.UpdatedAt = t
		}
		out = append(out, info)
	}
	return out, nil
}

// Remove deletes the objects at paths.
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + url.PathEscape(bucket),
		body:   map[string][]string{"prefixes": paths},
	})
	return err
}

// PublicURL returns the public download URL of an object.
func (c *Client) PublicURL(bucket, path string) string {
	return c.base.String() + "/storage/v1/object/public/" + objectPath(bucket, path)
}

func objectPath(bucket, path string) string {
	segs := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return url.PathEscape(bucket) + "/" + strings.Join(segs, "/")
}
