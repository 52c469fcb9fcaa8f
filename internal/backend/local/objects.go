// ABOUTME: Directory-backed bucket storage for the embedded backend
// ABOUTME: Object paths are confined to their bucket directory

package local

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/safespace/safespace-admin/internal/backend"
)

// objectFile resolves bucket/name to a file under the storage root.
func (s *Store) objectFile(bucket, name string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", &backend.Error{Status: http.StatusBadRequest, Code: "InvalidBucketName", Message: fmt.Sprintf("invalid bucket %q", bucket)}
	}
	root := filepath.Join(s.storageDir, bucket)
	clean := path.Clean("/" + name)
	full := filepath.Join(root, filepath.FromSlash(clean))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", &backend.Error{Status: http.StatusBadRequest, Code: "InvalidKey", Message: fmt.Sprintf("invalid object path %q", name)}
	}
	return full, nil
}

// Upload stores body at name inside bucket and returns the stored path.
func (s *Store) Upload(ctx context.Context, bucket, name string, body io.Reader, opts backend.UploadOptions) (string, error) {
	full, err := s.objectFile(bucket, name)
	if err != nil {
		return "", err
	}
	if !opts.Upsert {
		if _, err := os.Stat(full); err == nil {
			return "", &backend.Error{Status: http.StatusConflict, Code: backend.CodeDuplicateObject, Message: "The resource already exists"}
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("storing object: %w", err)
	}

	stored := strings.TrimPrefix(path.Clean("/"+name), "/")
	s.logger.Debug("stored object", "bucket", bucket, "path", stored)
	return stored, nil
}

// List returns the files directly under prefix, sorted by name.
func (s *Store) List(ctx context.Context, bucket, prefix string, opts backend.ListOptions) ([]backend.ObjectInfo, error) {
	dir, err := s.objectFile(bucket, prefix)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []backend.ObjectInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}

	search := strings.ToLower(opts.Search)
	out := []backend.ObjectInfo{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Name()), search) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, backend.ObjectInfo{
			Name:        e.Name(),
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(e.Name())),
			UpdatedAt:   info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Remove deletes the objects at paths. Missing objects are skipped.
func (s *Store) Remove(ctx context.Context, bucket string, paths []string) error {
	for _, p := range paths {
		full, err := s.objectFile(bucket, p)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing object: %w", err)
		}
	}
	return nil
}

// PublicURL returns the object's URL under the configured public base, or a
// file:// URL when none is set.
func (s *Store) PublicURL(bucket, name string) string {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if s.publicBase != "" {
		return s.publicBase + "/" + url.PathEscape(bucket) + "/" + escapeSegments(clean)
	}
	full := filepath.Join(s.storageDir, bucket, filepath.FromSlash(clean))
	if abs, err := filepath.Abs(full); err == nil {
		full = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String()
}

func escapeSegments(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
