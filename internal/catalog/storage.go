// ABOUTME: Media and cover files for entertainment content in object storage
// ABOUTME: Upload, best-effort delete, storage usage and content statistics

package catalog

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// Storage layout.
const (
	Bucket       = "entertainment_media"
	FolderMedia  = "media"
	FolderCovers = "covers"

	// TotalStorageGB is the storage quota shown next to usage.
	TotalStorageGB = 24.0

	cacheSeconds = "3600"
)

const bytesPerGB = 1024 * 1024 * 1024

// Stats summarises the catalog.
type Stats struct {
	TotalContent   int
	TotalVideos    int
	TotalAudio     int
	ActiveCount    int
	InactiveCount  int
	StorageUsedGB  float64
	TotalStorageGB float64
	LastUpdated    time.Time
}

func validFolder(folder string) bool {
	return folder == FolderMedia || folder == FolderCovers
}

// UploadFile stores body as folder/name, replacing any existing file, and
// returns its public URL.
func (s *Service) UploadFile(ctx context.Context, folder, name string, body io.Reader, contentType string) (string, error) {
	if !validFolder(folder) {
		return "", fmt.Errorf("%w: folder must be %s or %s", ErrInvalidContent, FolderMedia, FolderCovers)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid file name %q", ErrInvalidContent, name)
	}

	stored, err := s.objects.Upload(ctx, Bucket, folder+"/"+name, body, backend.UploadOptions{
		ContentType:  contentType,
		CacheControl: cacheSeconds,
		Upsert:       true,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", folder, name, err)
	}
	if stored == "" {
		return "", fmt.Errorf("uploading %s/%s: no path returned", folder, name)
	}
	publicURL := s.objects.PublicURL(Bucket, stored)
	s.logger.Info("file uploaded", "path", stored, "url", publicURL)
	return publicURL, nil
}

// DeleteFile removes folder/name. Failures are logged, never returned, so
// row deletes can proceed.
func (s *Service) DeleteFile(ctx context.Context, folder, name string) {
	err := s.objects.Remove(ctx, Bucket, []string{folder + "/" + name})
	switch {
	case err == nil:
		s.logger.Debug("file deleted", "folder", folder, "name", name)
	case backend.IsNotFound(err):
		s.logger.Debug("file already gone", "folder", folder, "name", name)
	default:
		s.logger.Warn("deleting file failed, continuing", "folder", folder, "name", name, "error", err)
	}
}

// objectPathFromURL extracts the folder and file name from a public URL of
// an object in Bucket.
func objectPathFromURL(raw string) (folder, name string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	p := u.EscapedPath()
	marker := "/" + Bucket + "/"
	i := strings.LastIndex(p, marker)
	if i < 0 {
		return "", "", false
	}
	rest, err := url.PathUnescape(p[i+len(marker):])
	if err != nil {
		return "", "", false
	}
	folder, name, found := strings.Cut(rest, "/")
	if !found || !validFolder(folder) || name == "" {
		return "", "", false
	}
	return folder, name, true
}

// StorageUsedGB sums the sizes of the media and cover folders, in GB rounded
// to two decimals.
func (s *Service) StorageUsedGB(ctx context.Context) (float64, error) {
	folders := []string{FolderMedia, FolderCovers}
	sizes := make([]int64, len(folders))

	g, gctx := errgroup.WithContext(ctx)
	for i, folder := range folders {
		g.Go(func() error {
			objs, err := s.objects.List(gctx, Bucket, folder, backend.ListOptions{})
			if err != nil {
				return fmt.Errorf("listing %s: %w", folder, err)
			}
			for _, o := range objs {
				sizes[i] += o.Size
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range sizes {
		total += n
	}
	return math.Round(float64(total)/bytesPerGB*100) / 100, nil
}

type statRow struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats counts content by type and status and reports storage usage. A
// storage listing failure reports zero usage.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.rows.Select(ctx, backend.TableEntertainment, backend.Query{Columns: "type,status,updated_at"})
	if err != nil {
		return nil, fmt.Errorf("fetching stats: %w", err)
	}
	items, err := schema.DecodeAll[statRow](rows)
	if err != nil {
		return nil, err
	}

	st := &Stats{TotalContent: len(items), TotalStorageGB: TotalStorageGB}
	for _, it := range items {
		switch it.Type {
		case TypeVideo:
			st.TotalVideos++
		case TypeAudio:
			st.TotalAudio++
		}
		switch it.Status {
		case schema.ContentActive:
			st.ActiveCount++
		case schema.ContentInactive:
			st.InactiveCount++
		}
		if it.UpdatedAt.After(st.LastUpdated) {
			st.LastUpdated = it.UpdatedAt
		}
	}
	if len(items) == 0 {
		st.LastUpdated = s.now().UTC()
	}

	used, err := s.StorageUsedGB(ctx)
	if err != nil {
		s.logger.Warn("calculating storage usage failed", "error", err)
	}
	st.StorageUsedGB = used
	return st, nil
}
