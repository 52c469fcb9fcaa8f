// ABOUTME: Entertainment content service: CRUD on the entertainments table
// ABOUTME: Validates and normalizes content before it reaches the backend

package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// Content types with their own counters in Stats.
const (
	TypeVideo = "Video"
	TypeAudio = "Audio"
)

var (
	// ErrInvalidContent is returned when content fails validation.
	ErrInvalidContent = errors.New("invalid content")

	// ErrNotFound is returned when no content has the requested id.
	ErrNotFound = errors.New("entertainment not found")
)

// Service manages entertainment content.
type Service struct {
	rows    backend.Rows
	objects backend.Objects
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Service.
func New(rows backend.Rows, objects backend.Objects, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rows:    rows,
		objects: objects,
		logger:  logger.With("component", "catalog"),
		now:     time.Now,
	}
}

// List returns all content, newest first.
func (s *Service) List(ctx context.Context) ([]schema.Entertainment, error) {
	rows, err := s.rows.Select(ctx, backend.TableEntertainment, backend.Query{
		Order: &backend.Order{Column: "created_at", Ascending: false},
	})
	if err != nil {
		return nil, fmt.Errorf("listing entertainment: %w", err)
	}
	return schema.DecodeAll[schema.Entertainment](rows)
}

// Get returns the content with id.
func (s *Service) Get(ctx context.Context, id int64) (*schema.Entertainment, error) {
	rows, err := s.rows.Select(ctx, backend.TableEntertainment, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Single:  true,
	})
	if backend.IsNoRows(err) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entertainment: %w", err)
	}
	return schema.One[schema.Entertainment](rows)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func validStatus(status string) bool {
	return status == schema.ContentActive || status == schema.ContentInactive
}

// Create validates and stores new content. Status defaults to active.
func (s *Service) Create(ctx context.Context, in schema.EntertainmentInsert) (*schema.Entertainment, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Type = strings.TrimSpace(in.Type)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = trimmedOrNil(in.Description)
	in.CoverImgURL = trimmedOrNil(in.CoverImgURL)
	in.MediaFileURL = trimmedOrNil(in.MediaFileURL)

	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidContent)
	case in.Type == "":
		return nil, fmt.Errorf("%w: type is required", ErrInvalidContent)
	case in.Category == "":
		return nil, fmt.Errorf("%w: category is required", ErrInvalidContent)
	}
	if in.Status == "" {
		in.Status = schema.ContentActive
	}
	if !validStatus(in.Status) {
		return nil, fmt.Errorf("%w: status must be active or inactive", ErrInvalidContent)
	}
	if in.MoodStates == nil {
		in.MoodStates = []string{}
	}

	raw, err := s.rows.Insert(ctx, backend.TableEntertainment, in)
	if err != nil {
		return nil, fmt.Errorf("creating entertainment: %w", err)
	}
	item, err := schema.Decode[schema.Entertainment](raw)
	if err != nil {
		return nil, err
	}
	s.logger.Info("entertainment created", "id", item.ID, "title", item.Title)
	return item, nil
}

// Update applies patch to the content with id.
func (s *Service) Update(ctx context.Context, id int64, patch schema.EntertainmentPatch) (*schema.Entertainment, error) {
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidContent)
		}
		patch.Title = &t
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
	}
	if patch.Status != nil && !validStatus(*patch.Status) {
		return nil, fmt.Errorf("%w: status must be active or inactive", ErrInvalidContent)
	}

	rows, err := s.rows.Update(ctx, backend.TableEntertainment, []backend.Filter{backend.Eq("id", id)}, patch)
	if err != nil {
		return nil, fmt.Errorf("updating entertainment: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return schema.One[schema.Entertainment](rows)
}

// ToggleStatus flips content between active and inactive.
func (s *Service) ToggleStatus(ctx context.Context, id int64) (*schema.Entertainment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := schema.ContentActive
	if current.Status == schema.ContentActive {
		next = schema.ContentInactive
	}
	return s.Update(ctx, id, schema.EntertainmentPatch{Status: &next})
}

// Delete removes the content's files, then its row.
func (s *Service) Delete(ctx context.Context, id int64) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, u := range []*string{item.MediaFileURL, item.CoverImgURL} {
		if u == nil || *u == "" {
			continue
		}
		if folder, name, ok := objectPathFromURL(*u); ok {
			s.DeleteFile(ctx, folder, name)
		}
	}

	if err := s.rows.Delete(ctx, backend.TableEntertainment, []backend.Filter{backend.Eq("id", id)}); err != nil {
		return fmt.Errorf("deleting entertainment: %w", err)
	}
	s.logger.Info("entertainment deleted", "id", id)
	return nil
}

// DescriptionHTML renders the markdown description of item.
func DescriptionHTML(item *schema.Entertainment) (string, error) {
	if item.Description == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(*item.Description), &buf); err != nil {
		return "", fmt.Errorf("rendering description: %w", err)
	}
	return buf.String(), nil
}
