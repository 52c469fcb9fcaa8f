// ABOUTME: Tests for the entertainment catalog service
// ABOUTME: Covers create validation and defaults, file lifecycle, storage usage and stats

package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/backend/backendtest"
	"github.com/safespace/safespace-admin/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T) (*Service, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	return New(fake, fake, nil), fake
}

func TestCreate_ValidationAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, schema.EntertainmentInsert{Title: "  ", Type: "Video", Category: "Calm"})
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = svc.Create(ctx, schema.EntertainmentInsert{Title: "Rain", Category: "Calm"})
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = svc.Create(ctx, schema.EntertainmentInsert{Title: "Rain", Type: "Audio"})
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = svc.Create(ctx, schema.EntertainmentInsert{Title: "Rain", Type: "Audio", Category: "Calm", Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidContent)

	item, err := svc.Create(ctx, schema.EntertainmentInsert{
		Title:       "  Rain Sounds ",
		Type:        "Audio",
		Category:    "Calm",
		Description: strPtr("  Gentle rain  "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Rain Sounds", item.Title)
	assert.Equal(t, schema.ContentActive, item.Status)
	assert.NotNil(t, item.MoodStates)
	assert.Empty(t, item.MoodStates)
	require.NotNil(t, item.Description)
	assert.Equal(t, "Gentle rain", *item.Description)
	assert.NotZero(t, item.ID)
}

func TestUpdateAndToggle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item, err := svc.Create(ctx, schema.EntertainmentInsert{Title: "Walk", Type: "Video", Category: "Energy"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, item.ID, schema.EntertainmentPatch{Title: strPtr(" ")})
	assert.ErrorIs(t, err, ErrInvalidContent)

	moods := []string{"anxious", "sad"}
	updated, err := svc.Update(ctx, item.ID, schema.EntertainmentPatch{Title: strPtr("Forest Walk"), MoodStates: &moods})
	require.NoError(t, err)
	assert.Equal(t, "Forest Walk", updated.Title)
	assert.Equal(t, moods, updated.MoodStates)
	assert.Equal(t, "Energy", updated.Category)

	toggled, err := svc.ToggleStatus(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ContentInactive, toggled.Status)
	toggled, err = svc.ToggleStatus(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ContentActive, toggled.Status)

	_, err = svc.Update(ctx, 999, schema.EntertainmentPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadFile(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	u, err := svc.UploadFile(ctx, FolderMedia, "rain.mp3", strings.NewReader("audio"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://fake.backend/storage/v1/object/public/entertainment_media/media/rain.mp3", u)
	data, ok := fake.Object(Bucket, "media/rain.mp3")
	require.True(t, ok)
	assert.Equal(t, "audio", string(data))

	// Uploads overwrite.
	_, err = svc.UploadFile(ctx, FolderMedia, "rain.mp3", strings.NewReader("audio v2"), "audio/mpeg")
	require.NoError(t, err)

	_, err = svc.UploadFile(ctx, "secrets", "x.txt", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = svc.UploadFile(ctx, FolderCovers, "../x.png", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestDelete_RemovesFilesThenRow(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	mediaURL, err := svc.UploadFile(ctx, FolderMedia, "clip.mp4", strings.NewReader("video"), "video/mp4")
	require.NoError(t, err)
	coverURL, err := svc.UploadFile(ctx, FolderCovers, "clip.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	item, err := svc.Create(ctx, schema.EntertainmentInsert{
		Title: "Clip", Type: "Video", Category: "Calm",
		MediaFileURL: &mediaURL, CoverImgURL: &coverURL,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, item.ID))
	_, ok := fake.Object(Bucket, "media/clip.mp4")
	assert.False(t, ok)
	_, ok = fake.Object(Bucket, "covers/clip.png")
	assert.False(t, ok)
	assert.Empty(t, fake.Rows(backend.TableEntertainment))
}

func TestDelete_FileFailuresDoNotBlockRow(t *testing.T) {
	for _, removeErr := range []error{
		&backend.Error{Status: http.StatusNotFound, Code: backend.CodeObjectNotFound, Message: "Object not found"},
		errors.New("storage exploded"),
	} {
		svc, fake := newTestService(t)
		ctx := context.Background()
		item, err := svc.Create(ctx, schema.EntertainmentInsert{
			Title: "Clip", Type: "Video", Category: "Calm",
			MediaFileURL: strPtr("https://fake.backend/storage/v1/object/public/entertainment_media/media/gone.mp4"),
		})
		require.NoError(t, err)

		fake.Fail("Remove", removeErr)
		require.NoError(t, svc.Delete(ctx, item.ID))
		assert.Equal(t, 1, fake.Calls("Remove"))
		assert.Empty(t, fake.Rows(backend.TableEntertainment))
	}
}

func TestObjectPathFromURL(t *testing.T) {
	tests := []struct {
		raw          string
		folder, name string
		ok           bool
	}{
		{"https://x.supabase.co/storage/v1/object/public/entertainment_media/media/a%20b.mp3", "media", "a b.mp3", true},
		{"file:///var/lib/safespace/objects/entertainment_media/covers/c.png", "covers", "c.png", true},
		{"https://cdn.example.com/other_bucket/media/a.mp3", "", "", false},
		{"https://x.supabase.co/storage/v1/object/public/entertainment_media/thumbs/a.png", "", "", false},
		{"https://x.supabase.co/storage/v1/object/public/entertainment_media/media/", "", "", false},
	}
	for _, tt := range tests {
		folder, name, ok := objectPathFromURL(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.folder, folder, tt.raw)
		assert.Equal(t, tt.name, name, tt.raw)
	}
}

func TestStorageUsedGB(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	half := strings.Repeat("x", bytesPerGB/1024) // 1 MiB
	for _, name := range []string{"a", "b", "c"} {
		_, err := fake.Upload(ctx, Bucket, FolderMedia+"/"+name, strings.NewReader(half), backend.UploadOptions{})
		require.NoError(t, err)
	}
	used, err := svc.StorageUsedGB(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, used, "3 MiB rounds to 0.00 GB")

	fake.Fail("List", errors.New("list failed"))
	_, err = svc.StorageUsedGB(ctx)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	empty, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalContent)
	assert.False(t, empty.LastUpdated.IsZero())
	assert.Equal(t, TotalStorageGB, empty.TotalStorageGB)

	for _, in := range []schema.EntertainmentInsert{
		{Title: "A", Type: TypeVideo, Category: "c"},
		{Title: "B", Type: TypeVideo, Category: "c", Status: schema.ContentInactive},
		{Title: "C", Type: TypeAudio, Category: "c"},
		{Title: "D", Type: "Game", Category: "c"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalContent)
	assert.Equal(t, 2, st.TotalVideos)
	assert.Equal(t, 1, st.TotalAudio)
	assert.Equal(t, 3, st.ActiveCount)
	assert.Equal(t, 1, st.InactiveCount)
}

func TestDescriptionHTML(t *testing.T) {
	html, err := DescriptionHTML(&schema.Entertainment{Description: strPtr("Breathe **slowly**")})
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>slowly</strong>")

	html, err = DescriptionHTML(&schema.Entertainment{})
	require.NoError(t, err)
	assert.Empty(t, html)
}
