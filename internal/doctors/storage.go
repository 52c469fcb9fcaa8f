// ABOUTME: Doctor profile pictures in the doctor_profiles bucket
// ABOUTME: Uploads get a timestamped name; replaced or orphaned pictures are removed best-effort

package doctors

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// Storage layout.
const (
	Bucket        = "doctor_profiles"
	ProfileFolder = "profiles"
)

// pictureName builds "<unix-ms>_<doctor>.<ext>" from the uploaded file name.
func (s *Service) pictureName(doctor, fileName string) string {
	ext := strings.TrimPrefix(path.Ext(fileName), ".")
	if ext == "" {
		ext = "jpg"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(doctor))
	return fmt.Sprintf("%d_%s.%s", s.now().UnixMilli(), safe, strings.ToLower(ext))
}

// UploadPicture stores a profile picture for the named doctor and returns
// its public URL.
func (s *Service) UploadPicture(ctx context.Context, doctor, fileName string, body io.Reader, contentType string) (string, error) {
	if _, err := s.requireAdmin(); err != nil {
		return "", err
	}
	if strings.TrimSpace(doctor) == "" {
		return "", fmt.Errorf("%w: doctor name is required", ErrInvalid)
	}
	return s.upload(ctx, doctor, fileName, body, contentType)
}

func (s *Service) upload(ctx context.Context, doctor, fileName string, body io.Reader, contentType string) (string, error) {
	p := ProfileFolder + "/" + s.pictureName(doctor, fileName)
	stored, err := s.objects.Upload(ctx, Bucket, p, body, backend.UploadOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("uploading profile picture: %w", err)
	}
	publicURL := s.objects.PublicURL(Bucket, stored)
	s.logger.Info("profile picture uploaded", "path", stored)
	return publicURL, nil
}

// SetPicture uploads a new profile picture for the doctor with id, points the
// row at it and removes the previous picture.
func (s *Service) SetPicture(ctx context.Context, id int64, fileName string, body io.Reader, contentType string) (*schema.Doctor, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	doctor, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	publicURL, err := s.upload(ctx, doctor.Name, fileName, body, contentType)
	if err != nil {
		return nil, err
	}
	updated, err := s.update(ctx, id, schema.DoctorPatch{ProfilePicture: &publicURL})
	if err != nil {
		s.removePicture(ctx, publicURL)
		return nil, err
	}
	if doctor.ProfilePicture != nil && *doctor.ProfilePicture != publicURL {
		s.removePicture(ctx, *doctor.ProfilePicture)
	}
	return updated, nil
}

// removePicture deletes the object behind a public URL. URLs outside the
// bucket are ignored and failures are only logged.
func (s *Service) removePicture(ctx context.Context, publicURL string) {
	p, ok := picturePath(publicURL)
	if !ok {
		s.logger.Debug("profile picture not in bucket, leaving it", "url", publicURL)
		return
	}
	err := s.objects.Remove(ctx, Bucket, []string{p})
	switch {
	case err == nil:
		s.logger.Debug("profile picture removed", "path", p)
	case backend.IsNotFound(err):
		s.logger.Debug("profile picture already gone", "path", p)
	default:
		s.logger.Warn("removing profile picture failed", "path", p, "error", err)
	}
}

// picturePath extracts the object path of a public URL in Bucket.
func picturePath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	p := u.EscapedPath()
	marker := "/" + Bucket + "/"
	i := strings.LastIndex(p, marker)
	if i < 0 {
		return "", false
	}
	rest, err := url.PathUnescape(p[i+len(marker):])
	if err != nil || !strings.HasPrefix(rest, ProfileFolder+"/") || rest == ProfileFolder+"/" {
		return "", false
	}
	return rest, true
}
