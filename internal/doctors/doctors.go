// ABOUTME: Doctors directory: list, get, create, update and delete doctors rows
// ABOUTME: Category and dominant state are checked against the shared vocabularies

package doctors

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/schema"
)

// List returns every doctor, newest first.
func (s *Service) List(ctx context.Context) ([]schema.Doctor, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	rows, err := s.rows.Select(ctx, backend.TableDoctors, backend.Query{
		Order: &backend.Order{Column: "created_at", Ascending: false},
	})
	if err != nil {
		return nil, fmt.Errorf("listing doctors: %w", err)
	}
	return schema.DecodeAll[schema.Doctor](rows)
}

// Get returns the doctor with id.
func (s *Service) Get(ctx context.Context, id int64) (*schema.Doctor, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id int64) (*schema.Doctor, error) {
	rows, err := s.rows.Select(ctx, backend.TableDoctors, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Single:  true,
	})
	if backend.IsNoRows(err) {
		return nil, fmt.Errorf("%w: doctor %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting doctor: %w", err)
	}
	return schema.One[schema.Doctor](rows)
}

func checkCategory(category string) error {
	if !slices.Contains(schema.DoctorCategories, category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, category)
	}
	return nil
}

func checkState(state *string) error {
	if state != nil && *state != "" && !slices.Contains(schema.DominantStates, *state) {
		return fmt.Errorf("%w: unknown dominant state %q", ErrInvalid, *state)
	}
	return nil
}

// Create validates and stores a new doctor.
func (s *Service) Create(ctx context.Context, in schema.DoctorInsert) (*schema.Doctor, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Category = strings.TrimSpace(in.Category)

	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if err := validate.Var(in.Email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: a valid email address is required", ErrInvalid)
	}
	if err := checkCategory(in.Category); err != nil {
		return nil, err
	}
	if err := checkState(in.DominantState); err != nil {
		return nil, err
	}

	raw, err := s.rows.Insert(ctx, backend.TableDoctors, in)
	if err != nil {
		if backend.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a doctor with email %s already exists", ErrInvalid, in.Email)
		}
		return nil, fmt.Errorf("creating doctor: %w", err)
	}
	doctor, err := schema.Decode[schema.Doctor](raw)
	if err != nil {
		return nil, err
	}
	s.logger.Info("doctor created", "id", doctor.ID, "email", doctor.Email)
	return doctor, nil
}

// Update applies patch to the doctor with id.
func (s *Service) Update(ctx context.Context, id int64, patch schema.DoctorPatch) (*schema.Doctor, error) {
	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	return s.update(ctx, id, patch)
}

func (s *Service) update(ctx context.Context, id int64, patch schema.DoctorPatch) (*schema.Doctor, error) {
	if patch.Name != nil {
		n := strings.TrimSpace(*patch.Name)
		if n == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalid)
		}
		patch.Name = &n
	}
	if patch.Email != nil {
		if err := validate.Var(*patch.Email, "required,email"); err != nil {
			return nil, fmt.Errorf("%w: a valid email address is required", ErrInvalid)
		}
	}
	if patch.Category != nil {
		if err := checkCategory(*patch.Category); err != nil {
			return nil, err
		}
	}
	if err := checkState(patch.DominantState); err != nil {
		return nil, err
	}

	rows, err := s.rows.Update(ctx, backend.TableDoctors, []backend.Filter{backend.Eq("id", id)}, patch)
	if err != nil {
		return nil, fmt.Errorf("updating doctor: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: doctor %d", ErrNotFound, id)
	}
	return schema.One[schema.Doctor](rows)
}

// Delete removes the doctor's row, then its profile picture.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.requireAdmin(); err != nil {
		return err
	}
	doctor, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rows.Delete(ctx, backend.TableDoctors, []backend.Filter{backend.Eq("id", id)}); err != nil {
		return fmt.Errorf("deleting doctor: %w", err)
	}
	if doctor.ProfilePicture != nil {
		s.removePicture(ctx, *doctor.ProfilePicture)
	}
	s.logger.Info("doctor deleted", "id", id)
	return nil
}
