package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
)

const minPasswordLength = 8

// dummyHash is compared against when the email is unknown so both paths cost one bcrypt run.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("booking-os-timing-pad"), bcrypt.DefaultCost)

// GenerateFromPassword rejects longer inputs.
const maxPasswordBytes = 72

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate returns the active staff member with these credentials, or ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Staff, error) {
	st, err := s.staff.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrStaffNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(password)); err != nil {
		slog.InfoContext(ctx, "Login rejected", "staff_id", st.ID, "reason", "password")
		return nil, domain.ErrInvalidCredentials
	}
	if !st.Active {
		slog.InfoContext(ctx, "Login rejected", "staff_id", st.ID, "reason", "inactive")
		return nil, domain.ErrInvalidCredentials
	}
	return st, nil
}

// CurrentStaff loads the staff member behind a session. Deactivated logins count as gone.
func (s *Service) CurrentStaff(ctx context.Context, id uuid.UUID) (*domain.Staff, error) {
	st, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.Active {
		return nil, domain.ErrStaffNotFound
	}
	return st, nil
}

// EnsureSuperAdmin creates the platform operator login unless the email is already taken.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, name, password string) (*domain.Staff, error) {
	existing, err := s.staff.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrStaffNotFound) {
		return nil, err
	}
	return s.createStaff(ctx, nil, CreateStaffInput{Email: email, Name: name, Role: domain.RoleSuperAdmin, Password: password})
}
