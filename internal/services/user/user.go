// Package user is the directory of accounts: registration, profile updates,
// credentials and the bootstrap administrator.
package user

import (
	"context"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/metrics"
	"warranty/internal/models"
	"warranty/internal/store"
)

// registryLock serializes email/phone uniqueness checks.
const registryLock = "users:registry"

type PasswordHasher interface {
	Hash(pw string) (string, error)
	Compare(hash, pw string) error
}

type RegisterRequest struct {
	FullName string `json:"fullName" valid:"required~fullName is required,length(1|255)"`
	Email    string `json:"email" valid:"required~email is required,email~email is invalid"`
	Phone    string `json:"phone" valid:"required~phone is required,length(3|32)"`
	Address  string `json:"address" valid:"length(0|512)"`
	Password string `json:"password" valid:"required~password is required,length(4|128)"`
}

type UpdateRequest struct {
	FullName string `json:"fullName" valid:"required~fullName is required,length(1|255)"`
	Address  string `json:"address" valid:"length(0|512)"`
	Phone    string `json:"phone" valid:"required~phone is required,length(3|32)"`
	Email    string `json:"email" valid:"required~email is required,email~email is invalid"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" valid:"required~oldPassword is required"`
	NewPassword string `json:"newPassword" valid:"required~newPassword is required,length(4|128)"`
}

// AdminSeed describes the administrator created at start-up.
type AdminSeed struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

type Service struct {
	st      store.Store
	lg      *zap.SugaredLogger
	hasher  PasswordHasher
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, hasher PasswordHasher, lg *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{st: st, hasher: hasher, lg: lg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validate(v any) error {
	if _, err := govalidator.ValidateStruct(v); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

func (s *Service) phoneTaken(ctx context.Context, tx store.Stores, phone string, self int64) error {
	u, err := tx.Users().FindByPhone(ctx, phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case u.ID != self:
		return apperr.ErrPhoneTaken
	}
	return nil
}

func (s *Service) emailTaken(ctx context.Context, tx store.Stores, email string, self int64) error {
	u, err := tx.Users().FindByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case u.ID != self:
		return apperr.ErrEmailTaken
	}
	return nil
}

// Register creates a USER account. Phone is checked before email.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := validate(req); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	u := &models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}

	err = s.st.RunInTx(ctx, func(tx store.Stores) error {
		if err := tx.Lock(ctx, registryLock); err != nil {
			return err
		}
		if err := s.phoneTaken(ctx, tx, u.Phone, 0); err != nil {
			return err
		}
		if err := s.emailTaken(ctx, tx, u.Email, 0); err != nil {
			return err
		}
		return tx.Users().Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.UserRegistered()
	s.lg.Infow("user registered", "id", u.ID, "email", u.Email)
	return u, nil
}

// UpdateUser edits profile fields. Administrator accounts are immutable.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateRequest) (*models.User, error) {
	var updated models.User
	err := s.st.RunInTx(ctx, func(tx store.Stores) error {
		if err := tx.Lock(ctx, registryLock); err != nil {
			return err
		}
		u, err := tx.Users().FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if u.Role == models.RoleAdmin {
			return apperr.ErrAdminPasswordImmutable
		}

		req.FullName = strings.TrimSpace(req.FullName)
		req.Email = strings.TrimSpace(req.Email)
		req.Phone = strings.TrimSpace(req.Phone)
		if err := validate(req); err != nil {
			return err
		}
		if err := s.emailTaken(ctx, tx, req.Email, id); err != nil {
			return err
		}
		if err := s.phoneTaken(ctx, tx, req.Phone, id); err != nil {
			return err
		}

		u.FullName = req.FullName
		u.Address = req.Address
		u.Phone = req.Phone
		u.Email = req.Email
		if err := tx.Users().Update(ctx, u); err != nil {
			return err
		}
		updated = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.lg.Infow("user updated", "id", id)
	return &updated, nil
}

// ListUsers pages non-administrator accounts.
func (s *Service) ListUsers(ctx context.Context, page models.PageRequest) (models.Page[models.User], error) {
	return s.st.Users().ListNonAdmin(ctx, page)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.st.Users().FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	return u, err
}

// ChangePassword replaces the password after checking the old one. It holds
// the registry lock so it serializes with profile updates.
func (s *Service) ChangePassword(ctx context.Context, id int64, req ChangePasswordRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	err = s.st.RunInTx(ctx, func(tx store.Stores) error {
		if err := tx.Lock(ctx, registryLock); err != nil {
			return err
		}
		u, err := tx.Users().FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if u.Role == models.RoleAdmin {
			return apperr.ErrAdminPasswordImmutable
		}
		if err := s.hasher.Compare(u.PasswordHash, req.OldPassword); err != nil {
			return apperr.ErrInvalidPassword
		}
		u.PasswordHash = hash
		return tx.Users().Update(ctx, u)
	})
	if err != nil {
		return err
	}
	s.metrics.PasswordChanged()
	s.lg.Infow("password changed", "id", id)
	return nil
}

// Authenticate matches username against email, then phone.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	u, err := s.st.Users().FindByEmail(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		u, err = s.st.Users().FindByPhone(ctx, username)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the seed administrator unless its email or phone is
// already registered. It returns the existing or new account.
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed) (*models.User, error) {
	var admin *models.User
	err := s.st.RunInTx(ctx, func(tx store.Stores) error {
		if err := tx.Lock(ctx, registryLock); err != nil {
			return err
		}
		existing, err := tx.Users().FindByEmail(ctx, seed.Email)
		if errors.Is(err, store.ErrNotFound) {
			existing, err = tx.Users().FindByPhone(ctx, seed.Phone)
		}
		if err == nil {
			admin = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		hash, err := s.hasher.Hash(seed.Password)
		if err != nil {
			return errors.Wrap(err, "hash password")
		}
		admin = &models.User{
			FullName:     seed.FullName,
			Email:        seed.Email,
			Phone:        seed.Phone,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
		}
		if err := tx.Users().Create(ctx, admin); err != nil {
			return err
		}
		s.lg.Infow("default admin created", "email", admin.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if admin.Role != models.RoleAdmin {
		s.lg.Warnw("admin seed matches a non-admin account", "id", admin.ID)
	}
	return admin, nil
}
