// Package store holds the persistence ports and their PostgreSQL (gorm) and
// in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"warranty/internal/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record already exists")
	// ErrReferenced reports a broken reference: a row points at a missing
	// parent, or a deleted row still has dependents.
	ErrReferenced = errors.New("record referenced")
)

type PassportStore interface {
	Create(ctx context.Context, p *models.Passport) error
	Update(ctx context.Context, p *models.Passport) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*models.Passport, error)
	// FindOverlapping returns passports with the prefix whose range intersects [from, to].
	FindOverlapping(ctx context.Context, prefix string, from, to int64) ([]models.Passport, error)
	// FindCovering returns passports with the prefix whose range contains n.
	FindCovering(ctx context.Context, prefix string, n int64) ([]models.Passport, error)
	List(ctx context.Context, page models.PageRequest) (models.Page[models.Passport], error)
}

type DeviceStore interface {
	Create(ctx context.Context, d *models.Device) error
	// FindBySerial loads the device with its passport, owner and renovations.
	FindBySerial(ctx context.Context, serial string) (*models.Device, error)
	// List matches filter case-insensitively against owner full name or passport name.
	List(ctx context.Context, filter string, page models.PageRequest) (models.Page[models.Device], error)
	ListByUser(ctx context.Context, userID int64) ([]models.Device, error)
	SerialsByPassport(ctx context.Context, passportID int64) ([]string, error)
}

type RenovationStore interface {
	Create(ctx context.Context, r *models.Renovation) error
	ListByDevice(ctx context.Context, serial string) ([]models.Renovation, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	// ListNonAdmin pages every user whose role is not ADMIN.
	ListNonAdmin(ctx context.Context, page models.PageRequest) (models.Page[models.User], error)
}

type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Find(ctx context.Context, jti string) (*models.Session, error)
	Revoke(ctx context.Context, jti string, at time.Time) error
}

type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	// Recent returns the newest entries first; a nil actor means everyone.
	Recent(ctx context.Context, actorID *int64, limit int) ([]models.AuditLog, error)
}

// Stores groups the repositories reachable inside a transaction.
type Stores interface {
	Passports() PassportStore
	Devices() DeviceStore
	Renovations() RenovationStore
	Users() UserStore
	Sessions() SessionStore
	Audit() AuditStore
	// Lock serializes check-then-act sequences on key until the transaction ends.
	Lock(ctx context.Context, key string) error
}

// Store is the root handle injected into services.
type Store interface {
	Stores
	RunInTx(ctx context.Context, fn func(tx Stores) error) error
}
