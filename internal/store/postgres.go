package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"warranty/internal/models"
)

type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) DB() *gorm.DB { return p.db }

func (p *Postgres) Migrate(ctx context.Context) error {
	return errors.Wrap(p.db.WithContext(ctx).AutoMigrate(models.All()...), "automigrate")
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(tx Stores) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}

// Lock takes a transaction-scoped advisory lock; outside a transaction it is
// released as soon as the statement completes.
func (p *Postgres) Lock(ctx context.Context, key string) error {
	err := p.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
	return errors.Wrapf(err, "advisory lock %q", key)
}

func (p *Postgres) Passports() PassportStore     { return pgPassports{p.db} }
func (p *Postgres) Devices() DeviceStore         { return pgDevices{p.db} }
func (p *Postgres) Renovations() RenovationStore { return pgRenovations{p.db} }
func (p *Postgres) Users() UserStore             { return pgUsers{p.db} }
func (p *Postgres) Sessions() SessionStore       { return pgSessions{p.db} }
func (p *Postgres) Audit() AuditStore            { return pgAudit{p.db} }

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrap(ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Wrap(ErrConflict, what)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return errors.Wrap(ErrReferenced, what)
	default:
		return errors.Wrap(err, what)
	}
}

func paginate[T any](q *gorm.DB, page models.PageRequest, order string, preload ...string) (models.Page[T], error) {
	out := models.Page[T]{Items: []T{}, Page: page.Page, Size: page.Size}
	if err := q.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	for _, assoc := range preload {
		q = q.Preload(assoc)
	}
	err := q.Order(order).Offset(page.Offset()).Limit(page.Size).Find(&out.Items).Error
	return out, err
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// passports

type pgPassports struct{ db *gorm.DB }

func (s pgPassports) Create(ctx context.Context, p *models.Passport) error {
	return translate(s.db.WithContext(ctx).Create(p).Error, "create passport")
}

func (s pgPassports) Update(ctx context.Context, p *models.Passport) error {
	res := s.db.WithContext(ctx).Model(p).Select("*").Omit("created_at").Updates(p)
	if res.Error == nil && res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "update passport %d", p.ID)
	}
	return translate(res.Error, "update passport")
}

func (s pgPassports) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.Passport{}, id)
	if res.Error == nil && res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "delete passport %d", id)
	}
	return translate(res.Error, "delete passport")
}

func (s pgPassports) FindByID(ctx context.Context, id int64) (*models.Passport, error) {
	var p models.Passport
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "find passport")
	}
	return &p, nil
}

func (s pgPassports) FindOverlapping(ctx context.Context, prefix string, from, to int64) ([]models.Passport, error) {
	var out []models.Passport
	err := s.db.WithContext(ctx).
		Where("serial_prefix = ? AND from_serial_number <= ? AND to_serial_number >= ?", prefix, to, from).
		Order("id").Find(&out).Error
	return out, translate(err, "find overlapping passports")
}

func (s pgPassports) FindCovering(ctx context.Context, prefix string, n int64) ([]models.Passport, error) {
	var out []models.Passport
	err := s.db.WithContext(ctx).
		Where("serial_prefix = ? AND from_serial_number <= ? AND to_serial_number >= ?", prefix, n, n).
		Order("id").Find(&out).Error
	return out, translate(err, "find passports by serial")
}

func (s pgPassports) List(ctx context.Context, page models.PageRequest) (models.Page[models.Passport], error) {
	out, err := paginate[models.Passport](s.db.WithContext(ctx).Model(&models.Passport{}), page, "id")
	return out, translate(err, "list passports")
}

// devices

type pgDevices struct{ db *gorm.DB }

func (s pgDevices) Create(ctx context.Context, d *models.Device) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(d).Error
	return translate(err, "create device")
}

func (s pgDevices) FindBySerial(ctx context.Context, serial string) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).
		Preload("Passport").Preload("User").
		Preload("Renovations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&d, "serial_number = ?", serial).Error
	if err != nil {
		return nil, translate(err, "find device")
	}
	return &d, nil
}

func (s pgDevices) List(ctx context.Context, filter string, page models.PageRequest) (models.Page[models.Device], error) {
	q := s.db.WithContext(ctx).Model(&models.Device{}).Joins("User").Joins("Passport")
	if filter != "" {
		like := likePattern(filter)
		q = q.Where(`"User".full_name ILIKE ? OR "Passport".name ILIKE ?`, like, like)
	}
	out, err := paginate[models.Device](q, page, "devices.created_at, devices.serial_number", "Renovations")
	return out, translate(err, "list devices")
}

func (s pgDevices) ListByUser(ctx context.Context, userID int64) ([]models.Device, error) {
	var out []models.Device
	err := s.db.WithContext(ctx).
		Joins("Passport").Preload("Renovations").
		Where("devices.user_id = ?", userID).
		Order("devices.created_at, devices.serial_number").Find(&out).Error
	return out, translate(err, "list user devices")
}

func (s pgDevices) SerialsByPassport(ctx context.Context, passportID int64) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("passport_id = ?", passportID).Pluck("serial_number", &out).Error
	return out, translate(err, "list passport serials")
}

// renovations

type pgRenovations struct{ db *gorm.DB }

func (s pgRenovations) Create(ctx context.Context, r *models.Renovation) error {
	return translate(s.db.WithContext(ctx).Create(r).Error, "create renovation")
}

func (s pgRenovations) ListByDevice(ctx context.Context, serial string) ([]models.Renovation, error) {
	var out []models.Renovation
	err := s.db.WithContext(ctx).Where("device_serial_number = ?", serial).Order("id").Find(&out).Error
	return out, translate(err, "list renovations")
}

// users

type pgUsers struct{ db *gorm.DB }

func (s pgUsers) Create(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error, "create user")
}

func (s pgUsers) Update(ctx context.Context, u *models.User) error {
	res := s.db.WithContext(ctx).Model(u).Select("*").Omit("created_at").Updates(u)
	if res.Error == nil && res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "update user %d", u.ID)
	}
	return translate(res.Error, "update user")
}

func (s pgUsers) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s pgUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s pgUsers) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.first(ctx, "phone = ?", phone)
}

func (s pgUsers) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, query, arg).Error; err != nil {
		return nil, translate(err, "find user")
	}
	return &u, nil
}

func (s pgUsers) ListNonAdmin(ctx context.Context, page models.PageRequest) (models.Page[models.User], error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("role <> ?", models.RoleAdmin)
	out, err := paginate[models.User](q, page, "id")
	return out, translate(err, "list users")
}

// sessions

type pgSessions struct{ db *gorm.DB }

func (s pgSessions) Create(ctx context.Context, sess *models.Session) error {
	return translate(s.db.WithContext(ctx).Create(sess).Error, "create session")
}

func (s pgSessions) Find(ctx context.Context, jti string) (*models.Session, error) {
	var sess models.Session
	if err := s.db.WithContext(ctx).First(&sess, "jti = ?", jti).Error; err != nil {
		return nil, translate(err, "find session")
	}
	return &sess, nil
}

func (s pgSessions) Revoke(ctx context.Context, jti string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).Where("jti = ?", jti).Update("revoked_at", at)
	if res.Error == nil && res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "revoke session %s", jti)
	}
	return translate(res.Error, "revoke session")
}

// audit

type pgAudit struct{ db *gorm.DB }

func (s pgAudit) Append(ctx context.Context, entry *models.AuditLog) error {
	return translate(s.db.WithContext(ctx).Create(entry).Error, "append audit log")
}

func (s pgAudit) Recent(ctx context.Context, actorID *int64, limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	q := s.db.WithContext(ctx).Order("created_at desc, id desc")
	if actorID != nil {
		q = q.Where("actor_id = ?", *actorID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, translate(err, "recent audit logs")
}
