package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"warranty/internal/models"
)

// Memory keeps everything in process. Transactions are serialized by a single
// lock and are not rolled back on error.
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	seq         int64
	passports   map[int64]models.Passport
	devices     map[string]models.Device
	deviceOrder map[string]int64
	renovations map[int64]models.Renovation
	users       map[int64]models.User
	sessions    map[string]models.Session
	audit       []models.AuditLog
}

func NewMemory() *Memory {
	return &Memory{
		passports:   map[int64]models.Passport{},
		devices:     map[string]models.Device{},
		deviceOrder: map[string]int64{},
		renovations: map[int64]models.Renovation{},
		users:       map[int64]models.User{},
		sessions:    map[string]models.Session{},
	}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(tx Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

func (m *Memory) Lock(ctx context.Context, _ string) error { return ctx.Err() }

func (m *Memory) Passports() PassportStore     { return memPassports{m} }
func (m *Memory) Devices() DeviceStore         { return memDevices{m} }
func (m *Memory) Renovations() RenovationStore { return memRenovations{m} }
func (m *Memory) Users() UserStore             { return memUsers{m} }
func (m *Memory) Sessions() SessionStore       { return memSessions{m} }
func (m *Memory) Audit() AuditStore            { return memAudit{m} }

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

// passports

type memPassports struct{ m *Memory }

func (s memPassports) Create(_ context.Context, p *models.Passport) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := time.Now()
	p.ID = s.m.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	s.m.passports[p.ID] = *p
	return nil
}

func (s memPassports) Update(_ context.Context, p *models.Passport) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.passports[p.ID]; !ok {
		return errors.Wrapf(ErrNotFound, "passport %d", p.ID)
	}
	p.UpdatedAt = time.Now()
	s.m.passports[p.ID] = *p
	return nil
}

func (s memPassports) Delete(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.passports[id]; !ok {
		return errors.Wrapf(ErrNotFound, "passport %d", id)
	}
	for _, d := range s.m.devices {
		if d.PassportID == id {
			return errors.Wrapf(ErrReferenced, "passport %d is referenced by devices", id)
		}
	}
	delete(s.m.passports, id)
	return nil
}

func (s memPassports) FindByID(_ context.Context, id int64) (*models.Passport, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	p, ok := s.m.passports[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "passport %d", id)
	}
	return &p, nil
}

func (s memPassports) FindOverlapping(_ context.Context, prefix string, from, to int64) ([]models.Passport, error) {
	return s.filter(func(p models.Passport) bool { return p.Overlaps(prefix, from, to) }), nil
}

func (s memPassports) FindCovering(_ context.Context, prefix string, n int64) ([]models.Passport, error) {
	return s.filter(func(p models.Passport) bool { return p.Covers(prefix, n) }), nil
}

func (s memPassports) List(_ context.Context, page models.PageRequest) (models.Page[models.Passport], error) {
	all := s.filter(func(models.Passport) bool { return true })
	return models.Slice(all, page), nil
}

func (s memPassports) filter(keep func(models.Passport) bool) []models.Passport {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := []models.Passport{}
	for _, p := range s.m.passports {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// devices

type memDevices struct{ m *Memory }

func (s memDevices) Create(_ context.Context, d *models.Device) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.devices[d.SerialNumber]; ok {
		return errors.Wrapf(ErrConflict, "device %s", d.SerialNumber)
	}
	if _, ok := s.m.passports[d.PassportID]; !ok {
		return errors.Wrapf(ErrReferenced, "passport %d", d.PassportID)
	}
	if _, ok := s.m.users[d.UserID]; !ok {
		return errors.Wrapf(ErrReferenced, "user %d", d.UserID)
	}
	d.CreatedAt = time.Now()
	stored := *d
	stored.Passport, stored.User, stored.Renovations = nil, nil, nil
	s.m.devices[d.SerialNumber] = stored
	s.m.deviceOrder[d.SerialNumber] = s.m.nextID()
	return nil
}

func (s memDevices) FindBySerial(_ context.Context, serial string) (*models.Device, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	d, ok := s.m.devices[serial]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "device %s", serial)
	}
	out := s.hydrate(d)
	return &out, nil
}

func (s memDevices) List(_ context.Context, filter string, page models.PageRequest) (models.Page[models.Device], error) {
	needle := strings.ToLower(filter)
	all := s.collect(func(d models.Device) bool {
		if needle == "" {
			return true
		}
		return (d.User != nil && strings.Contains(strings.ToLower(d.User.FullName), needle)) ||
			(d.Passport != nil && strings.Contains(strings.ToLower(d.Passport.Name), needle))
	})
	return models.Slice(all, page), nil
}

func (s memDevices) ListByUser(_ context.Context, userID int64) ([]models.Device, error) {
	return s.collect(func(d models.Device) bool { return d.UserID == userID }), nil
}

func (s memDevices) SerialsByPassport(_ context.Context, passportID int64) ([]string, error) {
	out := []string{}
	for _, d := range s.collect(func(d models.Device) bool { return d.PassportID == passportID }) {
		out = append(out, d.SerialNumber)
	}
	return out, nil
}

// collect hydrates, filters and orders devices by insertion.
func (s memDevices) collect(keep func(models.Device) bool) []models.Device {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := []models.Device{}
	for _, d := range s.m.devices {
		h := s.hydrate(d)
		if keep(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.m.deviceOrder[out[i].SerialNumber] < s.m.deviceOrder[out[j].SerialNumber]
	})
	return out
}

// hydrate must be called with mu held.
func (s memDevices) hydrate(d models.Device) models.Device {
	if p, ok := s.m.passports[d.PassportID]; ok {
		d.Passport = &p
	}
	if u, ok := s.m.users[d.UserID]; ok {
		d.User = &u
	}
	d.Renovations = renovationsOf(s.m, d.SerialNumber)
	return d
}

// renovations

type memRenovations struct{ m *Memory }

func (s memRenovations) Create(_ context.Context, r *models.Renovation) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.devices[r.DeviceSerialNumber]; !ok {
		return errors.Wrapf(ErrReferenced, "device %s", r.DeviceSerialNumber)
	}
	r.ID = s.m.nextID()
	r.CreatedAt = time.Now()
	s.m.renovations[r.ID] = *r
	return nil
}

func (s memRenovations) ListByDevice(_ context.Context, serial string) ([]models.Renovation, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	return renovationsOf(s.m, serial), nil
}

func renovationsOf(m *Memory, serial string) []models.Renovation {
	out := []models.Renovation{}
	for _, r := range m.renovations {
		if r.DeviceSerialNumber == serial {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// users

type memUsers struct{ m *Memory }

func (s memUsers) Create(_ context.Context, u *models.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.checkUnique(*u); err != nil {
		return err
	}
	now := time.Now()
	u.ID = s.m.nextID()
	u.CreatedAt, u.UpdatedAt = now, now
	s.m.users[u.ID] = *u
	return nil
}

func (s memUsers) Update(_ context.Context, u *models.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[u.ID]; !ok {
		return errors.Wrapf(ErrNotFound, "user %d", u.ID)
	}
	if err := s.checkUnique(*u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	s.m.users[u.ID] = *u
	return nil
}

func (s memUsers) checkUnique(u models.User) error {
	for _, other := range s.m.users {
		if other.ID == u.ID {
			continue
		}
		if other.Email == u.Email {
			return errors.Wrapf(ErrConflict, "email %s", u.Email)
		}
		if other.Phone == u.Phone {
			return errors.Wrapf(ErrConflict, "phone %s", u.Phone)
		}
	}
	return nil
}

func (s memUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.ID == id })
}

func (s memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == email })
}

func (s memUsers) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Phone == phone })
}

func (s memUsers) find(match func(models.User) bool) (*models.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, u := range s.m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, errors.Wrap(ErrNotFound, "user")
}

func (s memUsers) ListNonAdmin(_ context.Context, page models.PageRequest) (models.Page[models.User], error) {
	s.m.mu.RLock()
	all := []models.User{}
	for _, u := range s.m.users {
		if u.Role != models.RoleAdmin {
			all = append(all, u)
		}
	}
	s.m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return models.Slice(all, page), nil
}

// sessions

type memSessions struct{ m *Memory }

func (s memSessions) Create(_ context.Context, sess *models.Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.sessions[sess.JTI]; ok {
		return errors.Wrapf(ErrConflict, "session %s", sess.JTI)
	}
	sess.CreatedAt = time.Now()
	s.m.sessions[sess.JTI] = *sess
	return nil
}

func (s memSessions) Find(_ context.Context, jti string) (*models.Session, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	sess, ok := s.m.sessions[jti]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "session %s", jti)
	}
	return &sess, nil
}

func (s memSessions) Revoke(_ context.Context, jti string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[jti]
	if !ok {
		return errors.Wrapf(ErrNotFound, "session %s", jti)
	}
	sess.RevokedAt = &at
	s.m.sessions[jti] = sess
	return nil
}

// audit

type memAudit struct{ m *Memory }

func (s memAudit) Append(_ context.Context, entry *models.AuditLog) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	entry.ID = s.m.nextID()
	entry.CreatedAt = time.Now()
	s.m.audit = append(s.m.audit, *entry)
	return nil
}

func (s memAudit) Recent(_ context.Context, actorID *int64, limit int) ([]models.AuditLog, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := []models.AuditLog{}
	for i := len(s.m.audit) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := s.m.audit[i]
		if actorID != nil && (e.ActorID == nil || *e.ActorID != *actorID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
