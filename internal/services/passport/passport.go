// Package passport manages the catalog of serial-number ranges per product model.
package passport

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/cache"
	"warranty/internal/metrics"
	"warranty/internal/models"
	"warranty/internal/serial"
	"warranty/internal/store"
)

// Request is the body accepted by Create and Update.
type Request struct {
	Name             string `json:"name" valid:"required~name is required,length(1|255)"`
	Model            string `json:"model" valid:"required~model is required,length(1|255)"`
	SerialPrefix     string `json:"serialPrefix" valid:"length(0|64)"`
	FromSerialNumber int64  `json:"fromSerialNumber"`
	ToSerialNumber   int64  `json:"toSerialNumber"`
	WarrantyMonths   int    `json:"warrantyMonths"`
}

func (r *Request) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Model = strings.TrimSpace(r.Model)
	if _, err := govalidator.ValidateStruct(r); err != nil {
		return apperr.Validation(err.Error())
	}
	switch {
	case !serial.ValidPrefix(r.SerialPrefix):
		return apperr.Validation("serialPrefix must not contain digits or surrounding spaces")
	case r.FromSerialNumber < 0:
		return apperr.Validation("fromSerialNumber must not be negative")
	case r.FromSerialNumber > r.ToSerialNumber:
		return apperr.Validation("fromSerialNumber must not exceed toSerialNumber")
	case r.WarrantyMonths < 0:
		return apperr.Validation("warrantyMonths must not be negative")
	}
	return nil
}

func (r Request) apply(p *models.Passport) {
	p.Name = r.Name
	p.Model = r.Model
	p.SerialPrefix = r.SerialPrefix
	p.FromSerialNumber = r.FromSerialNumber
	p.ToSerialNumber = r.ToSerialNumber
	p.WarrantyMonths = r.WarrantyMonths
}

type Service struct {
	st      store.Store
	lg      *zap.SugaredLogger
	cache   cache.PassportCache
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithCache(c cache.PassportCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, lg *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{st: st, lg: lg, cache: cache.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockKey is the transaction lock guarding every passport with prefix. Writers
// that depend on a prefix's ranges staying put take it too.
func LockKey(prefix string) string { return "passport:" + prefix }

// lockPrefixes takes prefix locks in a fixed order so two updates moving
// passports between the same prefixes cannot deadlock.
func lockPrefixes(ctx context.Context, tx store.Stores, prefixes ...string) error {
	sort.Strings(prefixes)
	for i, p := range prefixes {
		if i > 0 && prefixes[i-1] == p {
			continue
		}
		if err := tx.Lock(ctx, LockKey(p)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req Request) (*models.Passport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := &models.Passport{}
	req.apply(p)

	err := s.st.RunInTx(ctx, func(tx store.Stores) error {
		if err := lockPrefixes(ctx, tx, p.SerialPrefix); err != nil {
			return err
		}
		existing, err := tx.Passports().FindOverlapping(ctx, p.SerialPrefix, p.FromSerialNumber, p.ToSerialNumber)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperr.ErrSerialNumberExists
		}
		return tx.Passports().Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.metrics.PassportMutated("create")
	s.lg.Infow("passport created", "id", p.ID, "prefix", p.SerialPrefix, "from", p.FromSerialNumber, "to", p.ToSerialNumber)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id int64, req Request) (*models.Passport, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated models.Passport
	err = s.st.RunInTx(ctx, func(tx store.Stores) error {
		if err := lockPrefixes(ctx, tx, current.SerialPrefix, req.SerialPrefix); err != nil {
			return err
		}
		p, err := tx.Passports().FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrPassportNotFound
		}
		if err != nil {
			return err
		}

		overlapping, err := tx.Passports().FindOverlapping(ctx, req.SerialPrefix, req.FromSerialNumber, req.ToSerialNumber)
		if err != nil {
			return err
		}
		for _, o := range overlapping {
			if o.ID != id {
				return apperr.ErrSerialNumberExists
			}
		}

		serials, err := tx.Devices().SerialsByPassport(ctx, id)
		if err != nil {
			return err
		}
		next := *p
		req.apply(&next)
		for _, sn := range serials {
			prefix, n, err := serial.Parse(sn)
			if err != nil || !next.Covers(prefix, n) {
				return apperr.ErrPassportRangeInUse
			}
		}

		if err := tx.Passports().Update(ctx, &next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	s.metrics.PassportMutated("update")
	s.lg.Infow("passport updated", "id", id, "prefix", updated.SerialPrefix, "from", updated.FromSerialNumber, "to", updated.ToSerialNumber)
	return &updated, nil
}

// Delete refuses to remove a passport that registered devices still point at.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.st.RunInTx(ctx, func(tx store.Stores) error {
		p, err := tx.Passports().FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrPassportNotFound
		}
		if err != nil {
			return err
		}
		if err := lockPrefixes(ctx, tx, p.SerialPrefix); err != nil {
			return err
		}
		serials, err := tx.Devices().SerialsByPassport(ctx, id)
		if err != nil {
			return err
		}
		if len(serials) > 0 {
			return apperr.ErrPassportInUse
		}
		err = tx.Passports().Delete(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return apperr.ErrPassportNotFound
		case errors.Is(err, store.ErrReferenced):
			return apperr.ErrPassportInUse
		}
		return err
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx)
	s.metrics.PassportMutated("delete")
	s.lg.Infow("passport deleted", "id", id)
	return nil
}

// FindBySerial resolves the passport whose prefix and range admit sn.
func (s *Service) FindBySerial(ctx context.Context, sn string) (*models.Passport, error) {
	defer s.metrics.ObserveLookup(time.Now())

	sn = strings.TrimSpace(sn)
	prefix, n, err := serial.Parse(sn)
	if err != nil {
		return nil, err
	}
	p, gen, ok := s.cache.Get(ctx, sn)
	if ok {
		s.metrics.CacheResult(true)
		return p, nil
	}
	s.metrics.CacheResult(false)

	found, err := s.st.Passports().FindCovering(ctx, prefix, n)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperr.PassportNotFoundForSerial(sn)
	}
	p = &found[0]
	s.cache.Set(ctx, sn, gen, p)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Passport, error) {
	p, err := s.st.Passports().FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrPassportNotFound
	}
	return p, err
}

func (s *Service) List(ctx context.Context, page models.PageRequest) (models.Page[models.Passport], error) {
	return s.st.Passports().List(ctx, page)
}
