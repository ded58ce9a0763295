// Package device registers physical units against passports and keeps their
// renovation history.
package device

import (
	"context"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/metrics"
	"warranty/internal/models"
	"warranty/internal/serial"
	"warranty/internal/services/passport"
	"warranty/internal/store"
)

// PassportResolver is satisfied by the passport catalog.
type PassportResolver interface {
	FindBySerial(ctx context.Context, sn string) (*models.Passport, error)
}

type RegisterRequest struct {
	SerialNumber string      `json:"serialNumber" valid:"required~serialNumber is required,length(1|128)"`
	PurchaseDate models.Date `json:"purchaseDate" valid:"-"`
}

type RenovationRequest struct {
	Description string      `json:"description" valid:"required~description is required"`
	Date        models.Date `json:"renovationDate" valid:"-"`
}

type Service struct {
	st        store.Store
	passports PassportResolver
	lg        *zap.SugaredLogger
	metrics   *metrics.Metrics
	today     func() models.Date
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, passports PassportResolver, lg *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{st: st, passports: passports, lg: lg, today: models.Today}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterDevice links sn to owner and the passport covering it. A zero
// purchase date means today.
func (s *Service) RegisterDevice(ctx context.Context, sn string, purchase models.Date, owner *models.User) (*models.Device, error) {
	if owner == nil {
		return nil, apperr.ErrUserNotFound
	}
	sn = strings.TrimSpace(sn)
	_, err := s.passports.FindBySerial(ctx, sn)
	switch {
	case errors.Is(err, apperr.ErrPassportNotFoundSerial), errors.Is(err, apperr.ErrInvalidSerialNumber):
		return nil, apperr.ErrInvalidSerialNumber
	case err != nil:
		return nil, err
	}
	prefix, n, err := serial.Parse(sn)
	if err != nil {
		return nil, apperr.ErrInvalidSerialNumber
	}
	if purchase.IsZero() {
		purchase = s.today()
	}

	d := &models.Device{SerialNumber: sn, UserID: owner.ID, PurchaseDate: purchase}
	var p models.Passport
	err = s.st.RunInTx(ctx, func(tx store.Stores) error {
		// The prefix lock pins the covering range against catalog updates
		// and deletes until the device row is in.
		if err := tx.Lock(ctx, passport.LockKey(prefix)); err != nil {
			return err
		}
		if err := tx.Lock(ctx, "device:"+sn); err != nil {
			return err
		}
		_, err := tx.Devices().FindBySerial(ctx, sn)
		switch {
		case err == nil:
			return apperr.ErrDeviceAlreadyRegistered
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		covering, err := tx.Passports().FindCovering(ctx, prefix, n)
		if err != nil {
			return err
		}
		if len(covering) == 0 {
			return apperr.ErrInvalidSerialNumber
		}
		p = covering[0]
		d.PassportID = p.ID
		d.WarrantyExpirationDate = purchase.AddMonths(p.WarrantyMonths)
		return tx.Devices().Create(ctx, d)
	})
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, apperr.ErrDeviceAlreadyRegistered
	case errors.Is(err, store.ErrReferenced):
		return nil, apperr.ErrInvalidSerialNumber
	case err != nil:
		return nil, err
	}

	d.Passport = &p
	d.User = owner
	d.Renovations = []models.Renovation{}
	s.metrics.DeviceRegistered()
	s.lg.Infow("device registered", "serial", sn, "passport", p.ID, "user", owner.ID, "warrantyUntil", d.WarrantyExpirationDate.String())
	return d, nil
}

func (s *Service) RegisterNewDevice(ctx context.Context, req RegisterRequest, owner *models.User) (*models.Device, error) {
	if owner == nil {
		return nil, apperr.ErrUserNotFound
	}
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if _, err := govalidator.ValidateStruct(req); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	return s.RegisterDevice(ctx, req.SerialNumber, req.PurchaseDate, owner)
}

// ListDevices matches filter against owner full name or passport name.
func (s *Service) ListDevices(ctx context.Context, filter string, page models.PageRequest) (models.Page[models.Device], error) {
	return s.st.Devices().List(ctx, strings.TrimSpace(filter), page)
}

func (s *Service) Get(ctx context.Context, sn string) (*models.Device, error) {
	d, err := s.st.Devices().FindBySerial(ctx, strings.TrimSpace(sn))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrDeviceNotRegistered
	}
	return d, err
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]models.Device, error) {
	return s.st.Devices().ListByUser(ctx, userID)
}

// Renovations lists the renovation history of a registered device, oldest first.
func (s *Service) Renovations(ctx context.Context, sn string) ([]models.Renovation, error) {
	sn = strings.TrimSpace(sn)
	if _, err := s.Get(ctx, sn); err != nil {
		return nil, err
	}
	out, err := s.st.Renovations().ListByDevice(ctx, sn)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Renovation{}
	}
	return out, nil
}

func (s *Service) AddRenovation(ctx context.Context, sn string, req RenovationRequest) (*models.Renovation, error) {
	req.Description = strings.TrimSpace(req.Description)
	if _, err := govalidator.ValidateStruct(req); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if req.Date.IsZero() {
		req.Date = s.today()
	}
	r := &models.Renovation{DeviceSerialNumber: strings.TrimSpace(sn), Date: req.Date, Description: req.Description}

	err := s.st.RunInTx(ctx, func(tx store.Stores) error {
		if _, err := tx.Devices().FindBySerial(ctx, r.DeviceSerialNumber); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.ErrDeviceNotRegistered
			}
			return err
		}
		return tx.Renovations().Create(ctx, r)
	})
	if errors.Is(err, store.ErrReferenced) {
		return nil, apperr.ErrDeviceNotRegistered
	}
	if err != nil {
		return nil, err
	}
	s.metrics.RenovationAdded()
	s.lg.Infow("renovation added", "serial", r.DeviceSerialNumber, "id", r.ID)
	return r, nil
}
