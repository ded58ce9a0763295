package passport

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/cache"
	"warranty/internal/metrics"
	"warranty/internal/models"
	"warranty/internal/store"
)

type mapCache struct {
	mu          sync.Mutex
	gen         cache.Generation
	entries     map[string]models.Passport
	invalidated int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]models.Passport{}} }

func (c *mapCache) Get(_ context.Context, sn string) (*models.Passport, cache.Generation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[sn]
	return &p, c.gen, ok
}

func (c *mapCache) Set(_ context.Context, sn string, gen cache.Generation, p *models.Passport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[sn] = *p
}

func (c *mapCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = map[string]models.Passport{}
	c.invalidated++
}

// hookedStore runs afterCovering once, right after the first covering lookup
// outside a transaction returns.
type hookedStore struct {
	*store.Memory
	afterCovering func()
}

func (h *hookedStore) Passports() store.PassportStore {
	return hookedPassports{PassportStore: h.Memory.Passports(), h: h}
}

type hookedPassports struct {
	store.PassportStore
	h *hookedStore
}

func (p hookedPassports) FindCovering(ctx context.Context, prefix string, n int64) ([]models.Passport, error) {
	out, err := p.PassportStore.FindCovering(ctx, prefix, n)
	if f := p.h.afterCovering; f != nil {
		p.h.afterCovering = nil
		f()
	}
	return out, err
}

type PassportServiceSuite struct {
	suite.Suite
	ctx     context.Context
	st      *store.Memory
	cache   *mapCache
	metrics *metrics.Metrics
	svc     *Service
}

func TestPassportServiceSuite(t *testing.T) {
	suite.Run(t, new(PassportServiceSuite))
}

func (s *PassportServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.st = store.NewMemory()
	s.cache = newMapCache()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = New(s.st, zap.NewNop().Sugar(), WithCache(s.cache), WithMetrics(s.metrics))
}

func req(name, prefix string, from, to int64) Request {
	return Request{Name: name, Model: name + "Model", SerialPrefix: prefix, FromSerialNumber: from, ToSerialNumber: to, WarrantyMonths: 36}
}

func (s *PassportServiceSuite) create(name, prefix string, from, to int64) *models.Passport {
	p, err := s.svc.Create(s.ctx, req(name, prefix, from, to))
	s.Require().NoError(err)
	return p
}

func (s *PassportServiceSuite) TestCreate() {
	p := s.create("First", "First", 1, 100)
	s.NotZero(p.ID)
	s.Equal(36, p.WarrantyMonths)
	s.Equal(1, s.cache.invalidated)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PassportMutations.WithLabelValues("create")))

	s.Run("overlapping range with same prefix", func() {
		for _, r := range []Request{
			req("a", "First", 30, 150),
			req("b", "First", 100, 100),
			req("c", "First", 0, 1),
			req("d", "First", 10, 20),
		} {
			_, err := s.svc.Create(s.ctx, r)
			s.ErrorIs(err, apperr.ErrSerialNumberExists, r.Name)
			s.Equal("Serial number already exists", err.Error())
		}
	})

	s.Run("adjacent range and other prefix", func() {
		s.create("Next", "First", 101, 200)
		s.create("Other", "Second", 1, 100)
	})

	s.Run("validation", func() {
		for _, r := range []Request{
			req("", "First", 500, 600),
			req("bad", "Fir5t", 500, 600),
			req("bad", "First", 600, 500),
			req("bad", "First", -1, 5),
			{Name: "bad", Model: "m", SerialPrefix: "First", FromSerialNumber: 700, ToSerialNumber: 800, WarrantyMonths: -1},
		} {
			_, err := s.svc.Create(s.ctx, r)
			s.ErrorIs(err, apperr.ErrValidation)
		}
	})
}

func (s *PassportServiceSuite) TestUpdate() {
	first := s.create("First", "First", 1, 100)
	s.create("Second", "First", 200, 300)

	s.Run("rename keeps range", func() {
		r := req("Renamed", "First", 1, 100)
		p, err := s.svc.Update(s.ctx, first.ID, r)
		s.Require().NoError(err)
		s.Equal("Renamed", p.Name)
	})

	s.Run("growing into neighbour", func() {
		_, err := s.svc.Update(s.ctx, first.ID, req("Renamed", "First", 1, 250))
		s.ErrorIs(err, apperr.ErrSerialNumberExists)
	})

	s.Run("missing id", func() {
		_, err := s.svc.Update(s.ctx, 1234, req("x", "First", 1, 100))
		s.ErrorIs(err, apperr.ErrPassportNotFound)
		s.Equal("Passport not found", err.Error())
	})

	s.Run("shrinking below registered devices", func() {
		u := &models.User{FullName: "Nia", Email: "nia@x", Phone: "1", Role: models.RoleUser}
		s.Require().NoError(s.st.Users().Create(s.ctx, u))
		s.Require().NoError(s.st.Devices().Create(s.ctx, &models.Device{SerialNumber: "First90", PassportID: first.ID, UserID: u.ID}))

		_, err := s.svc.Update(s.ctx, first.ID, req("Renamed", "First", 1, 50))
		s.ErrorIs(err, apperr.ErrPassportRangeInUse)

		_, err = s.svc.Update(s.ctx, first.ID, req("Renamed", "Moved", 1, 100))
		s.ErrorIs(err, apperr.ErrPassportRangeInUse)

		_, err = s.svc.Update(s.ctx, first.ID, req("Renamed", "First", 80, 120))
		s.NoError(err)
	})
}

func (s *PassportServiceSuite) TestFindBySerial() {
	s.create("First", "First", 1, 100)

	p, err := s.svc.FindBySerial(s.ctx, "First1")
	s.Require().NoError(err)
	s.Equal("First", p.Name)

	_, err = s.svc.FindBySerial(s.ctx, "Second1")
	s.ErrorIs(err, apperr.ErrPassportNotFoundSerial)
	s.Equal("Passport not found for serial number: Second1", err.Error())

	_, err = s.svc.FindBySerial(s.ctx, "First")
	s.ErrorIs(err, apperr.ErrInvalidSerialNumber)

	s.Run("served from cache on repeat", func() {
		_, err := s.svc.FindBySerial(s.ctx, "First7")
		s.Require().NoError(err)
		_, err = s.svc.FindBySerial(s.ctx, "First7")
		s.Require().NoError(err)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.PassportCache.WithLabelValues("hit")))
	})
}

func (s *PassportServiceSuite) TestLookupRacingUpdateIsNotCached() {
	h := &hookedStore{Memory: s.st}
	svc := New(h, zap.NewNop().Sugar(), WithCache(s.cache), WithMetrics(s.metrics))
	p, err := svc.Create(s.ctx, req("Old", "First", 1, 100))
	s.Require().NoError(err)

	h.afterCovering = func() {
		_, err := svc.Update(s.ctx, p.ID, req("New", "First", 1, 10))
		s.Require().NoError(err)
	}

	// the in-flight lookup still answers with what it read
	got, err := svc.FindBySerial(s.ctx, "First50")
	s.Require().NoError(err)
	s.Equal("Old", got.Name)

	_, err = svc.FindBySerial(s.ctx, "First50")
	s.ErrorIs(err, apperr.ErrPassportNotFoundSerial)

	got, err = svc.FindBySerial(s.ctx, "First5")
	s.Require().NoError(err)
	s.Equal("New", got.Name)
	s.EqualValues(10, got.ToSerialNumber)
}

func (s *PassportServiceSuite) TestDelete() {
	p := s.create("New", "New", 1, 100)
	_, err := s.svc.FindBySerial(s.ctx, "New1")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Delete(s.ctx, p.ID))

	_, err = s.svc.FindBySerial(s.ctx, "New1")
	s.ErrorIs(err, apperr.ErrPassportNotFoundSerial)
	s.Equal("Passport not found for serial number: New1", err.Error())

	s.ErrorIs(s.svc.Delete(s.ctx, p.ID), apperr.ErrPassportNotFound)

	s.Run("in use", func() {
		used := s.create("Used", "Used", 1, 10)
		u := &models.User{FullName: "Nia", Email: "nia@x", Phone: "1", Role: models.RoleUser}
		s.Require().NoError(s.st.Users().Create(s.ctx, u))
		s.Require().NoError(s.st.Devices().Create(s.ctx, &models.Device{SerialNumber: "Used1", PassportID: used.ID, UserID: u.ID}))
		s.ErrorIs(s.svc.Delete(s.ctx, used.ID), apperr.ErrPassportInUse)
	})
}

func (s *PassportServiceSuite) TestConcurrentCreateKeepsRangesDisjoint() {
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			_, err := s.svc.Create(s.ctx, req("Race", "Race", i, 100+i))
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		s.ErrorIs(err, apperr.ErrSerialNumberExists)
	}
	s.Equal(1, created)
}
