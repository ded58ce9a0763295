package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts registry mutations and passport lookups.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PassportMutations *prometheus.CounterVec
	DevicesRegistered prometheus.Counter
	RenovationsAdded  prometheus.Counter
	UsersRegistered   prometheus.Counter
	PasswordsChanged  prometheus.Counter
	PassportCache     *prometheus.CounterVec
	LookupDuration    prometheus.Histogram
	registry          prometheus.Gatherer
}

// New registers all collectors on reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration panics.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PassportMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warranty_passport_mutations_total",
			Help: "Passport create, update and delete operations",
		}, []string{"op"}),
		DevicesRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "warranty_devices_registered_total",
			Help: "Devices registered against a passport",
		}),
		RenovationsAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "warranty_renovations_total",
			Help: "Renovations appended to device history",
		}),
		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "warranty_users_registered_total",
			Help: "Self-service user registrations",
		}),
		PasswordsChanged: f.NewCounter(prometheus.CounterOpts{
			Name: "warranty_password_changes_total",
			Help: "Successful user password changes",
		}),
		PassportCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warranty_passport_cache_total",
			Help: "Passport-by-serial cache lookups by result",
		}, []string{"result"}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warranty_passport_lookup_duration_seconds",
			Help:    "Duration of passport-by-serial resolution",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		registry: reg,
	}
}

func (m *Metrics) PassportMutated(op string) {
	if m == nil {
		return
	}
	m.PassportMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) DeviceRegistered() {
	if m == nil {
		return
	}
	m.DevicesRegistered.Inc()
}

func (m *Metrics) RenovationAdded() {
	if m == nil {
		return
	}
	m.RenovationsAdded.Inc()
}

func (m *Metrics) UserRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

func (m *Metrics) PasswordChanged() {
	if m == nil {
		return
	}
	m.PasswordsChanged.Inc()
}

// CacheResult records "hit" or "miss".
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PassportCache.WithLabelValues(result).Inc()
}

// ObserveLookup records the duration of a passport lookup started at start.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(time.Since(start).Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
