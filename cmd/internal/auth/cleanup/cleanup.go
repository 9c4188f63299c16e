// Package cleanup runs the background sweeps that keep the sessions
// table bounded. An hourly sweep revokes expired live rows so listings
// stay truthful between deletions; a daily sweep deletes expired rows
// and revoked rows past the audit retention window.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store is the narrow persistence surface the sweeper needs.
type Store interface {
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config tunes sweep cadence and retention.
type Config struct {
	// RevokeInterval is the cadence of the expiry-revocation sweep.
	RevokeInterval time.Duration
	// DeleteInterval is the cadence of the deletion sweep.
	DeleteInterval time.Duration
	// RevokedRetention is how long revoked rows are kept for auditing
	// before the deletion sweep removes them.
	RevokedRetention time.Duration
	// SweepTimeout bounds a single sweep pass.
	SweepTimeout time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		RevokeInterval:   time.Hour,
		DeleteInterval:   24 * time.Hour,
		RevokedRetention: 7 * 24 * time.Hour,
		SweepTimeout:     30 * time.Second,
	}
}

// Metrics counts sweep outcomes.
type Metrics struct {
	SweptRows *prometheus.CounterVec
	Errors    prometheus.Counter
}

// NewMetrics builds and registers the sweeper metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SweptRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyline_session_sweep_rows_total",
			Help: "Session rows affected by background sweeps, by kind.",
		}, []string{"kind"}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_session_sweep_errors_total",
			Help: "Background sweep passes that failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SweptRows, m.Errors)
	}
	return m
}

// Sweeper owns the two background sweep loops.
type Sweeper struct {
	cfg     Config
	store   Store
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// New constructs a Sweeper. A nil logger falls back to slog.Default;
// nil metrics disables counting.
func New(cfg Config, store Store, log *slog.Logger, metrics *Metrics) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RevokeInterval <= 0 {
		cfg.RevokeInterval = time.Hour
	}
	if cfg.DeleteInterval <= 0 {
		cfg.DeleteInterval = 24 * time.Hour
	}
	if cfg.RevokedRetention <= 0 {
		cfg.RevokedRetention = 7 * 24 * time.Hour
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 30 * time.Second
	}
	return &Sweeper{
		cfg:     cfg,
		store:   store,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is canceled, driving both sweep loops.
// Each pass is isolated: a failing sweep logs and waits for the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	revokeTicker := time.NewTicker(s.cfg.RevokeInterval)
	defer revokeTicker.Stop()
	deleteTicker := time.NewTicker(s.cfg.DeleteInterval)
	defer deleteTicker.Stop()

	s.log.Info("session sweeper started",
		"revoke_interval", s.cfg.RevokeInterval.String(),
		"delete_interval", s.cfg.DeleteInterval.String(),
		"revoked_retention", s.cfg.RevokedRetention.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session sweeper stopped")
			return
		case <-revokeTicker.C:
			s.revokePass(ctx)
		case <-deleteTicker.C:
			s.deletePass(ctx)
		}
	}
}

func (s *Sweeper) revokePass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()

	now := s.now()
	n, err := s.store.RevokeExpired(ctx, now)
	if err != nil {
		s.countError()
		s.log.Error("expiry revocation sweep failed", "error", err)
		return
	}
	s.countRows("revoke_expired", n)
	if n > 0 {
		s.log.Info("expiry revocation sweep", "revoked", n)
	}
}

func (s *Sweeper) deletePass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()

	now := s.now()

	deleted, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		s.countError()
		s.log.Error("expiry deletion sweep failed", "error", err)
	} else {
		s.countRows("delete_expired", deleted)
	}

	purged, err := s.store.DeleteRevokedBefore(ctx, now.Add(-s.cfg.RevokedRetention))
	if err != nil {
		s.countError()
		s.log.Error("revoked retention sweep failed", "error", err)
	} else {
		s.countRows("delete_revoked", purged)
	}

	if deleted > 0 || purged > 0 {
		s.log.Info("deletion sweep", "expired_deleted", deleted, "revoked_purged", purged)
	}
}

func (s *Sweeper) countRows(kind string, n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.SweptRows.WithLabelValues(kind).Add(float64(n))
	}
}

func (s *Sweeper) countError() {
	if s.metrics != nil {
		s.metrics.Errors.Inc()
	}
}
