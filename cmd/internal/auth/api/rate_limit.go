package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// lockoutTier maps a failure count threshold to a block duration.
type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// evaluateWindowThrottle blocks when at least max failures fall inside
// the trailing window. Retry time is when the oldest in-window failure
// ages out.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}

	cut := now.Add(-window)
	count := 0
	var oldestInWindow time.Time
	for _, f := range failures {
		if f.Before(cut) {
			continue
		}
		count++
		if oldestInWindow.IsZero() || f.Before(oldestInWindow) {
			oldestInWindow = f
		}
	}

	if count < max {
		return false, 0
	}
	retry := oldestInWindow.Add(window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return true, retry
}

// evaluateProgressiveLockout applies escalating block durations. Tiers
// are ordered highest threshold first; the first tier whose threshold is
// met decides, blocking until the most recent failure plus its duration.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}

	var latest time.Time
	for _, f := range failures {
		if f.After(latest) {
			latest = f
		}
	}

	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		until := latest.Add(tier.Duration)
		if until.After(now) {
			return true, until.Sub(now)
		}
		return false, 0
	}
	return false, 0
}

// checkLoginThrottle consults recent login failures from this IP before
// any credential work. This is a per-source shield; the per-account
// lockout lives in the identity layer.
func (h *Handler) checkLoginThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || h.failures == nil {
		return false, 0, nil
	}

	lookback := h.cfg.LoginIPWindow
	if h.cfg.LockoutSevereDuration > lookback {
		lookback = h.cfg.LockoutSevereDuration
	}

	failures, err := h.failures.RecentLoginFailures(ctx, ip, now.Add(-lookback))
	if err != nil {
		return false, 0, err
	}

	if blocked, retry := evaluateWindowThrottle(now, failures, h.cfg.LoginIPMax, h.cfg.LoginIPWindow); blocked {
		return true, retry, nil
	}
	if blocked, retry := evaluateProgressiveLockout(now, failures, h.cfg.lockoutTiers()); blocked {
		return true, retry, nil
	}
	return false, 0, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
