package logic

import (
	"context"
	"time"

	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"

	"go.uber.org/zap"
)

// DefaultFrequencyWindow is the rolling window a frequency record covers.
const DefaultFrequencyWindow = 24 * time.Hour

// FrequencyBackend persists per visitor frequency maps. *db.RedisStore
// implements it.
type FrequencyBackend interface {
	LoadFrequencyMap(ctx context.Context, visitorID string) (models.FrequencyMap, error)
	UpdateFrequencyMap(ctx context.Context, visitorID string, ttl time.Duration, fn func(models.FrequencyMap) (models.FrequencyMap, bool)) error
}

// FrequencyStore counts popup displays per visitor and ad type. Storage
// failures are logged and never block an ad: checks fail open.
type FrequencyStore struct {
	backend FrequencyBackend
	window  time.Duration
	now     func() time.Time
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

// NewFrequencyStore creates a FrequencyStore. A non-positive window uses
// DefaultFrequencyWindow.
func NewFrequencyStore(backend FrequencyBackend, window time.Duration, metrics observability.MetricsRegistry, logger *zap.Logger) *FrequencyStore {
	if window <= 0 {
		window = DefaultFrequencyWindow
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &FrequencyStore{backend: backend, window: window, now: time.Now, metrics: metrics, logger: logger}
}

// SetClock overrides the time source, for tests.
func (f *FrequencyStore) SetClock(now func() time.Time) {
	f.now = now
}

// PruneExpired deletes every record of m whose window has elapsed at now and
// reports how many were removed. Applying it twice is the same as once.
func PruneExpired(m models.FrequencyMap, now time.Time, window time.Duration) int {
	removed := 0
	for adType, rec := range m {
		if rec.Expired(now, window) {
			delete(m, adType)
			removed++
		}
	}
	return removed
}

// IsUnderCap reports whether another display of adType is allowed. It does
// not look at expiry; callers prune first. maxPerDay <= 0 means no cap.
func IsUnderCap(m models.FrequencyMap, adType models.AdType, maxPerDay int) bool {
	if maxPerDay <= 0 {
		return true
	}
	rec, ok := m[adType]
	if !ok {
		return true
	}
	return rec.Count < maxPerDay
}

// PruneExpired removes a visitor's expired records from storage.
func (f *FrequencyStore) PruneExpired(ctx context.Context, visitorID string) error {
	if f == nil || f.backend == nil {
		return ErrNilRedisStore
	}
	now := f.now()
	err := f.backend.UpdateFrequencyMap(ctx, visitorID, f.window, func(m models.FrequencyMap) (models.FrequencyMap, bool) {
		return m, PruneExpired(m, now, f.window) > 0
	})
	if err != nil {
		f.metrics.IncrementFrequencyStoreErrors("prune")
		return err
	}
	return nil
}

// CheckFrequencyCap prunes the visitor's expired records and then reports
// whether adType is still under maxPerDay. Any storage error allows the ad.
func (f *FrequencyStore) CheckFrequencyCap(ctx context.Context, visitorID string, adType models.AdType, maxPerDay int) bool {
	if maxPerDay <= 0 {
		return true
	}
	if f == nil || f.backend == nil {
		zap.L().Warn("frequency store unavailable, allowing ad", zap.Error(ErrNilRedisStore))
		return true
	}

	m, err := f.backend.LoadFrequencyMap(ctx, visitorID)
	if err != nil {
		f.metrics.IncrementFrequencyStoreErrors("load")
		f.logger.Error("frequency map load failed, allowing ad",
			zap.String("visitor_id", visitorID),
			zap.String("ad_type", string(adType)),
			zap.Error(err))
		return true
	}

	if PruneExpired(m, f.now(), f.window) > 0 {
		if err := f.PruneExpired(ctx, visitorID); err != nil {
			f.logger.Warn("frequency prune failed", zap.String("visitor_id", visitorID), zap.Error(err))
		}
	}
	return IsUnderCap(m, adType, maxPerDay)
}

// IncrementAdCount records one display of adType for the visitor, starting a
// fresh window when no live record exists. Failures are logged and returned
// for callers that care; the display itself is never undone.
func (f *FrequencyStore) IncrementAdCount(ctx context.Context, visitorID string, adType models.AdType) error {
	if f == nil || f.backend == nil {
		return ErrNilRedisStore
	}
	now := f.now()
	err := f.backend.UpdateFrequencyMap(ctx, visitorID, f.window, func(m models.FrequencyMap) (models.FrequencyMap, bool) {
		PruneExpired(m, now, f.window)
		rec, ok := m[adType]
		if !ok {
			rec = models.FrequencyRecord{Timestamp: now.UnixMilli()}
		}
		rec.Count++
		m[adType] = rec
		return m, true
	})
	if err != nil {
		f.metrics.IncrementFrequencyStoreErrors("increment")
		f.logger.Error("frequency increment failed",
			zap.String("visitor_id", visitorID),
			zap.String("ad_type", string(adType)),
			zap.Error(err))
		return err
	}
	return nil
}
