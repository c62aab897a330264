package zones

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

// blockingSource counts fetches and holds each one until release is closed.
type blockingSource struct {
	calls   atomic.Int32
	release chan struct{}
	zones   []models.AdZone
	err     error
}

func (s *blockingSource) FetchZones(ctx context.Context) ([]models.AdZone, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.zones, s.err
}

func sampleZones() []models.AdZone {
	return []models.AdZone{
		{ID: "z1", Position: "homepage_hero", Page: models.PageHome, AdType: models.AdTypeBanner728x90, ScriptID: models.ScriptIDRotate, IsEnabled: true, Rotation: true},
		{ID: "z2", Position: "watch_sidebar", Page: models.PageWatch, AdType: models.AdTypeBanner300x250, IsEnabled: false},
		{ID: "z3", Position: "global_popup", Page: models.PageAll, AdType: models.AdTypePopup, IsEnabled: true, Trigger: models.TriggerTime, Delay: 5},
	}
}

func newTestCache(t *testing.T, src Source) (*Cache, *observability.MockMetricsRegistry) {
	metrics := observability.NewMockMetricsRegistry()
	return NewCache(src, metrics, zaptest.NewLogger(t)), metrics
}

func TestGetZoneConfig_AbsentAndDisabledAreNil(t *testing.T) {
	c, _ := newTestCache(t, &blockingSource{zones: sampleZones()})
	ctx := context.Background()

	z, err := c.GetZoneConfig(ctx, "homepage_hero")
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, models.AdTypeBanner728x90, z.AdType)

	disabled, err := c.GetZoneConfig(ctx, "watch_sidebar")
	require.NoError(t, err)
	absent, err := c.GetZoneConfig(ctx, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, disabled)
	assert.Nil(t, absent)
}

func TestGetZoneConfig_ReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, &blockingSource{zones: sampleZones()})
	z, err := c.GetZoneConfig(context.Background(), "homepage_hero")
	require.NoError(t, err)
	z.IsEnabled = false

	again, err := c.GetZoneConfig(context.Background(), "homepage_hero")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	src := &blockingSource{zones: sampleZones(), release: make(chan struct{})}
	c, metrics := newTestCache(t, src)

	const callers = 25
	var wg sync.WaitGroup
	results := make(chan *models.AdZone, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			z, err := c.GetZoneConfig(context.Background(), "global_popup")
			assert.NoError(t, err)
			results <- z
		}()
	}

	// Let every caller reach the in-flight fetch before releasing it.
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(results)

	for z := range results {
		require.NotNil(t, z)
		assert.Equal(t, "z3", z.ID)
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, metrics.Count("zone_fetch", "ok"))

	_, err := c.GetZoneConfig(context.Background(), "homepage_hero")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "memoized after first fetch")
}

func TestCache_FailedFetchIsNotMemoized(t *testing.T) {
	src := &blockingSource{err: errors.New("db down")}
	c, metrics := newTestCache(t, src)
	ctx := context.Background()

	_, err := c.GetZoneConfig(ctx, "homepage_hero")
	assert.Error(t, err)
	assert.False(t, c.Loaded())

	src.err = nil
	src.zones = sampleZones()
	z, err := c.GetZoneConfig(ctx, "homepage_hero")
	require.NoError(t, err)
	assert.NotNil(t, z)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 1, metrics.Count("zone_fetch", "error"))
}

func TestCache_InvalidateRefetches(t *testing.T) {
	src := &blockingSource{zones: sampleZones()}
	c, metrics := newTestCache(t, src)
	ctx := context.Background()

	_, err := c.Zones(ctx)
	require.NoError(t, err)

	updated := sampleZones()
	updated[0].IsEnabled = false
	src.zones = updated

	z, err := c.GetZoneConfig(ctx, "homepage_hero")
	require.NoError(t, err)
	assert.NotNil(t, z, "stale until invalidated")

	c.Invalidate()
	z, err = c.GetZoneConfig(ctx, "homepage_hero")
	require.NoError(t, err)
	assert.Nil(t, z)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 1, metrics.Count("zone_invalidate"))
}

func TestCache_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	src := &blockingSource{zones: sampleZones(), release: make(chan struct{})}
	c, _ := newTestCache(t, src)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Zones(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan []models.AdZone, 1)
	go func() {
		zones, err := c.Zones(context.Background())
		assert.NoError(t, err)
		second <- zones
	}()
	time.Sleep(20 * time.Millisecond)
	close(src.release)

	assert.Len(t, <-second, 3)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, c.Loaded())
}

func TestCache_InvalidateDuringFetchDiscardsResult(t *testing.T) {
	src := &blockingSource{zones: sampleZones(), release: make(chan struct{})}
	c, _ := newTestCache(t, src)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Zones(context.Background())
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Invalidate()
	close(src.release)
	<-done

	assert.False(t, c.Loaded(), "result of a fetch started before Invalidate is not memoized")
}

func TestCache_FetchTimeout(t *testing.T) {
	src := &blockingSource{zones: sampleZones(), release: make(chan struct{})}
	c, metrics := newTestCache(t, src)
	c.SetFetchTimeout(10 * time.Millisecond)
	c.SetFetchTimeout(0)

	_, err := c.GetZoneConfig(context.Background(), "homepage_hero")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.Loaded())
	assert.Equal(t, 1, metrics.Count("zone_fetch", "error"))

	close(src.release)
	z, err := c.GetZoneConfig(context.Background(), "homepage_hero")
	require.NoError(t, err)
	assert.NotNil(t, z)
}
