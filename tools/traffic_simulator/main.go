package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/moovie-ads/internal/config"
	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

var (
	server       string
	visitors     int
	placementCSV string
	totalReq     int
	conc         int
	duration     time.Duration
	rate         float64
	displayRate  float64
	stats        bool
	flush        bool
	redisAddr    string
	debug        bool
	label        string
	jitter       float64
	abandonRate  float64
	timeScale    float64
)

var logger *zap.Logger

// HTTP client with proper resource limits
var httpClient *http.Client

// target is a kind:position pair. An empty kind takes the zone's.
type target struct {
	Kind     string
	Position string
}

var (
	targets    []target
	userAgents = []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 15_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
	}
	userIPs = []string{
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
	}
)

const statsInterval = 5 * time.Second

var (
	countSent      uint64
	countShown     uint64
	countSupp      uint64
	countErrors    uint64
	countDisplayed uint64
	countAbandoned uint64
	reasonsMu      sync.Mutex
	reasons        = map[string]uint64{}
)

// lockedRand is a goroutine safe rand source.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func parseTargets(csv string) ([]target, error) {
	var out []target
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, pos, ok := strings.Cut(part, ":")
		if !ok {
			kind, pos = "", part
		}
		if pos == "" {
			return nil, fmt.Errorf("placement %q must look like [kind:]position", part)
		}
		if kind != "" && !placement.Kind(kind).Valid() {
			return nil, fmt.Errorf("placement %q has unknown kind %q", part, kind)
		}
		out = append(out, target{Kind: kind, Position: pos})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no placements given")
	}
	return out, nil
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "ad engine base URL")
	flag.IntVar(&visitors, "visitors", 100, "number of unique visitors")
	flag.StringVar(&placementCSV, "placements", "banner:homepage_hero,popup:watch_popup,social_bar:social_bar", "comma-separated [kind:]position pairs")
	flag.IntVar(&totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&displayRate, "display-rate", 0.9, "probability a served popup is actually displayed")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "flush frequency and display keys before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.Float64Var(&abandonRate, "abandon-rate", 0.05, "probability a visitor leaves before the placement settles")
	flag.Float64Var(&timeScale, "time-scale", 0.01, "factor applied to popup time trigger delays")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	targets, err = parseTargets(placementCSV)
	if err != nil {
		logger.Fatal("parse placements", zap.Error(err))
	}

	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if flush {
		flushRedis()
	}

	r := &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}

	// One stable cookie, browser and address per simulated visitor.
	pool := make([]visitor, visitors)
	for i := range pool {
		pool[i] = visitor{
			ID:        uuid.NewString(),
			UserAgent: userAgents[r.Intn(len(userAgents))],
			IP:        userIPs[r.Intn(len(userIPs))],
		}
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			simulate(r, pool[r.Intn(len(pool))], targets[r.Intn(len(targets))])
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

func flushRedis() {
	addr := redisAddr
	if addr == "" {
		addr = config.Load().RedisAddr
	}
	store, err := db.InitRedis(addr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer store.Close()

	flushed := 0
	for _, pattern := range []string{db.FrequencyKey("*"), "moovie_ad_display:*"} {
		keys, err := store.Client.Keys(store.Ctx, pattern).Result()
		if err != nil {
			logger.Error("failed to get keys for pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if len(keys) > 0 {
			if err := store.Client.Del(store.Ctx, keys...).Err(); err != nil {
				logger.Error("failed to delete keys", zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			flushed += len(keys)
		}
	}
	logger.Info("redis frequency data flushed", zap.String("addr", addr), zap.Int("keys_deleted", flushed))
}

func simulate(r *lockedRand, v visitor, t target) {
	atomic.AddUint64(&countSent, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	eng := &remoteEngine{
		base:        server,
		client:      httpClient,
		visitor:     v,
		displayRate: displayRate,
		rnd:         r,
		onError: func(op string, err error) {
			atomic.AddUint64(&countErrors, 1)
			logger.Error("engine request failed", zap.String("op", op), zap.String("position", t.Position), zap.Error(err))
		},
		onDisplay: func(counted bool) {
			if counted {
				atomic.AddUint64(&countDisplayed, 1)
			}
			logger.Debug("popup displayed", zap.String("visitor_id", v.ID), zap.Bool("counted", counted))
		},
	}
	scaled := func(d time.Duration, f func()) placement.Stopper {
		return time.AfterFunc(time.Duration(float64(d)*timeScale), f)
	}

	d, abandoned, err := page(ctx, eng, v, t, r.Float64() < abandonRate, placement.WithAfterFunc(scaled))
	switch {
	case abandoned:
		atomic.AddUint64(&countAbandoned, 1)
		return
	case err != nil && !d.Show:
		atomic.AddUint64(&countErrors, 1)
		logger.Error("placement did not settle", zap.String("position", t.Position), zap.Error(err))
		return
	case err != nil:
		atomic.AddUint64(&countErrors, 1)
		logger.Error("placement error", zap.String("position", t.Position), zap.Error(err))
	}

	if !d.Show {
		atomic.AddUint64(&countSupp, 1)
		reasonsMu.Lock()
		reasons[string(d.Reason)]++
		reasonsMu.Unlock()
		logger.Debug("suppressed", zap.String("position", t.Position), zap.String("reason", string(d.Reason)))
		return
	}
	atomic.AddUint64(&countShown, 1)
}

func printStats() {
	reasonsMu.Lock()
	byReason := make(map[string]uint64, len(reasons))
	for k, v := range reasons {
		byReason[k] = v
	}
	reasonsMu.Unlock()
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", atomic.LoadUint64(&countSent)),
		zap.Uint64("shown", atomic.LoadUint64(&countShown)),
		zap.Uint64("suppressed", atomic.LoadUint64(&countSupp)),
		zap.Uint64("displayed", atomic.LoadUint64(&countDisplayed)),
		zap.Uint64("abandoned", atomic.LoadUint64(&countAbandoned)),
		zap.Uint64("errors", atomic.LoadUint64(&countErrors)),
		zap.Any("by_reason", byReason))
}
