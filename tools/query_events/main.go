package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/patrickwarner/moovie-ads/internal/analytics"
	"github.com/patrickwarner/moovie-ads/internal/config"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var (
		visitor string
		typ     string
		adType  string
		since   time.Duration
		limit   int
		reasons bool
		dsn     string
	)
	flag.StringVar(&visitor, "visitor", "", "visitor ID")
	flag.StringVar(&typ, "type", "", "event type: served, suppressed or displayed")
	flag.StringVar(&adType, "ad-type", "", "ad type")
	flag.DurationVar(&since, "since", 24*time.Hour, "look back window")
	flag.IntVar(&limit, "limit", analytics.DefaultQueryLimit, "maximum events")
	flag.BoolVar(&reasons, "reasons", false, "print suppression counts by reason instead of events")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.Parse()

	if dsn == "" {
		dsn = config.Load().ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(dsn, analytics.PoolConfig{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()
	from := time.Now().Add(-since)

	var out any
	if reasons {
		out, err = a.CountByReason(ctx, from)
	} else {
		out, err = a.QueryEvents(ctx, analytics.EventFilter{
			VisitorID: visitor,
			EventType: models.AdEventType(typ),
			AdType:    models.AdType(adType),
			Since:     from,
			Limit:     limit,
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
