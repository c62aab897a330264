package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP resolves viewer countries from a MaxMind DB, or from a JSON list of
// CIDR ranges when the file is not a MaxMind DB. A nil *GeoIP resolves
// nothing.
type GeoIP struct {
	db     *geoip2.Reader
	ranges []cidrCountry
}

type cidrCountry struct {
	net     *net.IPNet
	country string
}

// Range is one entry of the JSON fallback format.
type Range struct {
	Net     string `json:"net"`
	Country string `json:"country"`
}

// Init opens the database located at path.
func Init(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	var entries []Range
	if jerr := json.Unmarshal(data, &entries); jerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return FromRanges(entries), nil
}

// FromRanges builds a GeoIP from CIDR ranges. Malformed ranges are skipped.
func FromRanges(entries []Range) *GeoIP {
	g := &GeoIP{}
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e.Net); err == nil {
			g.ranges = append(g.ranges, cidrCountry{net: n, country: e.Country})
		}
	}
	return g
}

// Country returns the ISO country code for ip, or "" when unknown.
func (g *GeoIP) Country(ip net.IP) string {
	if g == nil || ip == nil {
		return ""
	}
	if g.db != nil {
		if rec, err := g.db.Country(ip); err == nil {
			return rec.Country.IsoCode
		}
	}
	for _, r := range g.ranges {
		if r.net.Contains(ip) {
			return r.country
		}
	}
	return ""
}

// Close releases resources associated with the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
