package logic

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/moovie-ads/internal/geoip"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// ResolveViewerFromUA parses a raw User-Agent string into device details.
func ResolveViewerFromUA(uaString string) models.Viewer {
	u := uasurfer.Parse(uaString)

	var deviceType string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = "desktop"
	case uasurfer.DevicePhone:
		deviceType = "mobile"
	case uasurfer.DeviceTablet:
		deviceType = "tablet"
	default:
		deviceType = "other"
	}

	v := u.OS.Version
	bv := u.Browser.Version
	return models.Viewer{
		DeviceType: deviceType,
		OS:         fmt.Sprintf("%s %d.%d.%d", u.OS.Name.String(), v.Major, v.Minor, v.Patch),
		Browser:    fmt.Sprintf("%s %d.%d.%d", u.Browser.Name.String(), bv.Major, bv.Minor, bv.Patch),
		IsBot:      u.IsBot(),
	}
}

// ClientIP returns the first X-Forwarded-For address, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

// ResolveViewer builds the Viewer for an HTTP request.
func ResolveViewer(r *http.Request, g *geoip.GeoIP, visitorID string) models.Viewer {
	v := ResolveViewerFromUA(r.Header.Get("User-Agent"))
	v.VisitorID = visitorID
	v.Country = g.Country(ClientIP(r))
	return v
}
