package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type visitorKey struct{}

// Visitor makes sure every request carries a stable visitor ID. The ID is
// read from cookieName and, when missing or malformed, a new UUID is issued
// and set on the response.
func Visitor(cookieName string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vid := ""
			if c, err := r.Cookie(cookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					vid = c.Value
				}
			}
			if vid == "" {
				vid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    vid,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithVisitorID(r.Context(), vid)))
		})
	}
}

// WithVisitorID returns a copy of ctx carrying vid.
func WithVisitorID(ctx context.Context, vid string) context.Context {
	return context.WithValue(ctx, visitorKey{}, vid)
}

// VisitorIDFromContext returns the visitor ID set by Visitor, or "".
func VisitorIDFromContext(ctx context.Context) string {
	vid, _ := ctx.Value(visitorKey{}).(string)
	return vid
}
