package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestVisitorIssuesCookie(t *testing.T) {
	var got string
	h := Visitor("moovie_vid", 24*time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = VisitorIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ads/header", nil))

	_, err := uuid.Parse(got)
	require.NoError(t, err)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "moovie_vid", cookies[0].Name)
	assert.Equal(t, got, cookies[0].Value)
	assert.Equal(t, 86400, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
}

func TestVisitorReusesCookie(t *testing.T) {
	existing := uuid.NewString()
	var got string
	h := Visitor("moovie_vid", time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = VisitorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "moovie_vid", Value: existing})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, existing, got)
	assert.Empty(t, rr.Result().Cookies())
}

func TestVisitorReplacesMalformedCookie(t *testing.T) {
	var got string
	h := Visitor("moovie_vid", time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = VisitorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "moovie_vid", Value: "not-a-uuid"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEqual(t, "not-a-uuid", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestRequestLoggerCarriesVisitor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	h := Visitor("moovie_vid", time.Hour)(WithRequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFromRequest(r, zap.NewNop()).Info("hello")
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Contains(t, fields, "visitor_id")
}

func TestLoggerFromContextFallback(t *testing.T) {
	fallback := zap.NewNop()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Same(t, fallback, LoggerFromRequest(req, fallback))
}
