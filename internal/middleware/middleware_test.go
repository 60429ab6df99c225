package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func serve(e *echo.Echo, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	log, _ := logtest.NewNullLogger()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1,
		RefillInterval: time.Hour, TTL: 2 * time.Hour, KeyStrategy: "ip", Prefix: "rl"}

	e := echo.New()
	e.POST("/hold", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, log))

	ip := map[string]string{echo.HeaderXRealIP: "10.0.0.1"}
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/hold", ip).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/hold", ip).Code)

	rec := serve(e, http.MethodPost, "/hold", ip)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := map[string]string{echo.HeaderXRealIP: "10.0.0.2"}
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/hold", other).Code)
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	log, hook := logtest.NewNullLogger()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1,
		RefillInterval: time.Second, TTL: time.Minute, KeyStrategy: "ip", Prefix: "rl"}
	mr.Close()

	e := echo.New()
	e.POST("/hold", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, log))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/hold", nil).Code)
	}
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "allowing request")
}

func TestRedisCache_HitAfterMiss(t *testing.T) {
	_, rdb := newRedis(t)
	log, _ := logtest.NewNullLogger()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true},
		TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20}

	calls := 0
	e := echo.New()
	e.GET("/flights", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"n": calls})
	}, NewRedisCache(cfg, rdb, log))

	first := serve(e, http.MethodGet, "/flights", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/flights", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
	assert.True(t, strings.HasPrefix(second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON))
}

func TestRedisCache_SkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	log, _ := logtest.NewNullLogger()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}

	calls := 0
	e := echo.New()
	e.GET("/flights/:id/seats", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flight not found"})
	}, NewRedisCache(cfg, rdb, log))

	serve(e, http.MethodGet, "/flights/9/seats", nil)
	rec := serve(e, http.MethodGet, "/flights/9/seats", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestPayloadRoundTripRejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func signed(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, ok := UserID(c)
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, id)
	}, JWTAuth("s3cret"))

	rec := serve(e, http.MethodGet, "/me", nil)
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + signed(t, "s3cret", "user-42")})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", rec.Body.String())

	rec = serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + signed(t, "other", "user-42")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	e := echo.New()
	e.Use(RequestLogger(log))
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "taken") })

	rec := serve(e, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, http.StatusConflict, hook.LastEntry().Data["status"])
	assert.Equal(t, "/boom", hook.LastEntry().Data["path"])
}
