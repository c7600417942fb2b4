package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"generated when missing", "", false},
		{"propagated when valid", "req-42.a:b_c", true},
		{"replaced when unsafe", "bad id\r\ninjected", false},
		{"replaced when too long", strings.Repeat("a", maxCorrelationIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(CorrelationIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
			if tt.keep {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
			}
		})
	}
}

func TestWriteJSONErrorDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithCorrelationID(req.Context(), "cid-1"))
	rec := httptest.NewRecorder()

	WriteJSONErrorDetail(rec, req, http.StatusBadRequest, "invalid_filter", "amount_min: not a number")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeError(t, rec)
	assert.Equal(t, ErrorResponse{Error: "invalid_filter", Detail: "amount_min: not a number", CorrelationID: "cid-1"}, body)
}

func TestBodySizeLimit(t *testing.T) {
	validator, err := NewJSONSchemaValidator(`{"type": "object"}`)
	require.NoError(t, err)
	h := BodySizeLimit(16)(validator.Middleware(noContent))

	// declared length over the limit
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bucket":"in_progress"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// unknown length, cut off while reading
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bucket":"in_progress"}`))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestJSONSchemaValidator(t *testing.T) {
	validator, err := NewJSONSchemaValidator(`{
		"type": "object",
		"additionalProperties": false,
		"properties": {"bucket": {"enum": ["done", "void"]}}
	}`)
	require.NoError(t, err)

	var body string
	h := validator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		body     string
		status   int
		code     string
		inDetail string
	}{
		{name: "valid body reaches handler", body: `{"bucket":"done"}`, status: http.StatusNoContent},
		{name: "malformed json", body: `{"bucket":`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "enum violation", body: `{"bucket":"open"}`, status: http.StatusBadRequest, code: "validation_error", inDetail: "/bucket"},
		{name: "unknown property", body: `{"page":2}`, status: http.StatusBadRequest, code: "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
			require.Equal(t, tt.status, rec.Code)
			if tt.code == "" {
				assert.Equal(t, tt.body, body)
				return
			}
			got := decodeError(t, rec)
			assert.Equal(t, tt.code, got.Error)
			assert.Contains(t, got.Detail, tt.inDetail)
		})
	}
}

func TestIPAllowlist(t *testing.T) {
	allow, err := ParseCIDRAllowlist([]string{"10.0.0.0/8", " 192.168.1.7 ", ""})
	require.NoError(t, err)
	require.Len(t, allow, 2)

	h := IPAllowlist(allow)(noContent)
	for addr, want := range map[string]int{
		"10.2.3.4:5000":    http.StatusNoContent,
		"192.168.1.7:5000": http.StatusNoContent,
		"192.168.1.8:5000": http.StatusForbidden,
		"garbage":          http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, addr)
	}

	_, err = ParseCIDRAllowlist([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := &RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 2, RefillRate: 0.0000001}
	h := RateLimitMiddleware(limiter, KeyByIP, RateLimitOptions{})(noContent)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
		if i == 2 {
			assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRateLimitMiddleware_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	limiter := &RedisTokenBucket{Redis: rdb, Capacity: 5, RefillRate: 1}
	mr.Close()

	rec := httptest.NewRecorder()
	RateLimitMiddleware(limiter, KeyByIP, RateLimitOptions{})(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	RateLimitMiddleware(limiter, KeyByIP, RateLimitOptions{FailOpen: true})(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
