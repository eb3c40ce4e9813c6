package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/pkg/limiter"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// recordingSink captures audit writes synchronously for assertions
type recordingSink struct {
	entries []sinkEntry
}

type sinkEntry struct {
	userID  *string
	action  string
	result  string
	details map[string]interface{}
}

func (r *recordingSink) LogAttempt(_ *uint64, userID *string, _, _, action, result string, details map[string]interface{}) {
	r.entries = append(r.entries, sinkEntry{userID: userID, action: action, result: result, details: details})
}

func newRateLimitedRouter(limit int, sink AuditSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	l := limiter.New(limiter.NewMemoryStore())
	l.SetBucket("code", limiter.BucketConfig{
		Limit:    limit,
		Window:   time.Minute,
		Cooldown: 15 * time.Minute,
	})

	r := gin.New()
	r.POST("/redeem", RateLimit(l, "code", domain.ActionCodeAttempt, sink), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestRateLimit_AllowsWithinLimit(t *testing.T) {
	r := newRateLimitedRouter(5, nil)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/redeem", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	r := newRateLimitedRouter(2, nil)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/redeem", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/redeem", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_BlockedRequestWritesAuditEntry(t *testing.T) {
	sink := &recordingSink{}
	r := newRateLimitedRouter(1, sink)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/redeem", nil)
		r.ServeHTTP(w, req)
	}

	// First request passed, the two blocked ones each wrote one entry.
	if assert.Len(t, sink.entries, 2) {
		for _, e := range sink.entries {
			assert.Equal(t, domain.ActionCodeAttempt, e.action)
			assert.Equal(t, domain.ResultBlocked, e.result)
			assert.Equal(t, "rate_limited", e.details["reason"])
		}
	}
}

func TestRateLimit_BlockedEntryCarriesUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &recordingSink{}
	l := limiter.New(limiter.NewMemoryStore())
	l.SetBucket("code", limiter.BucketConfig{
		Limit:    1,
		Window:   time.Minute,
		Cooldown: 15 * time.Minute,
	})

	r := gin.New()
	identity := func(c *gin.Context) { c.Set("userID", "user1"); c.Next() }
	r.POST("/redeem", identity, RateLimit(l, "code", domain.ActionCodeAttempt, sink), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/redeem", nil)
		r.ServeHTTP(w, req)
	}

	if assert.Len(t, sink.entries, 1) {
		if assert.NotNil(t, sink.entries[0].userID) {
			assert.Equal(t, "user1", *sink.entries[0].userID)
		}
	}
}

func TestRateLimit_NilLimiterFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/redeem", RateLimit(nil, "code", domain.ActionCodeAttempt, nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/redeem", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_UnknownBucketFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := limiter.New(limiter.NewMemoryStore())
	r := gin.New()
	r.POST("/redeem", RateLimit(l, "nope", domain.ActionCodeAttempt, nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/redeem", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/download/x", DownloadHeaders(), func(c *gin.Context) {
		c.String(http.StatusOK, "payload")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/download/x", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}
