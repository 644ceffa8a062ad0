package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiterAllowsBurstThenDenies(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         4,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	key := "10.0.0.1"
	for i := 0; i < 4; i++ {
		if !limiter.Allow(key) {
			t.Errorf("request %d within burst should be allowed", i)
		}
	}
	if limiter.Allow(key) {
		t.Error("request after burst should be denied")
	}

	// One token replenishes per second at 60/min
	time.Sleep(1100 * time.Millisecond)
	if !limiter.Allow(key) {
		t.Error("request after replenishment should be allowed")
	}
}

func TestLimiterIsolatesClients(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.1")
	if limiter.Allow("10.0.0.1") {
		t.Error("first client should be rate limited")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("second client has its own bucket and should pass")
	}
}

func TestLimiterReplenishmentRate(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	key := "10.0.0.3"
	if !limiter.Allow(key) {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow(key) {
		t.Fatal("second immediate request should be denied")
	}

	time.Sleep(120 * time.Millisecond)
	if !limiter.Allow(key) {
		t.Error("request after one replenishment interval should be allowed")
	}
}

func TestMiddlewareLimitsByClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/v1/scores", func(c *gin.Context) {
		c.String(200, "ok")
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/v1/scores", nil)
		req.RemoteAddr = "192.0.2.1:4321"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests should pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request should be limited, got %d", statuses[2])
	}

	// A different address is unaffected
	req := httptest.NewRequest("GET", "/v1/scores", nil)
	req.RemoteAddr = "192.0.2.2:4321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other client should pass, got %d", w.Code)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want 60", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want 10", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval = %v, want 1m", cfg.CleanupInterval)
	}
}
