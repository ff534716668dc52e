package shared_test

import (
	"testing"
	"time"

	"review_dashboard/internal/shared"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"API_BASE_URL", "PLACE_CACHE_TTL_SECONDS", "CORS_ORIGINS", "REDIS_ADDR", "MYSQL_DSN"} {
		t.Setenv(k, "")
	}
	c := shared.Load()
	if c.APIBase != "http://127.0.0.1:8000/api" {
		t.Fatalf("unexpected API base: %s", c.APIBase)
	}
	if c.PlaceCacheTTL != 24*time.Hour {
		t.Fatalf("unexpected cache ttl: %s", c.PlaceCacheTTL)
	}
	if len(c.CORSOrigins) != 2 {
		t.Fatalf("unexpected CORS origins: %v", c.CORSOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_RPS", "25")
	t.Setenv("WARM_WORKERS", "nope")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	c := shared.Load()
	if c.APIRPS != 25 {
		t.Fatalf("expected API_RPS=25, got %d", c.APIRPS)
	}
	if c.WarmWorkers != 4 {
		t.Fatalf("expected fallback to default workers, got %d", c.WarmWorkers)
	}
	if len(c.CORSOrigins) != 2 || c.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins: %v", c.CORSOrigins)
	}
}
