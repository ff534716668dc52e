package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv         string
	LogLevel       string
	HTTPAddr       string
	MetricsAddr    string
	CORSOrigins    []string
	APIBase        string
	APIKey         string
	APIRPS         int
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	MySQLDSN       string
	PlaceCacheTTL  time.Duration
	WarmWorkers    int
	ReloadInterval time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer config value")
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		LogLevel:       env("LOG_LEVEL", "info"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ""),
		CORSOrigins:    list(env("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		APIBase:        env("API_BASE_URL", "http://127.0.0.1:8000/api"),
		APIKey:         env("API_KEY", ""),
		APIRPS:         atoi("API_RPS", 10),
		RedisAddr:      env("REDIS_ADDR", ""),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		MySQLDSN:       env("MYSQL_DSN", ""),
		PlaceCacheTTL:  time.Duration(atoi("PLACE_CACHE_TTL_SECONDS", 86400)) * time.Second,
		WarmWorkers:    atoi("WARM_WORKERS", 4),
		ReloadInterval: time.Duration(atoi("RELOAD_INTERVAL_SECONDS", 0)) * time.Second,
	}
	if c.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR is empty, using in-process cache")
	}
	if c.MySQLDSN == "" {
		log.Info().Msg("MYSQL_DSN is empty, moderation journal disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
