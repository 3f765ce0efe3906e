/*
Package config loads runtime configuration from the environment, with
an optional .env file for local development.

PURPOSE:
  One place that knows every knob the server has. Values resolve in
  order: process environment, then .env file, then defaults. Flags in
  cmd/server/main.go override everything for ad-hoc runs.

VARIABLES:
  HTTP_PORT       Server port                   (default 8080)
  DB_PATH         SQLite database path          (default medpal.db)
  INSIGHTS_TTL    Insights cache TTL            (default 60s)
  CORS_ORIGINS    Comma-separated allowed origins
*/
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	Port        int
	DBPath      string
	InsightsTTL time.Duration
	CORSOrigins []string
}

// Load reads configuration from a .env file (if present) and the
// process environment. Missing values fall back to defaults; it
// never fails on an absent .env.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        8080,
		DBPath:      "medpal.db",
		InsightsTTL: 60 * time.Second,
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("INSIGHTS_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			cfg.InsightsTTL = ttl
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	return cfg
}
