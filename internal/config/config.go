package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultConnectionString = "Host=localhost;Port=5432;Database=wallet_ledger_db;Username=postgres;Password=postgres;Timeout=30;CommandTimeout=30"
const defaultStalePendingAge = 15 * time.Minute

type Config struct {
	DatabaseDSN     string
	MigrationsDir   string
	StalePendingAge time.Duration
}

func Load() (Config, error) {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	conn := getEnv("DATABASE_DSN", defaultConnectionString)

	stalePendingAge := defaultStalePendingAge
	if raw := strings.TrimSpace(os.Getenv("STALE_PENDING_AGE")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse STALE_PENDING_AGE: %w", err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("STALE_PENDING_AGE must be positive")
		}
		stalePendingAge = parsed
	}

	return Config{
		DatabaseDSN:     normalizeConnectionString(conn),
		MigrationsDir:   "migrations",
		StalePendingAge: stalePendingAge,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func normalizeConnectionString(raw string) string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	hasSSLMode := false

	for _, part := range parts {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}

		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])

		switch key {
		case "host":
			out = append(out, "host="+val)
		case "port":
			out = append(out, "port="+val)
		case "database":
			out = append(out, "dbname="+val)
		case "username":
			out = append(out, "user="+val)
		case "password":
			out = append(out, "password="+val)
		case "timeout", "connect timeout":
			out = append(out, "connect_timeout="+val)
		case "commandtimeout", "command timeout":
			out = append(out, "statement_timeout="+val+"s")
		case "sslmode":
			hasSSLMode = true
			out = append(out, "sslmode="+val)
		default:
			out = append(out, key+"="+val)
		}
	}

	if len(out) == 0 {
		return raw
	}

	if !hasSSLMode {
		out = append(out, "sslmode=disable")
	}

	return strings.Join(out, " ")
}
