package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"birthdaysite/pkg/logger"

	"github.com/joho/godotenv"
)

// Remote store drivers.
const (
	DriverFirebase = "firebase"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

type Config struct {
	Port        string
	LogLevel    string
	AdminSecret string

	RemoteDriver    string
	FirebaseURL     string
	FirebaseAuth    string
	Postgres        Postgres
	RemoteTimeout   time.Duration
	RefreshInterval time.Duration

	CachePath    string // empty keeps the local cache in memory
	OriginURL    string
	StaticDir    string
	CacheVersion string
}

type Postgres struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=require", p.User, p.Password, p.Host, p.Port, p.Name)
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		AdminSecret:  getenv("ADMIN_JWT_SECRET", ""),
		RemoteDriver: strings.ToLower(getenv("REMOTE_DRIVER", DriverNone)),
		FirebaseURL:  getenv("FIREBASE_DATABASE_URL", ""),
		FirebaseAuth: getenv("FIREBASE_AUTH", ""),
		Postgres: Postgres{
			User:     getenv("user", ""),
			Password: getenv("password", ""),
			Host:     getenv("host", ""),
			Port:     getenv("port", "5432"),
			Name:     getenv("dbname", ""),
		},
		CachePath:    getenv("CACHE_PATH", ""),
		OriginURL:    getenv("ORIGIN_URL", ""),
		StaticDir:    getenv("STATIC_DIR", "./public"),
		CacheVersion: getenv("CACHE_VERSION", "v1.0"),
	}

	var err error
	if cfg.RemoteTimeout, err = duration("REMOTE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = duration("REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.RemoteDriver {
	case DriverNone:
	case DriverFirebase:
		if cfg.FirebaseURL == "" {
			return nil, fmt.Errorf("REMOTE_DRIVER=firebase requires FIREBASE_DATABASE_URL")
		}
	case DriverPostgres:
		if cfg.Postgres.Host == "" || cfg.Postgres.Name == "" {
			return nil, fmt.Errorf("REMOTE_DRIVER=postgres requires host and dbname")
		}
	default:
		return nil, fmt.Errorf("unknown REMOTE_DRIVER %q", cfg.RemoteDriver)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
