package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-me-in-production"

var (
	ErrWeakJWTSecret      = errors.New("production deployment requires a JWT_SECRET of at least 32 characters")
	ErrUnknownDBDriver    = errors.New("DB_DRIVER must be one of sqlite, pgx, mongodb")
	ErrUnknownStorage     = errors.New("STORAGE_DRIVER must be one of s3, local")
	ErrMissingS3Bucket    = errors.New("STORAGE_DRIVER=s3 requires S3_BUCKET and S3_REGION")
	ErrInvalidPageSizeCfg = errors.New("PAGE_SIZE_DEFAULT must be between 1 and PAGE_SIZE_MAX")
	ErrInvalidProxy       = errors.New("TRUSTED_PROXIES entries must be IP addresses or CIDR ranges")
)

type Config struct {
	// Application
	AppName         string        `env:"APP_NAME" envDefault:"Fileshare"`
	AppEnv          string        `env:"APP_ENV,required"` // 'development' or 'production'
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:8090"`
	Port            string        `env:"PORT" envDefault:"8090"`
	ClientURL       string        `env:"CLIENT_URL" envDefault:"http://localhost:3000"` // CORS origin and share links
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","` // X-Forwarded-For is ignored unless the peer is listed

	// Database
	DBDriver      string        `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite, pgx or mongodb
	DBConnection  string        `env:"DB_CONNECTION" envDefault:"./data/fileshare.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"`
	MongoURL      string        `env:"MONGODB_URL" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string        `env:"MONGODB_DATABASE" envDefault:"fileshare"`
	RedisURL      string        `env:"REDIS_URL"` // Optional: shared cache and rate-limit store
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// Security
	JWTSecret  string        `env:"JWT_SECRET,required"`
	JWTExpiry  time.Duration `env:"JWT_EXPIRY" envDefault:"168h"` // 7 days
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`

	// Storage
	StorageDriver          string        `env:"STORAGE_DRIVER" envDefault:"local"` // s3 or local
	StorageFolder          string        `env:"STORAGE_FOLDER" envDefault:"fileshare"`
	LocalStoragePath       string        `env:"LOCAL_STORAGE_PATH" envDefault:"./data/uploads"`
	S3Region               string        `env:"S3_REGION"`
	S3Bucket               string        `env:"S3_BUCKET"`
	S3AccessKey            string        `env:"S3_ACCESS_KEY"`
	S3SecretKey            string        `env:"S3_SECRET_KEY"`
	S3Endpoint             string        `env:"S3_ENDPOINT"` // Optional: MinIO, R2, Spaces
	S3PresignExpiryPublic  time.Duration `env:"S3_PRESIGN_EXPIRY_PUBLIC" envDefault:"168h"` // 7 days
	S3PresignExpiryPrivate time.Duration `env:"S3_PRESIGN_EXPIRY_PRIVATE" envDefault:"1h"`

	// Uploads
	MaxFileSize      int64    `env:"MAX_FILE_SIZE" envDefault:"10485760"` // 10 MiB
	AllowedFileTypes []string `env:"ALLOWED_FILE_TYPES" envDefault:".pdf,.doc,.docx,.txt,.jpg,.png" envSeparator:","`

	// Listings
	PageSizeDefault int `env:"PAGE_SIZE_DEFAULT" envDefault:"10"`
	PageSizeMax     int `env:"PAGE_SIZE_MAX" envDefault:"100"`

	// Observability (optional)
	SentryDSN string `env:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.normalize()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.AppURL = strings.TrimSuffix(c.AppURL, "/")
	c.ClientURL = strings.TrimSuffix(c.ClientURL, "/")

	types := c.AllowedFileTypes[:0]
	for _, t := range c.AllowedFileTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		types = append(types, t)
	}
	c.AllowedFileTypes = types
}

// Validate checks cross-field constraints. Production additionally
// rejects weak secrets.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "pgx", "mongodb":
	default:
		return ErrUnknownDBDriver
	}

	switch c.StorageDriver {
	case "local":
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrMissingS3Bucket
		}
	default:
		return ErrUnknownStorage
	}

	if c.PageSizeMax < 1 || c.PageSizeDefault < 1 || c.PageSizeDefault > c.PageSizeMax {
		return ErrInvalidPageSizeCfg
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if c.IsProduction() && (c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32) {
		return ErrWeakJWTSecret
	}

	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address is a
// single-host range.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, raw)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, raw)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) UsesMongo() bool {
	return c.DBDriver == "mongodb"
}

// ShareURL is the client-side link for a file.
func (c *Config) ShareURL(fileID string) string {
	return c.ClientURL + "/shared/" + fileID
}
