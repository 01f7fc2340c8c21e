package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // application environment (development, test, production)
	Port string // HTTP port to listen on

	DBDriver   string // mysql or sqlite
	DBUser     string
	DBPass     string // optional
	DBHost     string
	DBPort     string
	DBName     string
	SQLitePath string

	AccessSecret   string        // signs access tokens
	RefreshSecret  string        // signs refresh tokens, must differ from AccessSecret
	AccessTTL      time.Duration // access token lifetime
	RefreshTTL     time.Duration // refresh token lifetime (also the cookie max age)
	BcryptCost     int
	AllowedOrigins []string // exact-match CORS allow-list

	LogLevel string

	RabbitURL      string // empty disables notifications
	NotifyConsumer bool   // run the notification consumer inside the server process
	NotifyLogDir   string

	S3 S3Config
}

// S3Config configures the upload presigner. The zero value means uploads are
// not configured.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	URLTTL          time.Duration
}

// Configured reports whether enough settings exist to presign uploads.
func (s S3Config) Configured() bool { return s.Region != "" && s.Bucket != "" }

// IsProduction reports whether the process runs with production settings.
func (c Config) IsProduction() bool { return c.Env == "production" || c.Env == "prod" }

// minProdSecretLen is the minimum secret length accepted in production.
const minProdSecretLen = 32

// Load reads configuration values from the environment, seeding it from a
// .env file when one exists. Every missing or invalid variable is reported in
// the returned error; nothing insecure is defaulted.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	r := &reader{}
	cfg := Config{
		Env:        envStr("APP_ENV", "development"),
		Port:       envStr("APP_PORT", "8080"),
		DBDriver:   strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DBUser:     os.Getenv("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     envStr("DB_HOST", "127.0.0.1"),
		DBPort:     envStr("DB_PORT", "3306"),
		DBName:     os.Getenv("DB_NAME"),
		SQLitePath: envStr("SQLITE_PATH", "segregate.db"),

		AccessSecret:  r.secret("ACCESS_TOKEN_SECRET", "JWT_SECRET"),
		RefreshSecret: r.secret("REFRESH_TOKEN_SECRET"),
		AccessTTL:     time.Duration(r.positiveInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTTL:    time.Duration(r.positiveInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		BcryptCost:    r.positiveInt("BCRYPT_COST", 10),

		LogLevel: envStr("LOG_LEVEL", "info"),

		RabbitURL:      firstEnv("RABBITMQ_URL", "AMQP_URL"),
		NotifyConsumer: envBool("NOTIFY_CONSUMER", false),
		NotifyLogDir:   envStr("NOTIFY_LOG_DIR", "logs"),

		S3: S3Config{
			Region:          os.Getenv("AWS_REGION"),
			Bucket:          os.Getenv("AWS_S3_BUCKET_NAME"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			URLTTL:          envDur("UPLOAD_URL_TTL", time.Minute),
		},
	}

	cfg.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		r.fail("missing required env var: CORS_ALLOWED_ORIGINS")
	}

	switch cfg.DBDriver {
	case "mysql":
		if cfg.DBUser == "" {
			r.fail("missing required env var: DB_USER")
		}
		if cfg.DBName == "" {
			r.fail("missing required env var: DB_NAME")
		}
	case "sqlite":
	default:
		r.fail(fmt.Sprintf("invalid DB_DRIVER %q (want mysql or sqlite)", cfg.DBDriver))
	}

	if cfg.AccessSecret != "" && cfg.AccessSecret == cfg.RefreshSecret {
		r.fail("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if cfg.IsProduction() {
		if cfg.AccessSecret != "" && len(cfg.AccessSecret) < minProdSecretLen {
			r.fail(fmt.Sprintf("ACCESS_TOKEN_SECRET must be at least %d bytes in production", minProdSecretLen))
		}
		if cfg.RefreshSecret != "" && len(cfg.RefreshSecret) < minProdSecretLen {
			r.fail(fmt.Sprintf("REFRESH_TOKEN_SECRET must be at least %d bytes in production", minProdSecretLen))
		}
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		r.fail(fmt.Sprintf("invalid BCRYPT_COST %d (want 4..31)", cfg.BcryptCost))
	}

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is Load for process entry points: a bad environment halts startup.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// reader collects configuration errors instead of exiting on the first one.
type reader struct{ errs []error }

func (r *reader) fail(msg string) { r.errs = append(r.errs, errors.New(msg)) }

// secret returns the first non-empty variable among keys. Missing secrets are
// recorded under the first key name.
func (r *reader) secret(keys ...string) string {
	if v := firstEnv(keys...); v != "" {
		return v
	}
	r.fail("missing required env var: " + keys[0])
	return ""
}

func (r *reader) positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		r.fail(fmt.Sprintf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}
