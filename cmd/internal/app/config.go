package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"adboard/cmd/internal/pgutil"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"ADBOARD_HTTP_ADDR"   envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"ADBOARD_LOG_LEVEL"   envDefault:"info"`
	LogFormat string `env:"ADBOARD_LOG_FORMAT"  envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"ADBOARD_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"ADBOARD_HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"ADBOARD_HTTP_WRITE_TIMEOUT"       envDefault:"15s"`
	IdleTimeout       time.Duration `env:"ADBOARD_HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"ADBOARD_HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
	MaxHeaderBytes    int           `env:"ADBOARD_HTTP_MAX_HEADER_BYTES"    envDefault:"1048576"`
	MaxBodyBytes      int64         `env:"ADBOARD_HTTP_MAX_BODY_BYTES"      envDefault:"1048576"`

	// TrustProxy honors X-Forwarded-For / X-Real-IP for client addresses.
	TrustProxy bool `env:"ADBOARD_TRUST_PROXY" envDefault:"false"`

	LoginRatePerSecond float64 `env:"ADBOARD_LOGIN_RATE_PER_SECOND" envDefault:"1"`
	LoginBurst         int     `env:"ADBOARD_LOGIN_BURST"           envDefault:"10"`

	// Empty DatabaseURL selects the in-memory stores.
	DatabaseURL string `env:"ADBOARD_DATABASE_URL"`
	DBSchema    string `env:"ADBOARD_DB_SCHEMA"    envDefault:"adboard"`
	DBMaxConns  int32  `env:"ADBOARD_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"ADBOARD_DB_MIN_CONNS" envDefault:"0"`
	AutoMigrate bool   `env:"ADBOARD_AUTO_MIGRATE" envDefault:"true"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"ADBOARD_READINESS_REQUIRE_DB" envDefault:"false"`

	TokenSecret string        `env:"ADBOARD_TOKEN_SECRET,unset"`
	TokenTTL    time.Duration `env:"ADBOARD_TOKEN_TTL"    envDefault:"48h"`
	TokenIssuer string        `env:"ADBOARD_TOKEN_ISSUER" envDefault:"adboard"`

	// RequireStrongSecret makes startup fail unless TokenSecret has at least 32 bytes.
	RequireStrongSecret bool `env:"ADBOARD_REQUIRE_STRONG_SECRET" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := pgutil.CheckSchema(c.DBSchema); err != nil {
		return fmt.Errorf("ADBOARD_DB_SCHEMA: %w", err)
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 {
		return fmt.Errorf("ADBOARD_DB_MAX_CONNS/ADBOARD_DB_MIN_CONNS must be non-negative")
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("ADBOARD_DB_MIN_CONNS(%d) > ADBOARD_DB_MAX_CONNS(%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("ADBOARD_TOKEN_TTL must be positive")
	}
	if c.LoginRatePerSecond < 0 || c.LoginBurst < 0 {
		return fmt.Errorf("ADBOARD_LOGIN_RATE_PER_SECOND/ADBOARD_LOGIN_BURST must be non-negative")
	}
	switch c.LogFormat {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("ADBOARD_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return nil
}
