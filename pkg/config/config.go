package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Stripe       StripeConfig
	Credits      CreditsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Credits.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CREDITS_APP_ENV" required:"true"`
	Port         string   `envconfig:"CREDITS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"CREDITS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"CREDITS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"CREDITS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CREDITS_DB_DSN"`
	Driver string `envconfig:"CREDITS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CREDITS_DB_HOST"`
	LegacyPort     int    `envconfig:"CREDITS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CREDITS_DB_USER"`
	LegacyPassword string `envconfig:"CREDITS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CREDITS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CREDITS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREDITS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREDITS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREDITS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREDITS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CREDITS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CREDITS_REDIS_ADDR"`
	Password     string        `envconfig:"CREDITS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREDITS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREDITS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREDITS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREDITS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREDITS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREDITS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CREDITS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CREDITS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CREDITS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CREDITS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CREDITS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"CREDITS_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type StripeConfig struct {
	Secret string `envconfig:"CREDITS_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"CREDITS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CreditsConfig carries the plan economics handed to the credit ledger.
type CreditsConfig struct {
	BasicMonthlyCredits   int `envconfig:"CREDITS_BASIC_MONTHLY" default:"100"`
	PremiumMonthlyCredits int `envconfig:"CREDITS_PREMIUM_MONTHLY" default:"200"`
	TrialCredits          int `envconfig:"CREDITS_TRIAL" default:"5"`
	AutoTopUpThreshold    int `envconfig:"CREDITS_AUTO_TOP_UP_THRESHOLD" default:"10"`
	AutoTopUpAmount       int `envconfig:"CREDITS_AUTO_TOP_UP_AMOUNT" default:"100"`
}

func (c CreditsConfig) validate() error {
	values := map[string]int{
		EnvCreditsBasicMonthly:   c.BasicMonthlyCredits,
		EnvCreditsPremiumMonthly: c.PremiumMonthlyCredits,
		EnvCreditsTrial:          c.TrialCredits,
		EnvCreditsTopUpThreshold: c.AutoTopUpThreshold,
		EnvCreditsTopUpAmount:    c.AutoTopUpAmount,
	}
	for name, value := range values {
		if value < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, value)
		}
	}
	return nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
