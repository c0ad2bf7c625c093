package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "CREDITS_APP_ENV"
	EnvPort     = "CREDITS_APP_PORT"
	EnvLogLevel = "CREDITS_LOG_LEVEL"

	EnvDBDSN    = "CREDITS_DB_DSN"
	EnvDBDriver = "CREDITS_DB_DRIVER"
	EnvDBHost   = "CREDITS_DB_HOST"
	EnvDBUser   = "CREDITS_DB_USER"
	EnvDBName   = "CREDITS_DB_NAME"

	EnvRedisURL = "CREDITS_REDIS_URL"

	EnvJWTSecret  = "CREDITS_JWT_SECRET"
	EnvJWTIssuer  = "CREDITS_JWT_ISSUER"
	EnvJWTExpMins = "CREDITS_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "CREDITS_USE_SQLITE"

	EnvStripeWebhookSecret = "CREDITS_STRIPE_WEBHOOK_SECRET"
	EnvStripeEnv           = "CREDITS_STRIPE_ENV"

	EnvCreditsBasicMonthly   = "CREDITS_BASIC_MONTHLY"
	EnvCreditsPremiumMonthly = "CREDITS_PREMIUM_MONTHLY"
	EnvCreditsTrial          = "CREDITS_TRIAL"
	EnvCreditsTopUpThreshold = "CREDITS_AUTO_TOP_UP_THRESHOLD"
	EnvCreditsTopUpAmount    = "CREDITS_AUTO_TOP_UP_AMOUNT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
