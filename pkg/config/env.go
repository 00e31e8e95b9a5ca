package config

const EnvPrefix = "PPETRACK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	RelayModeInProcess = "inprocess"
	RelayModeRedis     = "redis"
)

const (
	EnvAppEnv   = "PPETRACK_APP_ENV"
	EnvPort     = "PPETRACK_APP_PORT"
	EnvLogLevel = "PPETRACK_LOG_LEVEL"

	EnvDBDSN      = "PPETRACK_DB_DSN"
	EnvDBHost     = "PPETRACK_DB_HOST"
	EnvDBUser     = "PPETRACK_DB_USER"
	EnvDBName     = "PPETRACK_DB_NAME"
	EnvUseSQLite  = "PPETRACK_USE_SQLITE"
	EnvSQLitePath = "PPETRACK_SQLITE_PATH"

	EnvRedisURL = "PPETRACK_REDIS_URL"

	EnvJWTSecret  = "PPETRACK_JWT_SECRET"
	EnvJWTIssuer  = "PPETRACK_JWT_ISSUER"
	EnvJWTExpMins = "PPETRACK_JWT_EXPIRATION_MINUTES"

	EnvLedgerMaxRetries     = "PPETRACK_LEDGER_MAX_RETRIES"
	EnvLiveSubscriberBuffer = "PPETRACK_LIVE_SUBSCRIBER_BUFFER"
	EnvLiveRelayMode        = "PPETRACK_LIVE_RELAY_MODE"
	EnvCronInterval         = "PPETRACK_CRON_INTERVAL"

	EnvBootstrapAdminEmails = "PPETRACK_BOOTSTRAP_ADMIN_EMAILS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
