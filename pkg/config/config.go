package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Idempotency   IdempotencyConfig
	Ledger        LedgerConfig
	Live          LiveConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Bootstrap     BootstrapConfig
	Metrics       MetricsConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.JWT.ExpirationMinutes <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvJWTExpMins))
	}
	if c.Ledger.MaxRetries < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must not be negative", EnvLedgerMaxRetries))
	}
	if c.Live.SubscriberBuffer <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvLiveSubscriberBuffer))
	}
	if c.Cron.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvCronInterval))
	}
	switch c.Live.RelayMode {
	case RelayModeInProcess, RelayModeRedis:
	default:
		err = multierr.Append(err, fmt.Errorf("%s must be %q or %q", EnvLiveRelayMode, RelayModeInProcess, RelayModeRedis))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"PPETRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"PPETRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PPETRACK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PPETRACK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PPETRACK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"PPETRACK_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PPETRACK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PPETRACK_DB_DSN"`
	Driver string `envconfig:"PPETRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PPETRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"PPETRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PPETRACK_DB_USER"`
	LegacyPassword string `envconfig:"PPETRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"PPETRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"PPETRACK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"PPETRACK_SQLITE_PATH" default:"ppetrack.db"`

	MaxOpenConns    int           `envconfig:"PPETRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PPETRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PPETRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PPETRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PPETRACK_REDIS_URL" required:"true"`
	Password     string        `envconfig:"PPETRACK_REDIS_PASSWORD"`
	PoolSize     int           `envconfig:"PPETRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PPETRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PPETRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PPETRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PPETRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PPETRACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PPETRACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PPETRACK_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PPETRACK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PPETRACK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PPETRACK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PPETRACK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PPETRACK_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"PPETRACK_PASSWORD_MIN_LENGTH" default:"8"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PPETRACK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PPETRACK_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PPETRACK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PPETRACK_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PPETRACK_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PPETRACK_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"PPETRACK_IDEMPOTENCY_TTL" default:"24h"`
}

// LedgerConfig tunes the stock transaction retry loop.
type LedgerConfig struct {
	MaxRetries  int           `envconfig:"PPETRACK_LEDGER_MAX_RETRIES" default:"5"`
	BaseBackoff time.Duration `envconfig:"PPETRACK_LEDGER_BASE_BACKOFF" default:"20ms"`
	TxTimeout   time.Duration `envconfig:"PPETRACK_LEDGER_TX_TIMEOUT" default:"10s"`
}

type LiveConfig struct {
	SubscriberBuffer int           `envconfig:"PPETRACK_LIVE_SUBSCRIBER_BUFFER" default:"256"`
	RelayMode        string        `envconfig:"PPETRACK_LIVE_RELAY_MODE" default:"inprocess"`
	Channel          string        `envconfig:"PPETRACK_LIVE_CHANNEL" default:"changes"`
	Heartbeat        time.Duration `envconfig:"PPETRACK_LIVE_HEARTBEAT" default:"25s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PPETRACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"100"`
	PollIntervalMS int `envconfig:"PPETRACK_OUTBOX_PUBLISH_POLL_MS" default:"200"`
	MaxAttempts    int `envconfig:"PPETRACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval        time.Duration `envconfig:"PPETRACK_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"PPETRACK_CRON_LOCK_TTL" default:"10m"`
	OutboxRetention time.Duration `envconfig:"PPETRACK_OUTBOX_RETENTION" default:"168h"`
}

type BootstrapConfig struct {
	AdminEmails []string `envconfig:"PPETRACK_BOOTSTRAP_ADMIN_EMAILS"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"PPETRACK_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"PPETRACK_METRICS_PATH" default:"/metrics"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PPETRACK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PPETRACK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
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
