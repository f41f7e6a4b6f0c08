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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
	Currency     CurrencyConfig
	Recon        ReconConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLEARLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"CLEARLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLEARLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLEARLEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLEARLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLEARLEDGER_DB_DSN"`
	Driver string `envconfig:"CLEARLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLEARLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"CLEARLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLEARLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"CLEARLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLEARLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLEARLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLEARLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLEARLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLEARLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLEARLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLEARLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CLEARLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"CLEARLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLEARLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLEARLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLEARLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLEARLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLEARLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLEARLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CLEARLEDGER_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CLEARLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"CLEARLEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"CLEARLEDGER_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLEARLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLEARLEDGER_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLEARLEDGER_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CLEARLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLEARLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic           string `envconfig:"CLEARLEDGER_PUBSUB_LEDGER_TOPIC" required:"true"`
	PeriodTopic           string `envconfig:"CLEARLEDGER_PUBSUB_PERIOD_TOPIC" required:"true"`
	InventorySubscription string `envconfig:"CLEARLEDGER_PUBSUB_INVENTORY_SUBSCRIPTION" required:"true"`
	OrdersSubscription    string `envconfig:"CLEARLEDGER_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CLEARLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CLEARLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CLEARLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"CLEARLEDGER_OUTBOX_IDEMPOTENCY_TTL" default:"24h"`
}

type LedgerConfig struct {
	EntryNumberPrefix string `envconfig:"CLEARLEDGER_LEDGER_ENTRY_PREFIX" default:"JE"`

	InventoryAccountCode        string `envconfig:"CLEARLEDGER_GL_INVENTORY_CODE" default:"1300"`
	ReceivableAccountCode       string `envconfig:"CLEARLEDGER_GL_RECEIVABLE_CODE" default:"1200"`
	SalesRevenueAccountCode     string `envconfig:"CLEARLEDGER_GL_SALES_REVENUE_CODE" default:"4000"`
	AdjustmentGainAccountCode   string `envconfig:"CLEARLEDGER_GL_ADJUSTMENT_GAIN_CODE" default:"4900"`
	AdjustmentLossAccountCode   string `envconfig:"CLEARLEDGER_GL_ADJUSTMENT_LOSS_CODE" default:"6900"`
	COGSAccountCode             string `envconfig:"CLEARLEDGER_GL_COGS_CODE" default:"5000"`
	DepreciationExpenseCode     string `envconfig:"CLEARLEDGER_GL_DEPRECIATION_EXPENSE_CODE" default:"6800"`
	AccumulatedDepreciationCode string `envconfig:"CLEARLEDGER_GL_ACCUMULATED_DEPRECIATION_CODE" default:"1590"`
	BankFeeAccountCode          string `envconfig:"CLEARLEDGER_GL_BANK_FEE_CODE" default:"6700"`
	InterestIncomeAccountCode   string `envconfig:"CLEARLEDGER_GL_INTEREST_INCOME_CODE" default:"4800"`
}

type CurrencyConfig struct {
	USDToIDRRate string `envconfig:"CLEARLEDGER_USD_IDR_RATE" default:"15500"`
}

type ReconConfig struct {
	MatchWindowDays int    `envconfig:"CLEARLEDGER_RECON_MATCH_WINDOW_DAYS" default:"5"`
	AmountTolerance string `envconfig:"CLEARLEDGER_RECON_AMOUNT_TOLERANCE" default:"0.01"`
}

type RateLimitConfig struct {
	CloseWindow    time.Duration `envconfig:"CLEARLEDGER_RATELIMIT_CLOSE_WINDOW" default:"1m"`
	CloseIPLimit   int           `envconfig:"CLEARLEDGER_RATELIMIT_CLOSE_IP_LIMIT" default:"10"`
	CloseUserLimit int           `envconfig:"CLEARLEDGER_RATELIMIT_CLOSE_USER_LIMIT" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
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
