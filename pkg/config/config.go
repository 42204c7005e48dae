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
	GCP          GCPConfig
	GCS          GCSConfig
	Receipts     ReceiptsConfig
	Gemini       GeminiConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
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
	Env          string `envconfig:"RCPT_APP_ENV" required:"true"`
	Port         string `envconfig:"RCPT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RCPT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RCPT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"RCPT_DB_DSN"`

	LegacyHost     string `envconfig:"RCPT_DB_HOST"`
	LegacyPort     int    `envconfig:"RCPT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RCPT_DB_USER"`
	LegacyPassword string `envconfig:"RCPT_DB_PASSWORD"`
	LegacyName     string `envconfig:"RCPT_DB_NAME"`
	LegacySSLMode  string `envconfig:"RCPT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RCPT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RCPT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RCPT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RCPT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RCPT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RCPT_REDIS_ADDR"`
	Password     string        `envconfig:"RCPT_REDIS_PASSWORD"`
	DB           int           `envconfig:"RCPT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RCPT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RCPT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RCPT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RCPT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RCPT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RCPT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RCPT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RCPT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RCPT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RCPT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"RCPT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RCPT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"RCPT_GCS_BUCKET_NAME" required:"true"`
	DownloadURLExpiry time.Duration `envconfig:"RCPT_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type ReceiptsConfig struct {
	MaxUploadMB     int           `envconfig:"RCPT_MAX_UPLOAD_MB" default:"20"`
	StalePendingAge time.Duration `envconfig:"RCPT_STALE_PENDING_AGE" default:"30m"`
}

// MaxUploadBytes converts the configured megabyte cap to bytes.
func (r ReceiptsConfig) MaxUploadBytes() int64 {
	mb := r.MaxUploadMB
	if mb <= 0 {
		mb = 20
	}
	return int64(mb) * 1024 * 1024
}

type GeminiConfig struct {
	APIKey         string        `envconfig:"RCPT_GEMINI_API_KEY" required:"true"`
	Model          string        `envconfig:"RCPT_GEMINI_MODEL" default:"gemini-1.5-flash"`
	BaseURL        string        `envconfig:"RCPT_GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1"`
	RequestTimeout time.Duration `envconfig:"RCPT_GEMINI_REQUEST_TIMEOUT" default:"60s"`
	MaxAttempts    int           `envconfig:"RCPT_GEMINI_MAX_ATTEMPTS" default:"3"`
}

type PubSubConfig struct {
	ReceiptsTopic           string `envconfig:"RCPT_PUBSUB_RECEIPTS_TOPIC" required:"true"`
	ReceiptsSubscription    string `envconfig:"RCPT_PUBSUB_RECEIPTS_SUBSCRIPTION" required:"true"`
	FileCleanupTopic        string `envconfig:"RCPT_PUBSUB_FILE_CLEANUP_TOPIC" required:"true"`
	FileCleanupSubscription string `envconfig:"RCPT_PUBSUB_FILE_CLEANUP_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RCPT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RCPT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RCPT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"RCPT_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"RCPT_CRON_LOCK_TTL" default:"10m"`
	OutboxRetention time.Duration `envconfig:"RCPT_CRON_OUTBOX_RETENTION" default:"720h"`
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
