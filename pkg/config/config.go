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
	Delivery     DeliveryConfig
	ActionCodes  ActionCodesConfig
	Refunds      RefundsConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FULFILLMENT_APP_ENV" required:"true"`
	Port         string   `envconfig:"FULFILLMENT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FULFILLMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FULFILLMENT_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"FULFILLMENT_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"FULFILLMENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILLMENT_DB_DSN"`
	Driver string `envconfig:"FULFILLMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FULFILLMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"FULFILLMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FULFILLMENT_DB_USER"`
	LegacyPassword string `envconfig:"FULFILLMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FULFILLMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FULFILLMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FULFILLMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILLMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which statements are logged as warnings.
	SlowQuery time.Duration `envconfig:"FULFILLMENT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILLMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FULFILLMENT_REDIS_ADDR"`
	Password     string        `envconfig:"FULFILLMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILLMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILLMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILLMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FULFILLMENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FULFILLMENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FULFILLMENT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// HashConfig holds the argon2id parameters used for one-time codes.
type HashConfig struct {
	ArgonMemoryKB    int `envconfig:"FULFILLMENT_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int `envconfig:"FULFILLMENT_ARGON_TIME" default:"2"`
	ArgonParallelism int `envconfig:"FULFILLMENT_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int `envconfig:"FULFILLMENT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FULFILLMENT_ARGON_KEY_LEN" default:"32"`
}

type DeliveryConfig struct {
	CodeLength    int           `envconfig:"FULFILLMENT_DELIVERY_CODE_LENGTH" default:"6"`
	CodeTTL       time.Duration `envconfig:"FULFILLMENT_DELIVERY_CODE_TTL" default:"10m"`
	IssueCooldown time.Duration `envconfig:"FULFILLMENT_DELIVERY_CODE_COOLDOWN" default:"60s"`
	MaxAttempts   int           `envconfig:"FULFILLMENT_DELIVERY_CODE_MAX_ATTEMPTS" default:"5"`
	Lockout       time.Duration `envconfig:"FULFILLMENT_DELIVERY_CODE_LOCKOUT" default:"15m"`
	VerifyWindow  time.Duration `envconfig:"FULFILLMENT_DELIVERY_VERIFY_RATE_WINDOW" default:"1m"`
	VerifyIPLimit int           `envconfig:"FULFILLMENT_DELIVERY_VERIFY_RATE_IP_LIMIT" default:"30"`
	VerifyPOLimit int           `envconfig:"FULFILLMENT_DELIVERY_VERIFY_RATE_PO_LIMIT" default:"10"`
	Hash          HashConfig
}

type ActionCodesConfig struct {
	CodeLength int           `envconfig:"FULFILLMENT_ACTION_CODE_LENGTH" default:"8"`
	TTL        time.Duration `envconfig:"FULFILLMENT_ACTION_CODE_TTL" default:"5m"`
}

type RefundsConfig struct {
	ProrateTaxAndFees bool `envconfig:"FULFILLMENT_REFUNDS_PRORATE_TAX_AND_FEES" default:"false"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FULFILLMENT_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"FULFILLMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Broker         string `envconfig:"FULFILLMENT_OUTBOX_BROKER" default:"pubsub"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxBroker, BrokerPubSub, BrokerKafka)
	}
}

// BrokerKind returns the normalized broker selector.
func (o OutboxConfig) BrokerKind() string {
	return strings.ToLower(strings.TrimSpace(o.Broker))
}

// MaintenanceConfig drives the maintenance worker's retention jobs.
type MaintenanceConfig struct {
	Interval           time.Duration `envconfig:"FULFILLMENT_MAINTENANCE_INTERVAL" default:"1h"`
	LockTTL            time.Duration `envconfig:"FULFILLMENT_MAINTENANCE_LOCK_TTL" default:"55m"`
	OutboxRetention    time.Duration `envconfig:"FULFILLMENT_MAINTENANCE_OUTBOX_RETENTION" default:"720h"`
	ChallengeRetention time.Duration `envconfig:"FULFILLMENT_MAINTENANCE_CHALLENGE_RETENTION" default:"168h"`
	DLQRetention       time.Duration `envconfig:"FULFILLMENT_MAINTENANCE_DLQ_RETENTION" default:"2160h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FULFILLMENT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FULFILLMENT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FULFILLMENT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"FULFILLMENT_PUBSUB_ORDERS_TOPIC" default:"fulfillment-order-events"`
	PayoutsTopic      string `envconfig:"FULFILLMENT_PUBSUB_PAYOUTS_TOPIC" default:"fulfillment-payout-events"`
	RefundsTopic      string `envconfig:"FULFILLMENT_PUBSUB_REFUNDS_TOPIC" default:"fulfillment-refund-events"`
	NotificationTopic string `envconfig:"FULFILLMENT_PUBSUB_NOTIFICATION_TOPIC" default:"fulfillment-notifications"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"FULFILLMENT_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID     string        `envconfig:"FULFILLMENT_KAFKA_CLIENT_ID" default:"fulfillment-backend"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_KAFKA_WRITE_TIMEOUT" default:"10s"`
	RequiredAcks int           `envconfig:"FULFILLMENT_KAFKA_REQUIRED_ACKS" default:"-1"`
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
