package config

// EnvPrefix is passed to envconfig; every tag already carries it, so lookups
// resolve through envconfig's alternate-name fallback.
const EnvPrefix = "FULFILLMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

const (
	EnvAppEnv  = "FULFILLMENT_APP_ENV"
	EnvPort    = "FULFILLMENT_APP_PORT"
	EnvLogLvl  = "FULFILLMENT_LOG_LEVEL"
	EnvDBDSN   = "FULFILLMENT_DB_DSN"
	EnvDBHost  = "FULFILLMENT_DB_HOST"
	EnvDBUser  = "FULFILLMENT_DB_USER"
	EnvDBName  = "FULFILLMENT_DB_NAME"
	EnvDBPass  = "FULFILLMENT_DB_PASSWORD"
	EnvRedisURL = "FULFILLMENT_REDIS_URL"

	EnvJWTSecret  = "FULFILLMENT_JWT_SECRET"
	EnvJWTIssuer  = "FULFILLMENT_JWT_ISSUER"
	EnvJWTExpMins = "FULFILLMENT_JWT_EXPIRATION_MINUTES"

	EnvDeliveryCodeLength  = "FULFILLMENT_DELIVERY_CODE_LENGTH"
	EnvDeliveryCodeTTL     = "FULFILLMENT_DELIVERY_CODE_TTL"
	EnvRefundsProrate      = "FULFILLMENT_REFUNDS_PRORATE_TAX_AND_FEES"
	EnvOutboxBroker        = "FULFILLMENT_OUTBOX_BROKER"
	EnvKafkaBrokers        = "FULFILLMENT_KAFKA_BROKERS"
	EnvPubSubPayoutsTopic  = "FULFILLMENT_PUBSUB_PAYOUTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
