package config

// EnvPrefix is intentionally empty: every field names its variable explicitly.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "RCPT_APP_ENV"
	EnvPort   = "RCPT_APP_PORT"

	EnvDBDSN  = "RCPT_DB_DSN"
	EnvDBHost = "RCPT_DB_HOST"
	EnvDBUser = "RCPT_DB_USER"
	EnvDBName = "RCPT_DB_NAME"

	EnvRedisURL = "RCPT_REDIS_URL"

	EnvJWTSecret = "RCPT_JWT_SECRET"
	EnvJWTIssuer = "RCPT_JWT_ISSUER"

	EnvGCPProjectID = "RCPT_GCP_PROJECT_ID"
	EnvGCSBucket    = "RCPT_GCS_BUCKET_NAME"

	EnvGeminiAPIKey = "RCPT_GEMINI_API_KEY"

	EnvPubSubReceiptsTopic    = "RCPT_PUBSUB_RECEIPTS_TOPIC"
	EnvPubSubReceiptsSub      = "RCPT_PUBSUB_RECEIPTS_SUBSCRIPTION"
	EnvPubSubFileCleanupTopic = "RCPT_PUBSUB_FILE_CLEANUP_TOPIC"
	EnvPubSubFileCleanupSub   = "RCPT_PUBSUB_FILE_CLEANUP_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
