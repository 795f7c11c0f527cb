package config

const (
	EnvPrefix = "HACKPORTAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "HACKPORTAL_APP_ENV"
	EnvLogLevel       = "HACKPORTAL_LOG_LEVEL"
	EnvDBDSN          = "HACKPORTAL_DB_DSN"
	EnvDBDriver       = "HACKPORTAL_DB_DRIVER"
	EnvDBHost         = "HACKPORTAL_DB_HOST"
	EnvDBUser         = "HACKPORTAL_DB_USER"
	EnvDBName         = "HACKPORTAL_DB_NAME"
	EnvRedisURL       = "HACKPORTAL_REDIS_URL"
	EnvRedisAddr      = "HACKPORTAL_REDIS_ADDR"
	EnvReservationTTL = "HACKPORTAL_HARDWARE_RESERVATION_TTL"
	EnvTokenBytes     = "HACKPORTAL_HARDWARE_TOKEN_BYTES"
	EnvCronInterval   = "HACKPORTAL_CRON_INTERVAL"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
