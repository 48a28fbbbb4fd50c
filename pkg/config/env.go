package config

const EnvPrefix = "JUSTCOOK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	CartBackendRedis = "redis"
	CartBackendBolt  = "bolt"
)

const (
	EnvAppEnv        = "JUSTCOOK_APP_ENV"
	EnvPort          = "JUSTCOOK_APP_PORT"
	EnvDBDSN         = "JUSTCOOK_DB_DSN"
	EnvDBDriver      = "JUSTCOOK_DB_DRIVER"
	EnvDBHost        = "JUSTCOOK_DB_HOST"
	EnvDBUser        = "JUSTCOOK_DB_USER"
	EnvDBPassword    = "JUSTCOOK_DB_PASSWORD"
	EnvDBName        = "JUSTCOOK_DB_NAME"
	EnvRedisURL      = "JUSTCOOK_REDIS_URL"
	EnvJWTSecret     = "JUSTCOOK_JWT_SECRET"
	EnvStudentRate   = "JUSTCOOK_PRICING_STUDENT_RATE"
	EnvMinimumCharge = "JUSTCOOK_PRICING_MINIMUM_CHARGE"
	EnvDeliveryBands = "JUSTCOOK_DELIVERY_BANDS"
	EnvCartBackend   = "JUSTCOOK_CART_BACKEND"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
