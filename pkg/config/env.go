package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv     = "STOREFRONT_APP_ENV"
	EnvPort       = "STOREFRONT_APP_PORT"
	EnvDBDSN      = "STOREFRONT_DB_DSN"
	EnvDBHost     = "STOREFRONT_DB_HOST"
	EnvDBUser     = "STOREFRONT_DB_USER"
	EnvDBName     = "STOREFRONT_DB_NAME"
	EnvRedisURL   = "STOREFRONT_REDIS_URL"
	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvCartCacheTTL         = "STOREFRONT_CART_CACHE_TTL"
	EnvSquareAccessToken    = "STOREFRONT_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID     = "STOREFRONT_SQUARE_LOCATION_ID"
	EnvStorefrontAPIBaseURL = "STOREFRONT_API_BASE_URL"
	EnvStorefrontLocalDB    = "STOREFRONT_LOCAL_DB_PATH"
)
