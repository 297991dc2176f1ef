package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "STOREFRONT_APP_ENV"
	EnvPort              = "STOREFRONT_APP_PORT"
	EnvBackendBaseURL    = "STOREFRONT_BACKEND_BASE_URL"
	EnvBackendTimeout    = "STOREFRONT_BACKEND_TIMEOUT"
	EnvRedisURL          = "STOREFRONT_REDIS_URL"
	EnvReturnsDraftTTL   = "STOREFRONT_RETURNS_DRAFT_TTL"
	EnvLocales           = "STOREFRONT_LOCALES"
	EnvCartCacheIdleTTL  = "STOREFRONT_CART_CACHE_IDLE_TTL"
	EnvCheckoutIdleTTL   = "STOREFRONT_CHECKOUT_SESSION_IDLE_TTL"
	EnvSweeperInterval   = "STOREFRONT_SWEEPER_INTERVAL"
	EnvReturnsMaxImageMB = "STOREFRONT_RETURNS_MAX_IMAGE_MB"
)
