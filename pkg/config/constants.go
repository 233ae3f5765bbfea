package config

import "strings"

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "STOREFRONT_APP_ENV"
	EnvPort          = "STOREFRONT_APP_PORT"
	EnvDBDSN         = "STOREFRONT_DB_DSN"
	EnvDBHost        = "STOREFRONT_DB_HOST"
	EnvDBUser        = "STOREFRONT_DB_USER"
	EnvDBName        = "STOREFRONT_DB_NAME"
	EnvRedisURL      = "STOREFRONT_REDIS_URL"
	EnvJWTSecret     = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer     = "STOREFRONT_JWT_ISSUER"
	EnvWebhookSecret = "STOREFRONT_WEBHOOK_SECRET"
	EnvWebhookUnsign = "STOREFRONT_WEBHOOK_ALLOW_UNSIGNED"
	EnvAutoCancel    = "STOREFRONT_ORDERS_AUTO_CANCEL_PENDING_HOURS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// SignaturePolicy controls how inbound gateway webhooks are authenticated.
type SignaturePolicy string

const (
	// SignatureRequired rejects any delivery without a valid signature.
	SignatureRequired SignaturePolicy = "required"
	// SignatureOptionalIfAbsent accepts unsigned deliveries but still verifies a supplied signature.
	SignatureOptionalIfAbsent SignaturePolicy = "optional_if_absent"
)

// ParseSignaturePolicy converts a raw value into a SignaturePolicy.
func ParseSignaturePolicy(value string) (SignaturePolicy, bool) {
	switch SignaturePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case SignatureRequired:
		return SignatureRequired, true
	case SignatureOptionalIfAbsent:
		return SignatureOptionalIfAbsent, true
	}
	return "", false
}
