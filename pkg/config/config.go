package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Webhooks WebhookConfig
	Checkout CheckoutConfig
	Orders   OrdersConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	SMTP     SMTPConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Webhooks.Policy(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"STOREFRONT_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT"`
	AutoMigrate  bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"STOREFRONT_DB_LOCK_TIMEOUT" default:"5s"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig describes the hosted payment page provider used at checkout.
type GatewayConfig struct {
	BaseURL    string        `envconfig:"STOREFRONT_GATEWAY_BASE_URL"`
	APIKey     string        `envconfig:"STOREFRONT_GATEWAY_API_KEY"`
	MerchantID string        `envconfig:"STOREFRONT_GATEWAY_MERCHANT_ID"`
	Currency   string        `envconfig:"STOREFRONT_GATEWAY_CURRENCY" default:"USD"`
	Timeout    time.Duration `envconfig:"STOREFRONT_GATEWAY_TIMEOUT" default:"10s"`
	ReturnPath string        `envconfig:"STOREFRONT_GATEWAY_RETURN_PATH" default:"/checkout/complete"`
	CancelPath string        `envconfig:"STOREFRONT_GATEWAY_CANCEL_PATH" default:"/checkout/cancelled"`
	NotifyPath string        `envconfig:"STOREFRONT_GATEWAY_NOTIFY_PATH" default:"/api/v1/webhooks/gateway"`
}

type WebhookConfig struct {
	Secret string `envconfig:"STOREFRONT_WEBHOOK_SECRET"`
	// AllowUnsigned lets non-production environments accept deliveries without a signature header.
	AllowUnsigned bool          `envconfig:"STOREFRONT_WEBHOOK_ALLOW_UNSIGNED" default:"false"`
	DeliveryTTL   time.Duration `envconfig:"STOREFRONT_WEBHOOK_DELIVERY_TTL" default:"24h"`
}

// Policy resolves the signature verification policy for the configured environment.
func (w WebhookConfig) Policy(app AppConfig) (SignaturePolicy, error) {
	if strings.TrimSpace(w.Secret) == "" && (app.IsProd() || !w.AllowUnsigned) {
		return "", fmt.Errorf("%s is required", EnvWebhookSecret)
	}
	if w.AllowUnsigned && !app.IsProd() {
		return SignatureOptionalIfAbsent, nil
	}
	return SignatureRequired, nil
}

type CheckoutConfig struct {
	RateLimitWindow time.Duration `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimit       int           `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT" default:"10"`
}

type OrdersConfig struct {
	// AutoCancelPendingHours is the age after which unpaid orders are swept; 0 disables the sweep.
	AutoCancelPendingHours int `envconfig:"STOREFRONT_ORDERS_AUTO_CANCEL_PENDING_HOURS" default:"0"`
	SweepBatchSize         int `envconfig:"STOREFRONT_ORDERS_SWEEP_BATCH_SIZE" default:"100"`
}

// AutoCancelAfter returns the sweep threshold as a duration.
func (o OrdersConfig) AutoCancelAfter() time.Duration {
	if o.AutoCancelPendingHours <= 0 {
		return 0
	}
	return time.Duration(o.AutoCancelPendingHours) * time.Hour
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic               string        `envconfig:"STOREFRONT_PUBSUB_DOMAIN_TOPIC" default:"storefront-domain-events"`
	NotificationsSubscription string        `envconfig:"STOREFRONT_PUBSUB_NOTIFICATIONS_SUBSCRIPTION"`
	IdempotencyTTL            time.Duration `envconfig:"STOREFRONT_PUBSUB_IDEMPOTENCY_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type SMTPConfig struct {
	Host     string `envconfig:"STOREFRONT_SMTP_HOST"`
	Port     int    `envconfig:"STOREFRONT_SMTP_PORT" default:"587"`
	Username string `envconfig:"STOREFRONT_SMTP_USERNAME"`
	Password string `envconfig:"STOREFRONT_SMTP_PASSWORD"`
	From     string `envconfig:"STOREFRONT_SMTP_FROM" default:"orders@storefront.local"`
}

// Enabled reports whether outbound email is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"4m"`
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
