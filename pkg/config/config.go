package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GoogleMaps   GoogleMapsConfig
	Delivery     DeliveryConfig
	Pricing      PricingConfig
	Checkout     CheckoutConfig
	Referral     ReferralConfig
	Cart         CartConfig
	Webhook      WebhookConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
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
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Delivery.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// QuoteConfig is the subset the standalone quote tool needs.
type QuoteConfig struct {
	GoogleMaps GoogleMapsConfig
	Delivery   DeliveryConfig
}

// LoadQuote reads only the maps and delivery settings, so pricing an address
// does not require database, Redis or signing secrets.
func LoadQuote() (*QuoteConfig, error) {
	var cfg QuoteConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Delivery.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"JUSTCOOK_APP_ENV" required:"true"`
	Port          string `envconfig:"JUSTCOOK_APP_PORT" required:"true"`
	PublicBaseURL string `envconfig:"JUSTCOOK_PUBLIC_BASE_URL" default:"http://localhost:3000"`
	LogLevel      string `envconfig:"JUSTCOOK_LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"JUSTCOOK_LOG_FORMAT" default:"json"`
	LogWarnStack  bool   `envconfig:"JUSTCOOK_LOG_WARN_STACK" default:"false"`
	CORSOrigins   string `envconfig:"JUSTCOOK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	return splitList(a.CORSOrigins)
}

type DBConfig struct {
	DSN    string `envconfig:"JUSTCOOK_DB_DSN"`
	Driver string `envconfig:"JUSTCOOK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"JUSTCOOK_DB_HOST"`
	Port     int    `envconfig:"JUSTCOOK_DB_PORT" default:"5432"`
	User     string `envconfig:"JUSTCOOK_DB_USER"`
	Password string `envconfig:"JUSTCOOK_DB_PASSWORD"`
	Name     string `envconfig:"JUSTCOOK_DB_NAME"`
	SSLMode  string `envconfig:"JUSTCOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"JUSTCOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"JUSTCOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"JUSTCOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"JUSTCOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"JUSTCOOK_REDIS_URL" required:"true"`
	Password     string        `envconfig:"JUSTCOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"JUSTCOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"JUSTCOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"JUSTCOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"JUSTCOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"JUSTCOOK_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"JUSTCOOK_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// JWTConfig signs staff access tokens for the back-office routes.
type JWTConfig struct {
	Secret            string `envconfig:"JUSTCOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"JUSTCOOK_JWT_ISSUER" default:"justcook"`
	ExpirationMinutes int    `envconfig:"JUSTCOOK_JWT_EXPIRATION_MINUTES" default:"720"`
}

type RateLimitConfig struct {
	ReferralWindow  time.Duration `envconfig:"JUSTCOOK_RATE_LIMIT_REFERRAL_WINDOW" default:"1m"`
	ReferralIPLimit int           `envconfig:"JUSTCOOK_RATE_LIMIT_REFERRAL_IP_LIMIT" default:"20"`
	QuoteWindow     time.Duration `envconfig:"JUSTCOOK_RATE_LIMIT_QUOTE_WINDOW" default:"1m"`
	QuoteIPLimit    int           `envconfig:"JUSTCOOK_RATE_LIMIT_QUOTE_IP_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"JUSTCOOK_AUTO_MIGRATE" default:"false"`
}

type GoogleMapsConfig struct {
	APIKey  string `envconfig:"JUSTCOOK_GOOGLE_MAPS_API_KEY"`
	BaseURL string `envconfig:"JUSTCOOK_GOOGLE_MAPS_BASE_URL" default:"https://maps.googleapis.com/maps/api"`
}

type DeliveryConfig struct {
	Origin           string        `envconfig:"JUSTCOOK_DELIVERY_ORIGIN" default:"148 Ashley Road, St Paul's, Bristol BS6 5PA, UK"`
	Bands            string        `envconfig:"JUSTCOOK_DELIVERY_BANDS" default:"3:299,6:499,10:799"`
	CountryHint      string        `envconfig:"JUSTCOOK_DELIVERY_COUNTRY_HINT" default:"UK"`
	MinAddressLength int           `envconfig:"JUSTCOOK_DELIVERY_MIN_ADDRESS_LENGTH" default:"6"`
	QuoteTimeout     time.Duration `envconfig:"JUSTCOOK_DELIVERY_QUOTE_TIMEOUT" default:"5s"`
	DebounceDelay    time.Duration `envconfig:"JUSTCOOK_DELIVERY_DEBOUNCE_DELAY" default:"500ms"`
}

func (d DeliveryConfig) validate() error {
	entries := splitList(d.Bands)
	if len(entries) == 0 {
		return fmt.Errorf("%s must list at least one band", EnvDeliveryBands)
	}
	for _, entry := range entries {
		miles, fee, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("%s entry %q must be miles:fee", EnvDeliveryBands, entry)
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(miles), 64); err != nil {
			return fmt.Errorf("%s entry %q: invalid miles: %w", EnvDeliveryBands, entry, err)
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(fee), 10, 64); err != nil {
			return fmt.Errorf("%s entry %q: invalid fee: %w", EnvDeliveryBands, entry, err)
		}
	}
	if d.MinAddressLength < 1 {
		return fmt.Errorf("delivery min address length must be positive")
	}
	return nil
}

type PricingConfig struct {
	StudentRate   decimal.Decimal `envconfig:"JUSTCOOK_PRICING_STUDENT_RATE" default:"0.85"`
	MinimumCharge int64           `envconfig:"JUSTCOOK_PRICING_MINIMUM_CHARGE" default:"50"`
	Currency      string          `envconfig:"JUSTCOOK_PRICING_CURRENCY" default:"gbp"`
}

func (p PricingConfig) validate() error {
	if p.StudentRate.IsNegative() || p.StudentRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvStudentRate)
	}
	if p.MinimumCharge < 0 {
		return fmt.Errorf("%s must not be negative", EnvMinimumCharge)
	}
	return nil
}

type CheckoutConfig struct {
	SuccessPath            string `envconfig:"JUSTCOOK_CHECKOUT_SUCCESS_PATH" default:"/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelPath             string `envconfig:"JUSTCOOK_CHECKOUT_CANCEL_PATH" default:"/cart"`
	LineItemName           string `envconfig:"JUSTCOOK_CHECKOUT_LINE_ITEM_NAME" default:"Groceries"`
	TrustClientStudentFlag bool   `envconfig:"JUSTCOOK_CHECKOUT_TRUST_CLIENT_STUDENT_FLAG" default:"false"`
}

type ReferralConfig struct {
	CodePrefix  string `envconfig:"JUSTCOOK_REFERRAL_CODE_PREFIX" default:"JC-"`
	CodeLength  int    `envconfig:"JUSTCOOK_REFERRAL_CODE_LENGTH" default:"8"`
	MaxAttempts int    `envconfig:"JUSTCOOK_REFERRAL_MAX_ATTEMPTS" default:"8"`
}

type CartConfig struct {
	Backend  string        `envconfig:"JUSTCOOK_CART_BACKEND" default:"redis"`
	BoltPath string        `envconfig:"JUSTCOOK_CART_BOLT_PATH" default:"data/carts.db"`
	TTL      time.Duration `envconfig:"JUSTCOOK_CART_TTL" default:"168h"`
}

func (c CartConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case CartBackendRedis, CartBackendBolt:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvCartBackend, CartBackendRedis, CartBackendBolt)
	}
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"JUSTCOOK_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"JUSTCOOK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"JUSTCOOK_PUBSUB_ORDERS_TOPIC" default:"justcook-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"JUSTCOOK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"JUSTCOOK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"JUSTCOOK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"JUSTCOOK_CRON_INTERVAL" default:"24h"`
	OutboxRetention time.Duration `envconfig:"JUSTCOOK_CRON_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey  string        `envconfig:"JUSTCOOK_STRIPE_API_KEY"`
	Secret  string        `envconfig:"JUSTCOOK_STRIPE_WEBHOOK_SECRET"`
	Env     string        `envconfig:"JUSTCOOK_STRIPE_ENV" default:"test"`
	Timeout time.Duration `envconfig:"JUSTCOOK_STRIPE_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DBDriverSQLite) {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
