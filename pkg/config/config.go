package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Payment       PaymentConfig
	Images        ImageStoreConfig
	FeatureFlags  FeatureFlagsConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DIGIMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"DIGIMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DIGIMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DIGIMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"DIGIMARKET_DB_DSN"`

	Host     string `envconfig:"DIGIMARKET_DB_HOST"`
	Port     int    `envconfig:"DIGIMARKET_DB_PORT" default:"5432"`
	User     string `envconfig:"DIGIMARKET_DB_USER"`
	Password string `envconfig:"DIGIMARKET_DB_PASSWORD"`
	Name     string `envconfig:"DIGIMARKET_DB_NAME"`
	SSLMode  string `envconfig:"DIGIMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DIGIMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DIGIMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DIGIMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DIGIMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either DIGIMARKET_DB_DSN or host/user/name parts are required")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"DIGIMARKET_REDIS_URL" required:"true"`
	Password     string        `envconfig:"DIGIMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"DIGIMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DIGIMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DIGIMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIGIMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DIGIMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DIGIMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DIGIMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DIGIMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DIGIMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
	SessionTTLMinutes int    `envconfig:"DIGIMARKET_SESSION_TTL_MINUTES" default:"43200"`
}

// SessionTTL returns the redis session lifetime configured in minutes.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DIGIMARKET_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DIGIMARKET_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DIGIMARKET_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DIGIMARKET_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DIGIMARKET_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"DIGIMARKET_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"DIGIMARKET_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"DIGIMARKET_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"DIGIMARKET_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"DIGIMARKET_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"DIGIMARKET_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"10"`
}

// PaymentConfig shapes the synthesized payment URL handed back on order creation.
// The gateway itself is an external actor; it only ever calls us back.
type PaymentConfig struct {
	GatewayBaseURL string `envconfig:"DIGIMARKET_PAYMENT_GATEWAY_BASE_URL" default:"https://gateway.example.com/pay"`
	CallbackURL    string `envconfig:"DIGIMARKET_PAYMENT_CALLBACK_URL" default:"http://localhost:8080/api/v1/payments/callback"`
}

type ImageStoreConfig struct {
	Dir string `envconfig:"DIGIMARKET_IMAGE_DIR" default:"./data/offer-images"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DIGIMARKET_FEATURE_AUTO_MIGRATE" default:"false"`
}

type PubSubConfig struct {
	ProjectID       string `envconfig:"DIGIMARKET_PUBSUB_PROJECT_ID"`
	TopicID         string `envconfig:"DIGIMARKET_PUBSUB_TOPIC_ID" default:"digimarket-domain-events"`
	CredentialsFile string `envconfig:"DIGIMARKET_PUBSUB_CREDENTIALS_FILE"`
	EmulatorHost    string `envconfig:"DIGIMARKET_PUBSUB_EMULATOR_HOST"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"DIGIMARKET_OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval time.Duration `envconfig:"DIGIMARKET_OUTBOX_POLL_INTERVAL" default:"2s"`
	MaxAttempts  int           `envconfig:"DIGIMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
