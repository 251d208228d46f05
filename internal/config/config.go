package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/atlasbank/swift-portal/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every env-sourced value used by the portal binaries.
// Only this struct must be used to hold configuration values, no direct
// access to env, ini or any other config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"swift_portal"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpTLSCert    string `env:"HTTP_TLS_CERT"`
	HttpTLSKey     string `env:"HTTP_TLS_KEY"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	SessionTTL          time.Duration `env:"SESSION_TTL" default:"30m"`
	SessionCookieName   string        `env:"SESSION_COOKIE_NAME" default:"portal_session"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE"`

	CSRFCookieName string `env:"CSRF_COOKIE_NAME" default:"portal_csrf"`
	CSRFHeaderName string `env:"CSRF_HEADER_NAME" default:"X-CSRF-Token"`

	BcryptCost int `env:"BCRYPT_COST" default:"12"`

	LockoutMaxFailures int           `env:"LOCKOUT_MAX_FAILURES" default:"5"`
	LockoutWindow      time.Duration `env:"LOCKOUT_WINDOW" default:"15m"`

	AuthRateLimitMax    int           `env:"AUTH_RATE_LIMIT_MAX" default:"20"`
	AuthRateLimitWindow time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" default:"1m"`

	QueueName              string        `env:"QUEUE_NAME" default:"settlement"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP" default:"settlers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ"`

	SwiftGatewayPrimaryUrl string `env:"SWIFT_GATEWAY_PRIMARY_URL"`
	SwiftGatewayBackupUrl  string `env:"SWIFT_GATEWAY_BACKUP_URL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
