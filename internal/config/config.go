package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Prefix is prepended to every variable, e.g. STOREFRONT_HTTP_ADDR.
const Prefix = "STOREFRONT"

type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8081"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"storefront"`

	BackendURL         string        `envconfig:"BACKEND_URL"`
	BackendTimeout     time.Duration `envconfig:"BACKEND_TIMEOUT" default:"15s"`
	BackendContentType string        `envconfig:"BACKEND_CONTENT_TYPE" default:"application/json"`

	// One of CatalogPath, CatalogURL or PostgresDSN supplies products, in that order.
	CatalogPath string `envconfig:"CATALOG_PATH"`
	CatalogURL  string `envconfig:"CATALOG_URL"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	GatewayProvider string `envconfig:"GATEWAY" default:"razorpay"`
	StoreName       string `envconfig:"STORE_NAME" default:"Storefront"`
	Currency        string `envconfig:"CURRENCY" default:"INR"`
	PayPalBaseURL   string `envconfig:"PAYPAL_BASE_URL" default:"https://api-m.sandbox.paypal.com"`
	PayPalClientID  string `envconfig:"PAYPAL_CLIENT_ID"`
	PayPalSecret    string `envconfig:"PAYPAL_SECRET"`

	RedisAddr    string   `envconfig:"REDIS_ADDR"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`

	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	AuditGroup   string `envconfig:"AUDIT_GROUP" default:"storefront-audit"`
	AuditWorkers int    `envconfig:"AUDIT_WORKERS" default:"4"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config")
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.GatewayProvider = strings.ToLower(cfg.GatewayProvider)
	return cfg, nil
}

// RequireBackend reports a missing order service URL.
func (c Config) RequireBackend() error {
	if c.BackendURL == "" {
		return errors.Errorf("%s_BACKEND_URL is required", Prefix)
	}
	return nil
}

// ConfigureLogging applies LogLevel and LogFormat to the standard logrus logger.
func (c Config) ConfigureLogging() error {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
