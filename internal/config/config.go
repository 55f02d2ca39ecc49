package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// MongoDB
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"fulfillment"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Delhivery
	DelhiveryAPIToken     string        `envconfig:"DELHIVERY_API_TOKEN"`
	DelhiveryBaseURL      string        `envconfig:"DELHIVERY_BASE_URL" default:"https://track.delhivery.com"`
	DelhiveryStagingURL   string        `envconfig:"DELHIVERY_STAGING_URL" default:"https://staging-express.delhivery.com"`
	DelhiveryUseMock      bool          `envconfig:"DELHIVERY_USE_MOCK" default:"false"`
	DelhiveryDemoFallback bool          `envconfig:"DELHIVERY_DEMO_FALLBACK" default:"false"`
	DelhiveryTimeout      time.Duration `envconfig:"DELHIVERY_TIMEOUT" default:"20s"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"shopkart-fulfillment"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Validate fails fast on settings that would only surface as confusing
// runtime errors later. A missing carrier token outside mock mode is a
// deployment mistake, not something to retry against.
func (c *Config) Validate() error {
	if !c.DelhiveryUseMock && c.DelhiveryAPIToken == "" {
		return fmt.Errorf("DELHIVERY_API_TOKEN is required unless DELHIVERY_USE_MOCK is set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("delhivery.mock", c.DelhiveryUseMock),
		attribute.Bool("delhivery.demo_fallback", c.DelhiveryDemoFallback),
	}
}
