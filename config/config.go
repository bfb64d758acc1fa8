package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is the load-time configuration surface of the gateway. Values are
// read from the environment (optionally seeded from a .env file); nothing
// here is runtime-mutable.
type Config struct {
	Port   int   `envconfig:"PORT" default:"3001"`
	NodeID int64 `envconfig:"NODE_ID" default:"1" validate:"gte=0,lte=1023"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// BusDriver selects the pub/sub bridge: "redis" (default) or "nats".
	BusDriver string `envconfig:"BUS_DRIVER" default:"redis" validate:"oneof=redis nats"`
	NatsURL   string `envconfig:"NATS_URL" default:"nats://localhost:4222"`

	IncomingChannel string `envconfig:"INCOMING_CHANNEL" default:"events:gateway" validate:"required"`
	OutgoingChannel string `envconfig:"OUTGOING_CHANNEL" default:"events:broadcast" validate:"required"`

	// AuthURL enables the HTTP auth collaborator; when empty the gateway
	// falls back to local JWT verification with JWTSecret.
	AuthURL     string        `envconfig:"AUTH_URL"`
	AuthTimeout time.Duration `envconfig:"AUTH_TIMEOUT" default:"3s"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`

	// ServiceRoutes lists startup registrations as
	// "name=channel,name=channel", e.g. "stickyNotes=events:stickyNotes".
	ServiceRoutes string `envconfig:"SERVICE_ROUTES"`
}

// Load reads .env (if present), the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	if cfg.AuthURL == "" && cfg.JWTSecret == "" {
		return nil, errors.New("either AUTH_URL or JWT_SECRET must be set")
	}
	return &cfg, nil
}

// Routes parses ServiceRoutes into ordered (service, channel) pairs.
// Each entry is split on the first '='; the channel keeps any remainder.
func (c *Config) Routes() ([][2]string, error) {
	if strings.TrimSpace(c.ServiceRoutes) == "" {
		return nil, nil
	}
	var out [][2]string
	for _, item := range strings.Split(c.ServiceRoutes, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, channel, ok := strings.Cut(item, "=")
		if !ok || name == "" || channel == "" {
			return nil, errors.Errorf("bad SERVICE_ROUTES entry %q", item)
		}
		out = append(out, [2]string{name, channel})
	}
	return out, nil
}
