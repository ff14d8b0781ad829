package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, populated from the environment.
type Config struct {
	AppName string `envconfig:"APP_NAME" default:"Chattrix API"`
	Env     string `envconfig:"APP_ENV" default:"development"`
	Host    string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port    int    `envconfig:"HTTP_PORT" default:"8000"`

	// DatabaseURL selects PostgreSQL when set; otherwise the embedded SQLite
	// database at DatabasePath is used.
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"chattrix.db"`

	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`
	AccessTokenMinutes int    `envconfig:"ACCESS_TOKEN_EXPIRE_MINUTES" default:"1440"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`

	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT" default:"mailto:admin@chattrix.local"`

	PushWorkers   int `envconfig:"PUSH_WORKERS" default:"4"`
	PushQueueSize int `envconfig:"PUSH_QUEUE_SIZE" default:"256"`

	HistoryLimit int `envconfig:"HISTORY_LIMIT" default:"200"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// PushEnabled reports whether VAPID keys are configured for Web Push.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
