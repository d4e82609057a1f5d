package googleauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrNotConfigured indicates that provider credentials or the callback URL
// are missing: every authorization attempt is refused until they are set.
var ErrNotConfigured = errors.New("google authorization is not configured")

type Config struct {
	ClientID       string   `env:"GOOGLE_CLIENT_ID"`
	ClientSecret   string   `env:"GOOGLE_CLIENT_SECRET"`
	CallbackURL    string   `env:"GOOGLE_CALLBACK_URL"`
	AllowedOrigins []string `env:"AUTH_ALLOWED_ORIGINS" envSeparator:","`

	HealthSweepInterval    time.Duration `env:"HEALTH_SWEEP_INTERVAL" envDefault:"15m"`
	HealthSweepBatchSize   int           `env:"HEALTH_SWEEP_BATCH_SIZE" envDefault:"10"`
	HealthFailureThreshold int           `env:"HEALTH_FAILURE_THRESHOLD" envDefault:"2"`
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	err := env.Parse(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %s", err)
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.CallbackURL == "" {
		return ErrNotConfigured
	}

	return nil
}
