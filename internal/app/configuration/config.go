// Package configuration wires the process environment to the admin
// API that manages mock servers over HTTP.
package configuration

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Config is populated from the environment.
type Config struct {
	AdminPort     int           `env:"ADMIN_PORT,default=8080"`
	BindHost      string        `env:"BIND_HOST,default=127.0.0.1"`
	PactDir       string        `env:"PACT_DIR,default=./pacts"`
	VerifyTimeout time.Duration `env:"VERIFY_TIMEOUT,default=30s"`
	VerifyRetries int           `env:"VERIFY_RETRIES,default=3"`
}

func NewFromEnv() (Config, error) {
	ctx := context.Background()

	var config Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}
