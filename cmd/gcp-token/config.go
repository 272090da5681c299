package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/bionicotaku/lingo-utils-gcpauth"
)

// config holds the CLI settings read from the environment and flags.
type config struct {
	CredentialsFile string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Scopes          []string      `env:"GCP_TOKEN_SCOPES" envSeparator:","`
	Subject         string        `env:"GCP_TOKEN_SUBJECT"`
	TokenURL        string        `env:"GCP_TOKEN_URL"`
	JWKSURL         string        `env:"GCP_TOKEN_JWKS_URL"`
	Timeout         time.Duration `env:"GCP_TOKEN_TIMEOUT" envDefault:"30s"`
	Verify          bool          `env:"GCP_TOKEN_VERIFY"`
	Inspect         bool          `env:"GCP_TOKEN_INSPECT"`
	Verbosity       int           `env:"GCP_TOKEN_VERBOSITY"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// fillFromEnv re-reads the environment after an alternate .env file was loaded and
// applies every setting whose flag was not given explicitly on the command line.
func fillFromEnv(cfg *config, explicit map[string]bool) error {
	fromEnv, err := loadConfig()
	if err != nil {
		return err
	}
	if !explicit["credentials"] {
		cfg.CredentialsFile = fromEnv.CredentialsFile
	}
	if !explicit["scopes"] {
		cfg.Scopes = fromEnv.Scopes
	}
	if !explicit["subject"] {
		cfg.Subject = fromEnv.Subject
	}
	if !explicit["token-url"] {
		cfg.TokenURL = fromEnv.TokenURL
	}
	if !explicit["jwks-url"] {
		cfg.JWKSURL = fromEnv.JWKSURL
	}
	if !explicit["timeout"] {
		cfg.Timeout = fromEnv.Timeout
	}
	if !explicit["verify"] {
		cfg.Verify = fromEnv.Verify
	}
	if !explicit["inspect"] {
		cfg.Inspect = fromEnv.Inspect
	}
	if !explicit["v"] {
		cfg.Verbosity = fromEnv.Verbosity
	}
	return nil
}

// scope joins the configured scopes, defaulting to cloud-platform.
func (c config) scope() gcpauth.Scope {
	if len(c.Scopes) == 0 {
		return gcpauth.ScopeCloudPlatform
	}
	scopes := make([]gcpauth.Scope, len(c.Scopes))
	for i, s := range c.Scopes {
		scopes[i] = gcpauth.Scope(s)
	}
	return gcpauth.JoinScopes(scopes...)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultEnvPath() string {
	if path := os.Getenv("GCP_TOKEN_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

// loadEnvFile exports the variables in path without overriding ones that are already
// set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
