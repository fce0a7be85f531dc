package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ProjectSCARS/bentoauth"
)

// duration accepts Go duration strings ("30m", "72h") in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig is the daemon's YAML configuration. Unknown keys are
// rejected so a typo cannot silently disable a setting.
type fileConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Token struct {
		SigningMethod string `yaml:"signing_method"`
		// Key material, base64 encoded. For hs256 this is the shared
		// secret; for ed25519 the private key seed.
		PrivateKey string        `yaml:"private_key"`
		PublicKey  string        `yaml:"public_key"`
		AccessTTL  duration      `yaml:"access_ttl"`
		Issuer     string        `yaml:"issuer"`
	} `yaml:"token"`

	Session struct {
		RefreshTTL           duration      `yaml:"refresh_ttl"`
		MaxActivePerIdentity int           `yaml:"max_active_per_identity"`
	} `yaml:"session"`

	ValidationMode string `yaml:"validation_mode"`
}

func defaultFileConfig() fileConfig {
	var cfg fileConfig
	cfg.ListenAddr = ":8080"
	cfg.Redis.Addr = "localhost:6379"
	return cfg
}

func loadConfig(path string) (fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return parseConfig(f)
}

func parseConfig(r io.Reader) (fileConfig, error) {
	cfg := defaultFileConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return fileConfig{}, errors.New("database_url is required")
	}
	if cfg.Token.PrivateKey == "" {
		return fileConfig{}, errors.New("token.private_key is required")
	}
	return cfg, nil
}

// engineConfig overlays the file settings on the engine defaults.
func (c fileConfig) engineConfig() (bentoauth.Config, error) {
	cfg := bentoauth.DefaultConfig()

	if c.Token.SigningMethod != "" {
		cfg.Token.SigningMethod = c.Token.SigningMethod
	}
	if c.Token.AccessTTL > 0 {
		cfg.Token.AccessTTL = time.Duration(c.Token.AccessTTL)
	}
	if c.Token.Issuer != "" {
		cfg.Token.Issuer = c.Token.Issuer
	}

	privateKey, err := base64.StdEncoding.DecodeString(c.Token.PrivateKey)
	if err != nil {
		return bentoauth.Config{}, fmt.Errorf("decode token.private_key: %w", err)
	}
	cfg.Token.PrivateKey = privateKey

	if c.Token.PublicKey != "" {
		publicKey, err := base64.StdEncoding.DecodeString(c.Token.PublicKey)
		if err != nil {
			return bentoauth.Config{}, fmt.Errorf("decode token.public_key: %w", err)
		}
		cfg.Token.PublicKey = publicKey
	}

	if c.Session.RefreshTTL > 0 {
		cfg.Session.RefreshTTL = time.Duration(c.Session.RefreshTTL)
	}
	if c.Session.MaxActivePerIdentity > 0 {
		cfg.Session.MaxActivePerIdentity = c.Session.MaxActivePerIdentity
	}

	switch c.ValidationMode {
	case "":
	case "jwt_only":
		cfg.ValidationMode = bentoauth.ModeJWTOnly
	case "hybrid":
		cfg.ValidationMode = bentoauth.ModeHybrid
	case "strict":
		cfg.ValidationMode = bentoauth.ModeStrict
	default:
		return bentoauth.Config{}, fmt.Errorf("unknown validation_mode %q", c.ValidationMode)
	}

	return cfg, nil
}
