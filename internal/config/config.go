// Package config loads the issuer's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ovpn-issuer/internal/profile"
)

// DefaultPath is where the CLI looks for the configuration when --config is not given.
const DefaultPath = "/etc/ovpn-issuer/config.yaml"

// Config is the full issuer configuration.
type Config struct {
	// easy-rsa and the PKI it manages.
	EasyRSADir string `yaml:"easyrsa_dir"`
	EasyRSABin string `yaml:"easyrsa_bin"`
	PKIDir     string `yaml:"pki_dir"`
	TLSAuthKey string `yaml:"tls_auth_key"`

	// Client profiles.
	OutputDir  string `yaml:"output_dir"`
	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`
	Proto      string `yaml:"proto"`
	Cipher     string `yaml:"cipher"`

	StatusLog string `yaml:"status_log"`

	// Local state.
	Database       string        `yaml:"database"`
	StateFile      string        `yaml:"state_file"`
	EventRetention time.Duration `yaml:"event_retention"`

	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		EasyRSADir:     "/etc/openvpn/easy-rsa",
		TLSAuthKey:     "/etc/openvpn/ta.key",
		OutputDir:      "/etc/openvpn/clients",
		ServerPort:     profile.DefaultPort,
		Proto:          "udp",
		Cipher:         "AES-256-CBC",
		StatusLog:      "/var/log/openvpn/status.log",
		Database:       "/var/lib/ovpn-issuer/issuer.db",
		StateFile:      "/var/lib/ovpn-issuer/state.json",
		EventRetention: 90 * 24 * time.Hour,
		Listen:         "127.0.0.1:8094",
		LogLevel:       "info",
	}
}

// Load reads the YAML file at path on top of Default. A missing file yields the defaults.
// Unknown keys are rejected. The result is not validated; call Validate after applying overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("error opening configuration: %w", err)
	}
	defer file.Close()

	if err := Decode(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg and fills derived defaults.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	cfg.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.EasyRSADir != "" && !filepath.IsAbs(c.EasyRSADir) {
		if abs, err := filepath.Abs(c.EasyRSADir); err == nil {
			c.EasyRSADir = abs
		}
	}
	if c.PKIDir == "" && c.EasyRSADir != "" {
		c.PKIDir = filepath.Join(c.EasyRSADir, "pki")
	}
	if c.EasyRSABin == "" && c.EasyRSADir != "" {
		c.EasyRSABin = filepath.Join(c.EasyRSADir, "easyrsa")
	}
}

// Validate checks the paths and retention every command needs. Endpoint settings
// are only checked by ValidateIssuance.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ key, value string }{
		{"easyrsa_dir", c.EasyRSADir},
		{"pki_dir", c.PKIDir},
		{"tls_auth_key", c.TLSAuthKey},
		{"output_dir", c.OutputDir},
		{"database", c.Database},
		{"state_file", c.StateFile},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field.key))
		}
	}
	if c.EventRetention < 0 {
		errs = append(errs, fmt.Errorf("event_retention must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateIssuance runs Validate and also requires a usable server endpoint,
// which only commands that render profiles depend on.
func (c *Config) ValidateIssuance() error {
	return errors.Join(c.Validate(), c.ProfileParams().Validate())
}

// ProfileParams returns the client profile settings derived from the configuration.
func (c *Config) ProfileParams() profile.Params {
	params := profile.DefaultParams(c.ServerHost)
	params.Port = c.ServerPort
	params.Proto = c.Proto
	params.Cipher = c.Cipher
	return params
}
