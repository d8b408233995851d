// Package config loads alpnd settings from .env files and ALPN_* environment
// variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/cipher"
)

const envPrefix = "ALPN_"

type Config struct {
	Addr     string `json:"addr"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	// Server preference order.
	Protocols       []string `json:"protocols"`
	DefaultProtocol string   `json:"default_protocol"`

	// Enabled cipher suite names, in preference order. Empty means the
	// crypto/tls defaults.
	CipherSuites []string `json:"cipher_suites"`

	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	RestrictCiphers  bool          `json:"restrict_ciphers"`

	LogLevel string `json:"log_level"`
}

func Default() Config {
	return Config{
		Addr:             ":8443",
		Protocols:        []string{alpn.ProtocolHTTP2, alpn.ProtocolHTTP1},
		DefaultProtocol:  alpn.ProtocolHTTP1,
		HandshakeTimeout: 10 * time.Second,
		LogLevel:         "info",
	}
}

// Load reads envFiles, or ./.env if none are given and it exists, into the
// environment without overriding variables already set, then builds a Config
// from the defaults and any ALPN_* variables.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load %s", strings.Join(envFiles, ", "))
		}
	}

	c := Default()
	c.Addr = getEnvOrDefault("ADDR", c.Addr)
	c.CertFile = getEnvOrDefault("CERT_FILE", c.CertFile)
	c.KeyFile = getEnvOrDefault("KEY_FILE", c.KeyFile)
	c.Protocols = getEnvListOrDefault("PROTOCOLS", c.Protocols)
	c.DefaultProtocol = getEnvOrDefault("DEFAULT_PROTOCOL", c.DefaultProtocol)
	c.CipherSuites = getEnvListOrDefault("CIPHER_SUITES", c.CipherSuites)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	var err error
	if c.HandshakeTimeout, err = getEnvDurationOrDefault("HANDSHAKE_TIMEOUT", c.HandshakeTimeout); err != nil {
		return Config{}, err
	}
	if c.RestrictCiphers, err = getEnvBoolOrDefault("RESTRICT_CIPHERS", c.RestrictCiphers); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("empty listen address")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("certificate and key files must be set together")
	}
	if len(c.Protocols) == 0 {
		return errors.New("no application protocols")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.Errorf("handshake timeout %s is not positive", c.HandshakeTimeout)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "bad log level")
	}
	if _, err := c.CipherSuiteCodes(); err != nil {
		return err
	}
	return nil
}

// Maps CipherSuites to wire codes. Only suites crypto/tls implements are
// accepted; it silently drops any other code it is configured with.
func (c Config) CipherSuiteCodes() ([]uint16, error) {
	implemented := cipher.FromCryptoTLS()
	codes := make([]uint16, 0, len(c.CipherSuites))
	for _, name := range c.CipherSuites {
		code, ok := implemented.Code(name)
		if !ok {
			return nil, errors.Errorf("cipher suite %s is not implemented by crypto/tls", name)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// Comma separated, blanks dropped.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}

	var rv []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			rv = append(rv, v)
		}
	}
	return rv
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "bad %s%s", envPrefix, key)
	}
	return d, nil
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "bad %s%s", envPrefix, key)
	}
	return b, nil
}
