package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/scy/cred/secret"
	"gopkg.in/yaml.v3"
)

// Config defines the service settings.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Index  IndexConfig  `yaml:"index"`
	Server ServerConfig `yaml:"server"`
}

// StoreConfig defines sequence and job persistence.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Secret string `yaml:"secret,omitempty"`
}

// IndexConfig defines snapshot location and build settings.
type IndexConfig struct {
	Dir                 string `yaml:"dir"`
	SpoolDir            string `yaml:"spoolDir"`
	DefaultDistance     int    `yaml:"defaultDistance"`
	BuildTimeoutSeconds int    `yaml:"buildTimeoutSeconds"`
	BatchSize           int    `yaml:"batchSize"`
	CacheSize           int    `yaml:"cacheSize"`
}

// ServerConfig defines the HTTP endpoint.
type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	UploadRate     float64 `yaml:"uploadRate"`
	UploadBurst    int     `yaml:"uploadBurst"`
	MaxUploadBytes int64   `yaml:"maxUploadBytes"`
}

// BuildTimeout returns the configured build watchdog, zero when disabled.
func (c *IndexConfig) BuildTimeout() time.Duration {
	if c.BuildTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.BuildTimeoutSeconds) * time.Second
}

// DefaultConfig returns settings rooted at ~/seqindex.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite", DSN: "~/seqindex/seqindex.sqlite"},
		Index: IndexConfig{
			Dir:             "~/seqindex/index",
			DefaultDistance: DefaultDistance,
			BatchSize:       500,
			CacheSize:       256,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8888",
			UploadRate:     1,
			UploadBurst:    2,
			MaxUploadBytes: 1 << 30,
		},
	}
}

// LoadConfig reads path over DefaultConfig and expands it. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Init(context.Background()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig reads path over DefaultConfig without expanding paths or secrets.
func ReadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	path, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Init expands user paths and store secrets.
func (c *Config) Init(ctx context.Context) error {
	var err error
	if c.Store.DSN, err = expandStoreDSN(c.Store.DSN, c.Store.Driver); err != nil {
		return err
	}
	if c.Store.DSN, err = ExpandDSNWithSecret(ctx, c.Store.DSN, c.Store.Secret); err != nil {
		return err
	}
	if c.Index.Dir, err = expandUserPath(c.Index.Dir); err != nil {
		return err
	}
	if c.Index.SpoolDir == "" && c.Index.Dir != "" {
		c.Index.SpoolDir = filepath.Join(c.Index.Dir, "uploads")
	}
	if c.Index.SpoolDir, err = expandUserPath(c.Index.SpoolDir); err != nil {
		return err
	}
	if c.Index.DefaultDistance <= 0 {
		c.Index.DefaultDistance = DefaultDistance
	}
	return nil
}

func expandUserPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed[0] != '~' && !strings.HasPrefix(trimmed, "file:") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(trimmed, "file:") {
		rest := strings.TrimLeft(strings.TrimPrefix(trimmed, "file:"), "/")
		if !strings.HasPrefix(rest, "~") {
			return path, nil
		}
		return "file:" + filepath.ToSlash(filepath.Join(home, strings.TrimPrefix(rest, "~"))), nil
	}
	if trimmed == "~" {
		return home, nil
	}
	if !strings.HasPrefix(trimmed, "~/") {
		return "", fmt.Errorf("config: unsupported ~user path: %s", path)
	}
	return filepath.Join(home, trimmed[2:]), nil
}

func expandStoreDSN(dsn, driver string) (string, error) {
	if dsn == "" {
		return dsn, nil
	}
	if driver == "sqlite" || dsn[0] == '~' || dsn[0] == '/' || strings.HasPrefix(dsn, "file:") {
		return expandUserPath(dsn)
	}
	return dsn, nil
}

// ExpandDSNWithSecret loads a secret and expands placeholders in the DSN.
func ExpandDSNWithSecret(ctx context.Context, dsn, secretRef string) (string, error) {
	secretRef = strings.TrimSpace(secretRef)
	if secretRef == "" {
		return dsn, nil
	}
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("secret %q provided but dsn is empty", secretRef)
	}
	svc := secret.New()
	sec, err := svc.Lookup(ctx, secret.Resource(secretRef))
	if err != nil {
		return "", err
	}
	return sec.Expand(dsn), nil
}
