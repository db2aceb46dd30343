package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7480"
	DefaultDataDirName = ".swanid"
	DefaultDBFileName  = "swanid.db"
	DefaultLogLevel    = "debug"
	ConfigFileName     = ".swanid.toml"

	DefaultMaxUploadBytes     int64 = 32 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024

	DefaultInferenceTimeout       = "60s"
	DefaultInferenceMaxConcurrent = 2

	configDirEnvKey          = "SWANID_CONFIG_DIR"
	trustProjectConfigEnvKey = "SWANID_TRUST_PROJECT_CONFIG"

	apiURLEnvKey       = "SWANID_API_URL"
	dbPathEnvKey       = "SWANID_DB"
	dataDirEnvKey      = "SWANID_DATA_DIR"
	scratchDirEnvKey   = "SWANID_SCRATCH_DIR"
	inferenceURLEnvKey = "SWANID_INFERENCE_URL"
)

// UploadConfig bounds multipart uploads.
type UploadConfig struct {
	MaxUploadBytes     int64 `toml:"max_upload_bytes"`
	MultipartMaxMemory int64 `toml:"multipart_max_memory"`
}

// InferenceConfig points at the external classification service.
type InferenceConfig struct {
	URL           string `toml:"url"`
	Timeout       string `toml:"timeout"`
	MaxConcurrent int    `toml:"max_concurrent"`
}

// CORSConfig controls cross-origin access for browser clients.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APITokenHash string `toml:"api_token_hash"`
}

// Config defines runtime configuration for swanid.
type Config struct {
	APIURL                   string          `toml:"api_url"`
	DataDir                  string          `toml:"data_dir"`
	DBPath                   string          `toml:"db_path"`
	ScratchDir               string          `toml:"scratch_dir"`
	LogLevel                 string          `toml:"log_level"`
	Uploads                  UploadConfig    `toml:"uploads"`
	Inference                InferenceConfig `toml:"inference"`
	Auth                     AuthConfig      `toml:"auth"`
	CORS                     CORSConfig      `toml:"cors"`
	TrustedProjectConfigPath string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Uploads: UploadConfig{
			MaxUploadBytes:     DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
		},
		Inference: InferenceConfig{
			Timeout:       DefaultInferenceTimeout,
			MaxConcurrent: DefaultInferenceMaxConcurrent,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// ImagesDir is where image blobs live.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

// InferenceTimeout parses the configured timeout, falling back to the default.
func (c *Config) InferenceTimeout() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.Inference.Timeout)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultInferenceTimeout)
	return d
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ConfigFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"data_dir",
	"db_path",
	"scratch_dir",
	"log_level",
	"uploads.max_upload_bytes",
	"uploads.multipart_max_memory",
	"inference.url",
	"inference.timeout",
	"inference.max_concurrent",
	"auth.api_token_hash",
	"cors.allowed_origins",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "data_dir":
		return c.DataDir, nil
	case "db_path":
		return c.DBPath, nil
	case "scratch_dir":
		return c.ScratchDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "inference.url":
		return c.Inference.URL, nil
	case "inference.timeout":
		return c.Inference.Timeout, nil
	case "inference.max_concurrent":
		return strconv.Itoa(c.Inference.MaxConcurrent), nil
	case "auth.api_token_hash":
		return c.Auth.APITokenHash, nil
	case "cors.allowed_origins":
		return strings.Join(c.CORS.AllowedOrigins, ","), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ConfigFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, ConfigFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, ConfigFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnvOverrides(&cfg)
	cfg.normalize()

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{apiURLEnvKey, &cfg.APIURL},
		{dataDirEnvKey, &cfg.DataDir},
		{dbPathEnvKey, &cfg.DBPath},
		{scratchDirEnvKey, &cfg.ScratchDir},
		{inferenceURLEnvKey, &cfg.Inference.URL},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.key)); value != "" {
			*o.dst = value
		}
	}
}

// normalize fills derived paths and repairs out-of-range values.
func (c *Config) normalize() {
	if c.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.DataDir = filepath.Join(cwd, DefaultDataDirName)
		} else {
			c.DataDir = DefaultDataDirName
		}
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, DefaultDBFileName)
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(c.DataDir, "scratch")
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Inference.MaxConcurrent <= 0 {
		c.Inference.MaxConcurrent = DefaultInferenceMaxConcurrent
	}
	if strings.TrimSpace(c.Inference.Timeout) == "" {
		c.Inference.Timeout = DefaultInferenceTimeout
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "inference.max_concurrent":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "inference.timeout":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration like 30s", key)
		}
		return value, nil
	case "cors.allowed_origins":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
