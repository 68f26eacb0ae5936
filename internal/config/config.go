package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	StateFile     string `yaml:"stateFile"`
	SQLitePath    string `yaml:"sqlitePath"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
}

type Config struct {
	Port         int           `yaml:"port"`
	MasterSecret string        `yaml:"masterSecret"`
	GinMode      string        `yaml:"ginMode"`
	TLSCertFile  string        `yaml:"tlsCertFile"`
	TLSKeyFile   string        `yaml:"tlsKeyFile"`
	TokenExpiry  time.Duration `yaml:"tokenExpiry"`

	WorkerURL      string        `yaml:"workerURL"`
	WorkerPort     int           `yaml:"workerPort"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
	TrialQuota     int           `yaml:"trialQuota"`
	// TrialRateLimit is trial requests per client per minute.
	TrialRateLimit int `yaml:"trialRateLimit"`

	Store StoreConfig `yaml:"store"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func Defaults() Config {
	return Config{
		Port:           3000,
		GinMode:        "release",
		TokenExpiry:    7 * 24 * time.Hour,
		WorkerURL:      "ws://localhost:3001/",
		WorkerPort:     3001,
		ReconnectDelay: 5 * time.Second,
		SweepInterval:  60 * time.Second,
		TrialQuota:     20,
		TrialRateLimit: 30,
		Store:          StoreConfig{Driver: "memory"},
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadConfig reads the YAML file at path, or CONFIG_FILE when path is
// empty, and then the process environment.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	return Load(osEnv{}, path)
}

func LoadConfigFromEnv(env Env) (Config, error) {
	return Load(env, "")
}

// Load layers defaults, then the YAML file at path (if any), then env.
func Load(env Env, path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, env Env) error {
	var err error
	if cfg.Port, err = portEnv(env, "PORT", cfg.Port); err != nil {
		return err
	}
	if cfg.WorkerPort, err = portEnv(env, "WORKER_PORT", cfg.WorkerPort); err != nil {
		return err
	}
	if cfg.TokenExpiry, err = secondsEnv(env, "TOKEN_EXPIRY_SECONDS", cfg.TokenExpiry); err != nil {
		return err
	}
	if cfg.ReconnectDelay, err = secondsEnv(env, "RECONNECT_DELAY_SECONDS", cfg.ReconnectDelay); err != nil {
		return err
	}
	if cfg.SweepInterval, err = secondsEnv(env, "SWEEP_INTERVAL_SECONDS", cfg.SweepInterval); err != nil {
		return err
	}
	if cfg.TrialQuota, err = positiveEnv(env, "TRIAL_QUOTA", cfg.TrialQuota); err != nil {
		return err
	}
	if cfg.TrialRateLimit, err = positiveEnv(env, "TRIAL_RATE_LIMIT", cfg.TrialRateLimit); err != nil {
		return err
	}

	stringEnv(env, "MASTER_SECRET", &cfg.MasterSecret)
	stringEnv(env, "GIN_MODE", &cfg.GinMode)
	stringEnv(env, "TLS_CERT_FILE", &cfg.TLSCertFile)
	stringEnv(env, "TLS_KEY_FILE", &cfg.TLSKeyFile)
	stringEnv(env, "WORKER_URL", &cfg.WorkerURL)
	stringEnv(env, "STORE_DRIVER", &cfg.Store.Driver)
	stringEnv(env, "STATE_FILE", &cfg.Store.StateFile)
	stringEnv(env, "SQLITE_PATH", &cfg.Store.SQLitePath)
	stringEnv(env, "REDIS_ADDR", &cfg.Store.RedisAddr)
	stringEnv(env, "REDIS_PASSWORD", &cfg.Store.RedisPassword)
	stringEnv(env, "LOG_LEVEL", &cfg.LogLevel)
	stringEnv(env, "LOG_FORMAT", &cfg.LogFormat)

	if raw := env.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil || db < 0 {
			return errors.New("invalid REDIS_DB")
		}
		cfg.Store.RedisDB = db
	}
	return nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return errors.Errorf("invalid store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return errors.New("SQLITE_PATH is required for the sqlite store")
	}
	if c.Store.Driver == "redis" && c.Store.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the redis store")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// RequireSecret fails when no token signing secret is configured. The
// control plane and token commands need one; the worker does not.
func (c Config) RequireSecret() error {
	if c.MasterSecret == "" {
		return errors.New("MASTER_SECRET is required")
	}
	return nil
}

func stringEnv(env Env, key string, dst *string) {
	if raw := env.Getenv(key); raw != "" {
		*dst = raw
	}
}

func portEnv(env Env, key string, def int) (int, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, errors.Errorf("invalid %s", key)
	}
	return port, nil
}

func positiveEnv(env Env, key string, def int) (int, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid %s", key)
	}
	return n, nil
}

func secondsEnv(env Env, key string, def time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, errors.Errorf("invalid %s", key)
	}
	return time.Duration(seconds) * time.Second, nil
}
