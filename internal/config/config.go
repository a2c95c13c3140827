package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runonsave/internal/store"
	apperrors "runonsave/pkg/errors"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DefaultConfigName = "runonsave"
	DefaultEnvPrefix  = "RUNONSAVE"
	DefaultAPIAddr    = "127.0.0.1:7878"
	DefaultShell      = "bash"
	DefaultDebounce   = 100 * time.Millisecond
)

type Config struct {
	Shell           string       `mapstructure:"shell"`
	Folders         []string     `mapstructure:"folders"`
	Watch           WatchConfig  `mapstructure:"watch"`
	API             APIConfig    `mapstructure:"api"`
	Output          OutputConfig `mapstructure:"output"`
	Store           StoreConfig  `mapstructure:"store"`
	DropStaleOutput bool         `mapstructure:"drop_stale_output"`
	Verbose         bool         `mapstructure:"verbose"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type OutputConfig struct {
	File string `mapstructure:"file"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ConfigOptions holds configuration loading options
type ConfigOptions struct {
	// ConfigFile, when set, must exist
	ConfigFile string
	ConfigName string
	ConfigType string
	EnvPrefix  string
	// SearchPaths default to ., ./config, $HOME/.runonsave and /etc/runonsave
	SearchPaths []string
}

// DefaultOptions returns the options used by the CLI
func DefaultOptions() ConfigOptions {
	return ConfigOptions{
		ConfigName: DefaultConfigName,
		ConfigType: "yaml",
		EnvPrefix:  DefaultEnvPrefix,
		SearchPaths: []string{
			".",
			"./config",
			"$HOME/.runonsave",
			"/etc/runonsave",
		},
	}
}

// NewViper builds a viper instance with defaults, env binding and the config
// file, if one is found
func NewViper(opts ConfigOptions) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", opts.ConfigFile, err)
		}
		log.Debugf("Loaded config file: %s", v.ConfigFileUsed())
		return v, nil
	}

	if opts.ConfigType != "" {
		v.SetConfigType(opts.ConfigType)
	}
	name := opts.ConfigName
	if name == "" {
		name = DefaultConfigName
	}
	v.SetConfigName(name)
	for _, path := range opts.SearchPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debugf("No %s config file found in %v, using defaults", name, opts.SearchPaths)
		return v, nil
	}

	log.Debugf("Loaded config file: %s", v.ConfigFileUsed())
	return v, nil
}

// Load reads the configuration and validates it
func Load(opts ConfigOptions) (*Config, error) {
	v, err := NewViper(opts)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Env vars arrive as a single string
	if len(cfg.Folders) == 1 && strings.Contains(cfg.Folders[0], string(os.PathListSeparator)) {
		cfg.Folders = filepath.SplitList(cfg.Folders[0])
	}

	cfg.applyStoreDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shell", DefaultShell)
	v.SetDefault("folders", []string{})
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", DefaultDebounce)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", DefaultAPIAddr)
	v.SetDefault("output.file", "")
	v.SetDefault("store.driver", store.DriverFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("drop_stale_output", false)
	v.SetDefault("verbose", false)
}

func (c *Config) applyStoreDefaults() {
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	switch c.Store.Driver {
	case store.DriverFile:
		if c.Store.Path == "" {
			c.Store.Path = defaultStatePath("state.yaml")
		}
	case store.DriverSQLite:
		if c.Store.Path == "" {
			c.Store.Path = defaultStatePath("state.db")
		}
	case store.DriverPostgres:
		if c.Store.DSN == "" {
			c.Store.DSN = PostgresDSNFromEnv()
		}
	}
}

// Validate checks the fields that have a restricted domain
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Shell) == "" {
		return apperrors.NewConfigError("shell", c.Shell, "must not be empty")
	}
	if c.Watch.Debounce < 0 {
		return apperrors.NewConfigError("watch.debounce", c.Watch.Debounce, "must not be negative")
	}
	if c.API.Enabled && strings.TrimSpace(c.API.Addr) == "" {
		return apperrors.NewConfigError("api.addr", c.API.Addr, "required when the API is enabled")
	}

	validDrivers := map[string]bool{
		store.DriverMemory:   true,
		store.DriverFile:     true,
		store.DriverSQLite:   true,
		store.DriverPostgres: true,
	}
	if !validDrivers[c.Store.Driver] {
		return apperrors.NewConfigError("store.driver", c.Store.Driver, "must be one of: memory, file, sqlite, postgres")
	}
	return nil
}

// StoreOptions converts the store section for store.Open
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Driver: c.Store.Driver,
		Path:   c.Store.Path,
		DSN:    c.Store.DSN,
	}
}

// PostgresDSNFromEnv builds a DSN from environment variables with sensible
// defaults. Supported env vars: DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME
func PostgresDSNFromEnv() string {
	host := getenvDefault("DB_HOST", "localhost")
	portStr := getenvDefault("DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 5432
	}
	user := getenvDefault("DB_USER", "runonsave")
	pass := getenvDefault("DB_PASSWORD", "runonsave")
	name := getenvDefault("DB_NAME", "runonsave")

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, pass, name)
}

func defaultStatePath(file string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".runonsave", file)
	}
	return filepath.Join(home, ".runonsave", file)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GlobalFlags are the persistent CLI flags shared by every command
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
}

// LoadForFlags loads the configuration honouring the global flags
func LoadForFlags(flags *GlobalFlags) (*Config, error) {
	opts := DefaultOptions()
	opts.ConfigFile = flags.ConfigFile
	cfg, err := Load(opts)
	if err != nil {
		return nil, err
	}
	if flags.Verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}
