// Package config is the layered process-configuration manager: env > file >
// defaults (no command-line flags are bound), modeled on
// kubilitics-ai/internal/config.ConfigManager.
// It covers process-level settings only — bus address, ports, log level,
// audit directory, policy/admin file paths, autonomy level, council
// thresholds — never the SAFE/RISKY policy listings themselves, which
// internal/policy reads once at startup and never watches (self-modifying
// policies are a non-goal).
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`

	Bus struct {
		Prefix string `mapstructure:"prefix"`
		MaxLen int64  `mapstructure:"max_len"`
	} `mapstructure:"bus"`

	Logging struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"logging"`

	Audit struct {
		Dir        string `mapstructure:"dir"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"audit"`

	Policy struct {
		SafeFile      string `mapstructure:"safe_file"`
		RiskyFile     string `mapstructure:"risky_file"`
		CooldownsFile string `mapstructure:"cooldowns_file"`
	} `mapstructure:"policy"`

	AdminIdentityFile string `mapstructure:"admin_identity_file"`

	Brain struct {
		AutonomyLevel    string `mapstructure:"autonomy_level"`
		ApprovalTimeoutS int    `mapstructure:"approval_timeout_s"`
	} `mapstructure:"brain"`

	Council struct {
		Enabled               bool    `mapstructure:"enabled"`
		ConfidenceThreshold   float64 `mapstructure:"confidence_threshold"`
		SafetyVetoThreshold   float64 `mapstructure:"safety_veto_threshold"`
		MinFreeRAMMB          int     `mapstructure:"min_free_ram_mb"`
		CPUTempWarnCelsius    float64 `mapstructure:"cpu_temp_warn_celsius"`
	} `mapstructure:"council"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Admin struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"admin"`
}

// Manager is modeled on kubilitics-ai's ConfigManager interface and exposes
// Load, Get, Validate and Watch; it has no Reload method.
type Manager interface {
	Load() error
	Get() *Config
	Validate() error
	Watch(onChange func(*Config)) error
}

type viperManager struct {
	v          *viper.Viper
	mu         sync.RWMutex
	cfg        *Config
	configPath string
}

// NewManager returns a Manager that reads configPath if non-empty, then env
// vars prefixed ORION_, then the defaults below.
func NewManager(configPath string) Manager {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("ORION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("bus.prefix", "orion")
	v.SetDefault("bus.max_len", 10000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("audit.dir", "logs/audit")
	v.SetDefault("audit.max_size_mb", 100)
	v.SetDefault("audit.max_backups", 10)
	v.SetDefault("audit.max_age_days", 30)
	v.SetDefault("audit.compress", true)
	v.SetDefault("policy.safe_file", "config/policy/safe_actions.yaml")
	v.SetDefault("policy.risky_file", "config/policy/risky_actions.yaml")
	v.SetDefault("policy.cooldowns_file", "config/policy/cooldowns.yaml")
	v.SetDefault("admin_identity_file", "config/admin_identity.yaml")
	v.SetDefault("brain.autonomy_level", "N0")
	v.SetDefault("brain.approval_timeout_s", 300)
	v.SetDefault("council.enabled", false)
	v.SetDefault("council.confidence_threshold", 0.7)
	v.SetDefault("council.safety_veto_threshold", 0.8)
	v.SetDefault("council.min_free_ram_mb", 4096)
	v.SetDefault("council.cpu_temp_warn_celsius", 70.0)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("admin.addr", "localhost:8787")

	return &viperManager{v: v, configPath: configPath}
}

func (m *viperManager) Load() error {
	if m.configPath != "" {
		if err := m.v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", m.configPath, err)
		}
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}

	m.mu.Lock()
	m.cfg = &cfg
	m.mu.Unlock()

	return m.Validate()
}

func (m *viperManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *viperManager) Validate() error {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	if cfg == nil {
		return fmt.Errorf("config: not loaded")
	}
	switch cfg.Brain.AutonomyLevel {
	case "N0", "N2", "N3":
	default:
		return fmt.Errorf("config: brain.autonomy_level must be one of N0, N2, N3, got %q", cfg.Brain.AutonomyLevel)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr must not be empty")
	}
	return nil
}

// Watch subscribes to file changes for the process-config file (not the
// policy files — those are read once, per spec). onChange is invoked with
// the freshly reloaded Config after each write.
func (m *viperManager) Watch(onChange func(*Config)) error {
	if m.configPath == "" {
		return nil
	}
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		if err := m.Load(); err == nil {
			onChange(m.Get())
		}
	})
	m.v.WatchConfig()
	return nil
}
