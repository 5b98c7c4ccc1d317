package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	LLM       LLMConfig
	Notify    NotifyConfig
	Tax       TaxConfig
	Geo       GeoConfig
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	FollowUp  FollowUpConfig  `mapstructure:"followup"`
	Admins    AdminsConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string `mapstructure:"cors_origins"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	Production  bool
	StorageDir  string `mapstructure:"storage_dir"`
	BaseURL     string `mapstructure:"base_url"`
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider    string
	APIKeyEnv   string `mapstructure:"api_key_env"`
	APIKey      string `mapstructure:"api_key"`
	Model       string
	TriageModel string `mapstructure:"triage_model"`
}

// NotifyConfig groups the outbound channels.
type NotifyConfig struct {
	Email EmailConfig
	SMS   SMSConfig
}

// EmailConfig configures the Resend mailer.
type EmailConfig struct {
	Enabled bool
	APIKey  string `mapstructure:"api_key"`
	From    string
}

// SMSConfig configures the Twilio sender.
type SMSConfig struct {
	Enabled      bool
	AccountSID   string `mapstructure:"account_sid"`
	AuthToken    string `mapstructure:"auth_token"`
	From         string
	DefaultAdmin string `mapstructure:"default_admin"`
}

// TaxConfig holds sales tax rates as fractions.
type TaxConfig struct {
	GST        float64
	PST        float64
	PSTOnLabor bool `mapstructure:"pst_on_labor"`
}

type GeoConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// FollowUpConfig controls the quote reminder sweep. Interval 0 disables the
// background loop in serve.
type FollowUpConfig struct {
	Interval time.Duration
	After    time.Duration
}

type AdminsConfig struct {
	UserIDs []string `mapstructure:"user_ids"`
}

// Load reads configuration from file and env. Env var overrides use prefix AQUAFLOW_.
// An explicit path wins over AQUAFLOW_CONFIG.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv("AQUAFLOW_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "aquaflow"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("AQUAFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "aquaflow")
	v.SetDefault("database.path", filepath.Join(dataDir, "aquaflow.db"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.production", false)
	v.SetDefault("server.storage_dir", filepath.Join(dataDir, "attachments"))
	v.SetDefault("server.base_url", "http://localhost:5173")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key_env", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4-1106-preview")
	v.SetDefault("llm.triage_model", "gpt-4o")
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.api_key", "")
	v.SetDefault("notify.email.from", "AquaFlow Plumbing <noreply@aquaflow.example>")
	v.SetDefault("notify.sms.enabled", false)
	v.SetDefault("notify.sms.account_sid", "")
	v.SetDefault("notify.sms.auth_token", "")
	v.SetDefault("notify.sms.from", "")
	v.SetDefault("notify.sms.default_admin", "")
	v.SetDefault("tax.gst", 0.05)
	v.SetDefault("tax.pst", 0.07)
	v.SetDefault("tax.pst_on_labor", false)
	v.SetDefault("geo.api_key", "")
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("followup.interval", time.Duration(0))
	v.SetDefault("followup.after", 72*time.Hour)
	v.SetDefault("admins.user_ids", []string{})
}

// Save writes the non-secret parts of cfg to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	if path == "" {
		path = os.Getenv("AQUAFLOW_CONFIG")
	}
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "aquaflow", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.cors_origins", cfg.Server.CORSOrigins)
	v.Set("server.production", cfg.Server.Production)
	v.Set("server.storage_dir", cfg.Server.StorageDir)
	v.Set("server.base_url", cfg.Server.BaseURL)
	v.Set("llm.provider", cfg.LLM.Provider)
	v.Set("llm.api_key_env", cfg.LLM.APIKeyEnv)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.triage_model", cfg.LLM.TriageModel)
	v.Set("notify.email.enabled", cfg.Notify.Email.Enabled)
	v.Set("notify.email.from", cfg.Notify.Email.From)
	v.Set("notify.sms.enabled", cfg.Notify.SMS.Enabled)
	v.Set("notify.sms.from", cfg.Notify.SMS.From)
	v.Set("notify.sms.default_admin", cfg.Notify.SMS.DefaultAdmin)
	v.Set("tax.gst", cfg.Tax.GST)
	v.Set("tax.pst", cfg.Tax.PST)
	v.Set("tax.pst_on_labor", cfg.Tax.PSTOnLabor)
	v.Set("ratelimit.rps", cfg.RateLimit.RPS)
	v.Set("ratelimit.burst", cfg.RateLimit.Burst)
	v.Set("followup.interval", cfg.FollowUp.Interval.String())
	v.Set("followup.after", cfg.FollowUp.After.String())
	v.Set("admins.user_ids", cfg.Admins.UserIDs)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
