package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds process-level settings. Per-account settings live in the
// shared/account YAML trees handled by Resolver.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Database DatabaseConfig `mapstructure:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Update   UpdateConfig   `mapstructure:"update"`
	Proxy    string         `mapstructure:"proxy"`
}

type AppConfig struct {
	Name   string `mapstructure:"name"`
	DryRun bool   `mapstructure:"dry_run"`
	Strict bool   `mapstructure:"strict"`
}

type PathsConfig struct {
	UsersDir    string   `mapstructure:"users_dir"`
	TemplateDir string   `mapstructure:"template_dir"`
	Shared      []string `mapstructure:"shared"`
	RepoRoot    string   `mapstructure:"repo_root"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	File              string `mapstructure:"file"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

// TelegramConfig is the operator command channel.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ScheduleConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ReleaseCheck string `mapstructure:"release_check"`
	DailySummary string `mapstructure:"daily_summary"`
}

type WorkerConfig struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
	SiteRetries   int           `mapstructure:"site_retries"`
	SiteTimeout   time.Duration `mapstructure:"site_timeout"`
}

type UpdateConfig struct {
	Repo         string        `mapstructure:"repo"`
	Remote       string        `mapstructure:"remote"`
	LockFile     string        `mapstructure:"lock_file"`
	StateFile    string        `mapstructure:"state_file"`
	RollbackFile string        `mapstructure:"rollback_file"`
	InstallCmd   []string      `mapstructure:"install_cmd"`
	ServiceEnv   string        `mapstructure:"service_env"`
	RestartDelay time.Duration `mapstructure:"restart_delay"`
}

// Load reads settings from an optional YAML file, then applies BOT_* environment
// overrides and defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read settings: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("stat settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "BetSentinel")
	v.SetDefault("app.dry_run", false)
	v.SetDefault("app.strict", false)
	v.SetDefault("paths.users_dir", "users")
	v.SetDefault("paths.template_dir", "users/_template")
	v.SetDefault("paths.shared", []string{
		"shared/global.local.yaml",
		"shared/global.yaml",
		"shared/global.example.yaml",
	})
	v.SetDefault("paths.repo_root", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("server.http_addr", ":9108")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("database.sqlite_path", "data/bet_sentinel.db")
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.release_check", "0 */30 * * * *")
	v.SetDefault("schedule.daily_summary", "0 0 23 * * *")
	v.SetDefault("worker.cycle_interval", "60s")
	v.SetDefault("worker.lock_timeout", "5s")
	v.SetDefault("worker.site_retries", 3)
	v.SetDefault("worker.site_timeout", "20s")
	v.SetDefault("update.repo", "")
	v.SetDefault("update.remote", "origin")
	v.SetDefault("update.lock_file", ".update.lock")
	v.SetDefault("update.state_file", ".release_state.json")
	v.SetDefault("update.rollback_file", ".release_rollback.json")
	v.SetDefault("update.install_cmd", []string{"go", "mod", "download"})
	v.SetDefault("update.service_env", "BOT_SYSTEMD_SERVICE")
	v.SetDefault("update.restart_delay", "2s")
	v.SetDefault("proxy", "")
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Paths.UsersDir == "" {
		return fmt.Errorf("paths.users_dir is required")
	}
	if len(c.Paths.Shared) == 0 {
		return fmt.Errorf("paths.shared needs at least one candidate")
	}
	if c.Worker.CycleInterval <= 0 {
		return fmt.Errorf("worker.cycle_interval must be positive")
	}
	if c.Worker.LockTimeout <= 0 {
		return fmt.Errorf("worker.lock_timeout must be positive")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	return nil
}
