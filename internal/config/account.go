package config

import (
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// AccountConfig is the typed view of an account's effective (merged) tree.
type AccountConfig struct {
	Account      AccountSection      `yaml:"account"`
	Telegram     TelegramSection     `yaml:"telegram"`
	Site         SiteSection         `yaml:"site"`
	Notification NotificationSection `yaml:"notification"`
	Groups       GroupsSection       `yaml:"groups"`
	Betting      BettingSection      `yaml:"betting"`
	Risk         RiskSection         `yaml:"risk"`
	Proxy        ProxySection        `yaml:"proxy"`
}

type AccountSection struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

type TelegramSection struct {
	SessionName string `yaml:"session_name"`
	UserID      int64  `yaml:"user_id"`
	ChatID      string `yaml:"chat_id"`
}

type SiteSection struct {
	BaseURL string        `yaml:"base_url"`
	Cookie  string        `yaml:"cookie"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	DryRun  bool          `yaml:"dry_run"`
}

type NotificationSection struct {
	ChatID  string `yaml:"chat_id"`
	Webhook string `yaml:"webhook"`
}

// GroupsSection names the chats the account talks to. AdminChat may send
// operator commands.
type GroupsSection struct {
	AdminChat string `yaml:"admin_chat"`
}

type BettingSection struct {
	Preset        string        `yaml:"preset"`
	CycleInterval time.Duration `yaml:"cycle_interval"`
	Fund          float64       `yaml:"fund"`
}

type RiskSection struct {
	BurnStreak int     `yaml:"burn_streak"`
	WarnStreak int     `yaml:"warn_streak"`
	WarnLimit  int     `yaml:"warn_limit"`
	StopLoss   float64 `yaml:"stop_loss"`
	StopProfit float64 `yaml:"stop_profit"`
}

type ProxySection struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Limits converts the risk section into RiskLimits.
func (c AccountConfig) Limits() model.RiskLimits {
	return model.RiskLimits{
		BurnStreak: c.Risk.BurnStreak,
		WarnStreak: c.Risk.WarnStreak,
		WarnLimit:  c.Risk.WarnLimit,
		StopLoss:   decimal.NewFromFloat(c.Risk.StopLoss),
		StopProfit: decimal.NewFromFloat(c.Risk.StopProfit),
	}
}

// ProxyURL returns the proxy to use, or "" when disabled.
func (c AccountConfig) ProxyURL() string {
	if !c.Proxy.Enabled {
		return ""
	}
	return c.Proxy.URL
}
