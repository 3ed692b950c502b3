package approval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Channel names an approval ingestion path.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelCLI      Channel = "cli"
)

type adminConfig struct {
	Admin struct {
		TelegramChatID string `yaml:"telegram_chat_id"`
		CLIIdentity    string `yaml:"cli_identity"`
	} `yaml:"admin"`
}

// Identity enforces the single-admin model: exactly one human authority per
// configured channel, no delegation, no quorum. Modeled on
// original_source/core/approval/admin_identity.py.
type Identity struct {
	telegramChatID string
	cliIdentity    string
}

// LoadIdentity reads the admin identity document at path. At least one
// channel must be configured; otherwise this fails closed.
func LoadIdentity(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("approval: read admin config: %w", err)
	}
	var cfg adminConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("approval: parse admin config: %w", err)
	}
	if cfg.Admin.TelegramChatID == "" && cfg.Admin.CLIIdentity == "" {
		return nil, fmt.Errorf("approval: at least one admin identity (telegram or cli) must be configured")
	}
	return &Identity{
		telegramChatID: cfg.Admin.TelegramChatID,
		cliIdentity:    cfg.Admin.CLIIdentity,
	}, nil
}

// Verify reports whether identity matches the configured admin for channel.
// An unconfigured channel always rejects — no implicit defaults.
func (id *Identity) Verify(channel Channel, identity string) bool {
	switch channel {
	case ChannelTelegram:
		return id.telegramChatID != "" && identity == id.telegramChatID
	case ChannelCLI:
		return id.cliIdentity != "" && identity == id.cliIdentity
	default:
		return false
	}
}

// For returns the configured admin identity for channel, or "" if
// unconfigured or unknown.
func (id *Identity) For(channel Channel) string {
	switch channel {
	case ChannelTelegram:
		return id.telegramChatID
	case ChannelCLI:
		return id.cliIdentity
	default:
		return ""
	}
}
