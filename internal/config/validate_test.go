package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Anthropic: AnthropicConfig{Key: "sk-test"},
		SMTP:      SMTPConfig{Host: "smtp.example.com", Sender: "bot@example.com"},
		Registry:  RegistryConfig{Source: RegistrySourceBuiltin},
		Store:     StoreConfig{Driver: "sqlite", DatabaseURL: "intake.db"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		mode    Mode
		wantErr string
	}{
		{name: "complete run", mode: ModeRun},
		{name: "complete serve", mode: ModeServe},
		{
			name:    "run needs smtp",
			mutate:  func(c *Config) { c.SMTP = SMTPConfig{} },
			mode:    ModeRun,
			wantErr: "smtp.host, smtp.sender",
		},
		{
			name:   "dry run skips smtp",
			mutate: func(c *Config) { c.SMTP = SMTPConfig{} },
			mode:   ModeDryRun,
		},
		{
			name:    "dry run still needs anthropic",
			mutate:  func(c *Config) { c.Anthropic.Key = "" },
			mode:    ModeDryRun,
			wantErr: "anthropic.api_key",
		},
		{
			name:   "runs only needs store",
			mutate: func(c *Config) { c.Anthropic.Key = ""; c.SMTP = SMTPConfig{} },
			mode:   ModeRuns,
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			mode:    ModeRuns,
			wantErr: `unknown store.driver "mysql"`,
		},
		{
			name:    "file registry needs path",
			mutate:  func(c *Config) { c.Registry.Source = RegistrySourceFile },
			mode:    ModeRun,
			wantErr: "registry.path",
		},
		{
			name:    "notion registry needs token and database",
			mutate:  func(c *Config) { c.Registry.Source = RegistrySourceNotion },
			mode:    ModeServe,
			wantErr: "notion.token, registry.notion_database_id",
		},
		{
			name:    "unknown registry source",
			mutate:  func(c *Config) { c.Registry.Source = "ldap" },
			mode:    ModeRun,
			wantErr: `unknown registry.source "ldap"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
