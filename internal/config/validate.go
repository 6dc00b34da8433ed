package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Mode names the command a Config is being validated for.
type Mode string

const (
	// ModeRun processes one document and sends email.
	ModeRun Mode = "run"
	// ModeDryRun processes one document without sending email.
	ModeDryRun Mode = "run-dry"
	// ModeServe runs the upload server.
	ModeServe Mode = "serve"
	// ModeRuns reads run history only.
	ModeRuns Mode = "runs"
)

// Validate checks that the keys mode depends on are present. All problems
// are reported together.
func (c *Config) Validate(mode Mode) error {
	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		need(c.Store.DatabaseURL != "", "store.database_url")
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if mode == ModeRuns {
		return missingErr(missing)
	}

	need(c.Anthropic.Key != "", "anthropic.api_key")
	if mode != ModeDryRun {
		need(c.SMTP.Host != "", "smtp.host")
		need(c.SMTP.Sender != "", "smtp.sender")
	}

	switch c.Registry.Source {
	case RegistrySourceBuiltin, "":
	case RegistrySourceFile, RegistrySourceXLSX:
		need(c.Registry.Path != "", "registry.path")
	case RegistrySourceNotion:
		need(c.Notion.Token != "", "notion.token")
		need(c.Registry.NotionDatabaseID != "", "registry.notion_database_id")
	default:
		return eris.Errorf("config: unknown registry.source %q", c.Registry.Source)
	}

	return missingErr(missing)
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return eris.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
}
