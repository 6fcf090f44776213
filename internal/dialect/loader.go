package dialect

import (
	"embed"
	"log/slog"
)

//go:embed dialect.json
var embeddedDialect embed.FS

// LoadConfig resolves the dialect in the following order:
// 1. External file at path, when path is set
// 2. Embedded dialect.json
// 3. Hardcoded defaults
func LoadConfig(path string) Dialect {
	if path != "" {
		if d, err := Load(path); err == nil {
			slog.Info("Loaded dialect from external file", "path", path)
			return d
		} else {
			slog.Warn("Failed to load external dialect, trying embedded config", "path", path, "error", err)
		}
	}

	data, err := embeddedDialect.ReadFile("dialect.json")
	if err == nil {
		d, parseErr := LoadFromBytes(data)
		if parseErr == nil {
			slog.Info("Loaded dialect from embedded config.")
			return d
		}
		slog.Warn("Embedded dialect failed to parse. Using defaults.", "error", parseErr)
	}

	slog.Info("Using hardcoded default dialect")
	return Default()
}
