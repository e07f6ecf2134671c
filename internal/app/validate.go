package app

import (
	"fmt"
	"os"

	"huddle/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks
// light so callers can surface user-friendly errors.
func validateConfig(cfg *config.Config, dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, HUDDLE_DB_PATH env, or storage.db_path in config")
	}

	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if len(cfg.Security.APIKeys.Backend) == 0 &&
		len(cfg.Security.APIKeys.Frontend) == 0 &&
		len(cfg.Security.APIKeys.Admin) == 0 {
		return fmt.Errorf("no API keys configured: set security.api_keys or HUDDLE_API_*_KEYS")
	}

	for _, name := range cfg.Channels {
		if name == "" {
			return fmt.Errorf("channels must not contain empty names")
		}
	}

	if p := cfg.Limits.Send; p.MaxCount > 0 && p.Window.Duration() <= 0 {
		return fmt.Errorf("limits.send.window must be positive when max_count is set")
	}
	if p := cfg.Limits.Support; p.MaxCount > 0 && p.Window.Duration() <= 0 {
		return fmt.Errorf("limits.support.window must be positive when max_count is set")
	}

	return nil
}
