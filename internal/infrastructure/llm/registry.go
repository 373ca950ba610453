package llm

import (
	"fmt"

	"ACRScanner/internal/config"
	"ACRScanner/internal/ports"
)

// New constructs only the generator selected by cfg.Backend. A non-empty
// cfg.Model overrides the backend's own model name.
func New(cfg config.AIConfig) (ports.TextGenerator, error) {
	switch config.NormalizeBackend(cfg.Backend) {
	case config.BackendLocal:
		local := cfg.Local
		if cfg.Model != "" {
			local.Model = cfg.Model
		}
		return NewOllamaClient(local), nil
	case config.BackendRemote:
		remote := cfg.Remote
		if cfg.Model != "" {
			remote.Model = cfg.Model
		}
		if remote.APIKey == "" {
			return nil, fmt.Errorf("remote backend requires an API key (set GEMINI_API_KEY or ACR_REMOTE_API_KEY)")
		}
		return NewRemoteClient(remote), nil
	}
	return nil, fmt.Errorf("unknown ai backend %q", cfg.Backend)
}

// ModelName reports the model the selected backend will use.
func ModelName(cfg config.AIConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	if config.NormalizeBackend(cfg.Backend) == config.BackendLocal {
		return cfg.Local.Model
	}
	return cfg.Remote.Model
}
