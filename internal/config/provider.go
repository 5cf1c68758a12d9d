// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where configuration comes from.
	LoadOptions struct {
		// ConfigFilePath forces a specific file (--config, PSTAND_CONFIG_PATH).
		ConfigFilePath string
		// ConfigDirPath replaces the user config directory when set.
		ConfigDirPath string
		// BaseDir is searched for pstand.cue; empty means the working
		// directory.
		BaseDir string
	}

	// Provider produces the Config a command runs with.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderFunc adapts a function to Provider.
	ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, error)
)

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return f(ctx, opts)
}

// NewProvider returns the Provider that reads CUE files and POSTSTAND_
// environment overrides.
func NewProvider() Provider {
	return ProviderFunc(loadWithOptions)
}

// Fixed returns a Provider that ignores its options and yields a copy of cfg.
// A nil cfg yields DefaultConfig.
func Fixed(cfg *Config) Provider {
	return ProviderFunc(func(context.Context, LoadOptions) (*Config, error) {
		if cfg == nil {
			return DefaultConfig(), nil
		}
		c := *cfg
		return &c, nil
	})
}
