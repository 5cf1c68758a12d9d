// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/dunhampa/poststand-core/internal/issue"
	"github.com/dunhampa/poststand-core/pkg/cueutil"
)

const (
	// AppName names the per-user config directory.
	AppName = "poststand"
	// ConfigFileName is the per-user config file name.
	ConfigFileName = "config.cue"
	// LocalConfigFileName is looked up in the working directory.
	LocalConfigFileName = "pstand.cue"
	// EnvPrefix prefixes environment overrides (POSTSTAND_LOG_LEVEL).
	EnvPrefix = "POSTSTAND"

	keyDelimiter = "::"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns <user config dir>/poststand ($XDG_CONFIG_HOME on Linux).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// loadWithOptions performs option-driven config loading. It never caches.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	// Interpreter keys are file extensions, so "." cannot be the key
	// delimiter.
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	path, err := resolvePath(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Interpreters == nil {
		cfg.Interpreters = map[string]string{}
	}
	cfg.Path = path

	if ok, errs := cfg.IsValid(); !ok {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check POSTSTAND_* environment overrides").
			Wrap(errs[0]).
			BuildError()
	}
	return &cfg, nil
}

// resolvePath returns the config file to read, or "" for defaults only.
func resolvePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'pstand config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		cfgDir = dir
	}
	if p := filepath.Join(cfgDir, ConfigFileName); fileExists(p) {
		return p, nil
	}

	local := LocalConfigFileName
	if opts.BaseDir != "" {
		local = filepath.Join(opts.BaseDir, LocalConfigFileName)
	}
	if fileExists(local) {
		return local, nil
	}
	return "", nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("steps_dir", d.StepsDir)
	v.SetDefault("plan_file", d.PlanFile)
	v.SetDefault("workspace::root", d.Workspace.Root)
	v.SetDefault("workspace::retention", d.Workspace.Retention)
	v.SetDefault("interpreters", d.Interpreters)
	v.SetDefault("secrets::backend", d.Secrets.Backend)
	v.SetDefault("secrets::local_dir", d.Secrets.LocalDir)
	v.SetDefault("secrets::region", d.Secrets.Region)
	v.SetDefault("log::level", d.Log.Level)
	v.SetDefault("log::format", d.Log.Format)
}

// loadCUEIntoViper validates the CUE file at path against #Config and
// merges it into v. Fields are optional, so the value is not required to be
// concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	result, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
		cueutil.Filename(path),
		cueutil.Partial(),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*result.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a config file.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// pstand configuration\n\n")
	fmt.Fprintf(&sb, "steps_dir: %q\n", cfg.StepsDir)
	if cfg.PlanFile != "" {
		fmt.Fprintf(&sb, "plan_file: %q\n", cfg.PlanFile)
	}

	sb.WriteString("\nworkspace: {\n")
	if cfg.Workspace.Root != "" {
		fmt.Fprintf(&sb, "\troot: %q\n", cfg.Workspace.Root)
	}
	fmt.Fprintf(&sb, "\tretention: %q\n", cfg.Workspace.Retention.String())
	sb.WriteString("}\n")

	if len(cfg.Interpreters) > 0 {
		exts := make([]string, 0, len(cfg.Interpreters))
		for ext := range cfg.Interpreters {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		sb.WriteString("\ninterpreters: {\n")
		for _, ext := range exts {
			fmt.Fprintf(&sb, "\t%q: %q\n", ext, cfg.Interpreters[ext])
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nsecrets: {\n")
	fmt.Fprintf(&sb, "\tbackend: %q\n", cfg.Secrets.Backend)
	if cfg.Secrets.LocalDir != "" {
		fmt.Fprintf(&sb, "\tlocal_dir: %q\n", cfg.Secrets.LocalDir)
	}
	if cfg.Secrets.Region != "" {
		fmt.Fprintf(&sb, "\tregion: %q\n", cfg.Secrets.Region)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	return sb.String()
}
