// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunhampa/poststand-core/internal/logging"
)

const (
	// SecretsAuto uses AWS on ephemeral hosts and local files when the
	// collection opts in with userLocalSecrets.
	SecretsAuto SecretsBackend = "auto"
	// SecretsLocal always reads local secret files.
	SecretsLocal SecretsBackend = "local"
	// SecretsAWS always uses AWS Secrets Manager.
	SecretsAWS SecretsBackend = "aws"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidSecretsBackend is the sentinel error wrapped by InvalidSecretsBackendError.
	ErrInvalidSecretsBackend = errors.New("invalid secrets backend")
	// ErrInvalidLogLevel is the sentinel error wrapped by InvalidLogLevelError.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// SecretsBackend selects where secrets are read from.
	SecretsBackend string

	// InvalidSecretsBackendError is returned when a SecretsBackend value is not recognized.
	InvalidSecretsBackendError struct {
		Value SecretsBackend
	}

	// LogLevel is the minimum level logged.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config is the application configuration.
	Config struct {
		// StepsDir holds step artifacts, relative to the collection root.
		StepsDir string `json:"steps_dir" mapstructure:"steps_dir"`
		// PlanFile pins the collection config; empty means search.
		PlanFile  string          `json:"plan_file" mapstructure:"plan_file"`
		Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
		// Interpreters maps an extension to a command line and is layered
		// over the built-in table.
		Interpreters map[string]string `json:"interpreters" mapstructure:"interpreters"`
		Secrets      SecretsConfig     `json:"secrets" mapstructure:"secrets"`
		Log          LogConfig         `json:"log" mapstructure:"log"`

		// Path is the file the config was read from, empty for defaults.
		Path string `json:"-" mapstructure:"-"`
	}

	// WorkspaceConfig configures ephemeral namespaces.
	WorkspaceConfig struct {
		Root      string        `json:"root" mapstructure:"root"`
		Retention time.Duration `json:"retention" mapstructure:"retention"`
	}

	// SecretsConfig configures the secret resolver.
	SecretsConfig struct {
		Backend SecretsBackend `json:"backend" mapstructure:"backend"`
		// LocalDir overrides <collection root>/../.secrets/do_not_git.
		LocalDir string `json:"local_dir" mapstructure:"local_dir"`
		// Region overrides AWS_REGION.
		Region string `json:"region" mapstructure:"region"`
	}

	// LogConfig configures the process logger.
	LogConfig struct {
		Level  LogLevel       `json:"level" mapstructure:"level"`
		Format logging.Format `json:"format" mapstructure:"format"`
	}
)

func (e *InvalidSecretsBackendError) Error() string {
	return fmt.Sprintf("invalid secrets backend %q (valid: auto, local, aws)", e.Value)
}

func (e *InvalidSecretsBackendError) Unwrap() error { return ErrInvalidSecretsBackend }

// IsValid returns whether the SecretsBackend is one of the defined backends.
func (b SecretsBackend) IsValid() (bool, []error) {
	switch b {
	case SecretsAuto, SecretsLocal, SecretsAWS:
		return true, nil
	default:
		return false, []error{&InvalidSecretsBackendError{Value: b}}
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrInvalidConfig and every field error to errors.Is/As.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// IsValid checks constraints the schema cannot express after environment
// overrides have been applied.
func (c *Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.StepsDir) == "" {
		errs = append(errs, errors.New("steps_dir must not be empty"))
	}
	if c.Workspace.Retention <= 0 {
		errs = append(errs, fmt.Errorf("workspace.retention must be positive, got %s", c.Workspace.Retention))
	}
	if ok, fieldErrs := c.Secrets.Backend.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Log.Level.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Log.Format.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		StepsDir: "_scripts",
		Workspace: WorkspaceConfig{
			Retention: 30 * time.Minute,
		},
		Interpreters: map[string]string{},
		Secrets:      SecretsConfig{Backend: SecretsAuto},
		Log:          LogConfig{Level: LogLevelInfo, Format: logging.FormatText},
	}
}
