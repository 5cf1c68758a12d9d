// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	// HostLocal is a developer workstation or CI runner.
	HostLocal HostKind = "local"
	// HostEphemeral is a serverless invocation with a recyclable scratch dir.
	HostEphemeral HostKind = "ephemeral"
)

// ErrInvalidHostKind is the sentinel error wrapped by InvalidHostKindError.
var ErrInvalidHostKind = errors.New("invalid host kind")

// detectOnce caches host detection for the lifetime of the process.
//
// INVARIANT: HostFromEnv MUST NOT panic; sync.OnceValue re-panics on every call.
var detectOnce = sync.OnceValue(func() HostKind {
	return HostFromEnv(os.Getenv)
})

type (
	// HostKind identifies the kind of host the process runs on.
	HostKind string

	// InvalidHostKindError is returned when a HostKind is not recognized.
	InvalidHostKindError struct {
		Value HostKind
	}
)

// Error implements the error interface.
func (e *InvalidHostKindError) Error() string {
	return fmt.Sprintf("invalid host kind %q (valid: local, ephemeral)", e.Value)
}

// Unwrap returns ErrInvalidHostKind so callers can use errors.Is for programmatic detection.
func (e *InvalidHostKindError) Unwrap() error { return ErrInvalidHostKind }

// IsValid returns whether the HostKind is one of the defined kinds.
func (h HostKind) IsValid() (bool, []error) {
	switch h {
	case HostLocal, HostEphemeral:
		return true, nil
	default:
		return false, []error{&InvalidHostKindError{Value: h}}
	}
}

// IsEphemeral reports whether the host recycles its scratch directory.
func (h HostKind) IsEphemeral() bool { return h == HostEphemeral }

// String returns the string representation of the HostKind.
func (h HostKind) String() string { return string(h) }

// DetectHost returns the host kind of the current process. The result is
// cached after the first call.
func DetectHost() HostKind {
	return detectOnce()
}

// HostFromEnv classifies the host using the given environment lookup.
// An explicit PSTAND_HOST wins; otherwise any of the Lambda runtime
// variables marks the host as ephemeral.
func HostFromEnv(getenv func(string) string) HostKind {
	if forced := HostKind(strings.ToLower(strings.TrimSpace(getenv(EnvHost)))); forced != "" {
		if ok, _ := forced.IsValid(); ok {
			return forced
		}
	}

	for _, name := range []string{EnvLambdaFunctionName, EnvLambdaExecutionEnv, EnvLambdaTaskRoot} {
		if getenv(name) != "" {
			return HostEphemeral
		}
	}
	return HostLocal
}
