// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/dunhampa/poststand-core/pkg/platform"
)

// handoffVars are the variables owned by the orchestrator. Inherited copies
// are dropped so a step that launches a nested run never sees its parent's
// namespace. PSTAND_HOST is deliberately absent: a forced host kind should
// reach nested runs.
var handoffVars = map[string]struct{}{
	platform.EnvGlobalsDir:   {},
	platform.EnvFunctionRoot: {},
	platform.EnvRunID:        {},
	platform.EnvStep:         {},
	platform.EnvVerbose:      {},
	platform.EnvConfigPath:   {},
}

// Env returns the handoff as environment variables. Empty fields are omitted.
func (h Handoff) Env() map[string]string {
	env := map[string]string{
		platform.EnvVerbose: strconv.FormatBool(h.Verbose),
	}
	set := func(name, value string) {
		if value != "" {
			env[name] = value
		}
	}
	set(platform.EnvGlobalsDir, h.GlobalsDir)
	set(platform.EnvFunctionRoot, h.FunctionRoot)
	set(platform.EnvRunID, h.RunID)
	set(platform.EnvStep, string(h.Step))
	set(platform.EnvConfigPath, h.ConfigPath)
	return env
}

// BuildEnv assembles a child environment: the filtered parent environment,
// then extra, then the handoff (highest priority).
func BuildEnv(environ []string, extra map[string]string, h Handoff) []string {
	env := make(map[string]string, len(environ)+len(extra)+8)
	for _, e := range FilterHandoffEnvVars(environ) {
		if name, value, ok := strings.Cut(e, "="); ok {
			env[name] = value
		}
	}
	maps.Copy(env, extra)
	maps.Copy(env, h.Env())
	return EnvToSlice(env)
}

// EnvToSlice converts a map of environment variables to a sorted slice.
func EnvToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// FilterHandoffEnvVars removes inherited handoff variables from environ.
// Malformed entries are kept.
func FilterHandoffEnvVars(environ []string) []string {
	result := make([]string, 0, len(environ))
	for _, e := range environ {
		name, _, ok := strings.Cut(e, "=")
		if ok {
			if _, owned := handoffVars[name]; owned {
				continue
			}
		}
		result = append(result, e)
	}
	return result
}
