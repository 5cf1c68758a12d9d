// SPDX-License-Identifier: MPL-2.0

package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dunhampa/poststand-core/internal/config"
	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/pkg/plan"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

// Resolver resolves dotted secret paths against a Source.
type Resolver struct {
	source   Source
	declares func(name string) bool
	logger   *log.Logger
}

// NewResolver creates a resolver. declares reports whether a secret name is
// listed in the collection's secrets; nil disables the check.
func NewResolver(source Source, declares func(string) bool, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{source: source, declares: declares, logger: logger}
}

// SelectSource picks the secret source for a collection. On an auto backend
// ephemeral hosts always use AWS; local hosts read files only when the
// collection sets userLocalSecrets.
func SelectSource(ctx context.Context, cfg config.SecretsConfig, host platform.HostKind, c *plan.Collection) (Source, error) {
	useLocal := false
	switch cfg.Backend {
	case config.SecretsLocal:
		useLocal = true
	case config.SecretsAWS:
	default:
		useLocal = !host.IsEphemeral() && c != nil && c.UserLocalSecrets
	}

	if useLocal {
		dir := cfg.LocalDir
		if dir == "" {
			if c == nil {
				return nil, fmt.Errorf("local secrets: no collection root to derive the secrets directory from")
			}
			dir = LocalDir(c.Root())
		}
		return LocalSource{Dir: dir}, nil
	}
	return NewAWSSource(ctx, cfg.Region)
}

// Resolve returns the value at path. ok is false for any miss; the reason
// is logged as a warning.
func (r *Resolver) Resolve(ctx context.Context, path string) (any, bool) {
	name, sub, _ := strings.Cut(path, ".")
	if name == "" {
		r.logger.Warn("secret lookup without a name", "path", path)
		return nil, false
	}
	if r.declares != nil && !r.declares(name) {
		r.logger.Warn("secret not declared under secrets: in the collection config", "secret", name)
	}

	raw, ok, err := r.source.Fetch(ctx, name)
	if err != nil {
		r.logger.Warn("secret fetch failed", "secret", name, "error", err)
		return nil, false
	}
	if !ok {
		r.logger.Warn("secret not found or empty", "secret", name)
		return nil, false
	}

	value := decode(raw)
	if sub == "" {
		return value, true
	}

	switch value.(type) {
	case map[string]any, []any:
	default:
		r.logger.Warn("secret is a plain value; cannot look up sub-path", "secret", name, "subpath", sub)
		return nil, false
	}

	found, ok := Lookup(value, sub)
	if !ok {
		r.logger.Warn("secret is missing sub-path", "secret", name, "subpath", sub)
	}
	return found, ok
}

// decode parses raw as JSON, keeping numbers exact. Anything else is the
// raw string.
func decode(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

// Lookup walks a dotted path through decoded JSON. Numeric segments index
// arrays. A JSON null at the end of the path counts as found.
func Lookup(value any, path string) (any, bool) {
	current := value
	for _, seg := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}
