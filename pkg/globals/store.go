// SPDX-License-Identifier: MPL-2.0

package globals

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dunhampa/poststand-core/pkg/fspath"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

const (
	// FileName is the name of the store file inside a namespace directory.
	FileName = "globals.json"
	// QueueKey is the reserved key holding requested follow-up steps.
	QueueKey = "nextScripts"
)

// Store is a handle on one run namespace. It holds no cached state; every
// call reads the file afresh so writes from step processes are always seen.
type Store struct {
	dir string
}

// Open returns a store rooted at dir, creating the directory if needed.
// A temp file left by an interrupted write is recovered first.
func Open(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving namespace directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating namespace directory: %w", err)
	}

	s := &Store{dir: abs}
	if _, err := fspath.RecoverTemp(s.Path()); err != nil {
		return nil, fmt.Errorf("recovering interrupted write: %w", err)
	}
	return s, nil
}

// OpenFromEnv resolves the namespace the way a step process must: from
// PSTAND_GLOBALS_DIR. On an ephemeral host the variable is mandatory and its
// absence yields ErrNamespaceNotEstablished; elsewhere the current working
// directory is the fallback.
func OpenFromEnv() (*Store, error) {
	return openFromEnv(os.Getenv, os.Getwd)
}

func openFromEnv(getenv func(string) string, getwd func() (string, error)) (*Store, error) {
	if dir := getenv(platform.EnvGlobalsDir); dir != "" {
		return Open(dir)
	}

	if platform.HostFromEnv(getenv).IsEphemeral() {
		return nil, fmt.Errorf("%w: %s is not set", ErrNamespaceNotEstablished, platform.EnvGlobalsDir)
	}

	wd, err := getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return Open(wd)
}

// Dir returns the namespace directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the full path of globals.json.
func (s *Store) Path() string { return filepath.Join(s.dir, FileName) }

// Get returns the value stored under key and whether the key exists.
func (s *Store) Get(key string) (any, bool, error) {
	values, err := s.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) error {
	return s.update(func(values map[string]any) error {
		values[key] = value
		return nil
	})
}

// SetMany stores every entry of batch in a single write.
func (s *Store) SetMany(batch map[string]any) error {
	if len(batch) == 0 {
		return nil
	}
	return s.update(func(values map[string]any) error {
		for k, v := range batch {
			values[k] = v
		}
		return nil
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.update(func(values map[string]any) error {
		delete(values, key)
		return nil
	})
}

// Clear replaces the store with an empty object.
func (s *Store) Clear() error {
	return s.write(map[string]any{})
}

// ListAll returns a snapshot of every key and value.
func (s *Store) ListAll() (map[string]any, error) {
	return s.read()
}

// Enqueue appends step identifiers to the nextScripts queue, preserving
// their order.
func (s *Store) Enqueue(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.update(func(values map[string]any) error {
		queue, err := queueFrom(values[QueueKey])
		if err != nil {
			return err
		}
		for _, id := range ids {
			queue = append(queue, id)
		}
		values[QueueKey] = queue
		return nil
	})
}

// DrainQueue returns the queued step identifiers and clears the queue in the
// same write. A malformed queue is cleared as well and reported as
// ErrMalformedQueue.
func (s *Store) DrainQueue() ([]string, error) {
	var (
		drained  []string
		queueErr error
	)
	err := s.update(func(values map[string]any) error {
		raw, ok := values[QueueKey]
		if !ok {
			return errNoChange
		}
		queue, err := queueFrom(raw)
		if err != nil {
			queueErr = err
		}
		for _, item := range queue {
			drained = append(drained, item.(string))
		}
		values[QueueKey] = []any{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drained, queueErr
}

// errNoChange lets an update callback skip the write.
var errNoChange = errors.New("no change")

func (s *Store) update(mutate func(map[string]any) error) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	if err := mutate(values); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	return s.write(values)
}

func (s *Store) read() (map[string]any, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading global store: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, &CorruptStoreError{Path: s.Path(), Err: err}
	}
	if values == nil {
		// The document was the literal null.
		values = map[string]any{}
	}
	return values, nil
}

func (s *Store) write(values map[string]any) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding global store: %w", err)
	}
	data = append(data, '\n')
	return fspath.WriteAtomic(s.Path(), data, 0o644)
}

// queueFrom normalizes a stored queue value. A missing value is an empty
// queue. The returned slice only holds strings; anything else is reported
// as ErrMalformedQueue alongside the well-formed items.
func queueFrom(raw any) ([]any, error) {
	if raw == nil {
		return []any{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return []any{}, fmt.Errorf("%w: %s holds %T", ErrMalformedQueue, QueueKey, raw)
	}

	out := make([]any, 0, len(list))
	var bad int
	for _, item := range list {
		if _, isString := item.(string); isString {
			out = append(out, item)
		} else {
			bad++
		}
	}
	if bad > 0 {
		return out, fmt.Errorf("%w: %d non-string entries in %s", ErrMalformedQueue, bad, QueueKey)
	}
	return out, nil
}
