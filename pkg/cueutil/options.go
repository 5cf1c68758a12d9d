// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultSizeLimit caps documents handed to the CUE evaluator.
const DefaultSizeLimit int64 = 5 << 20

type (
	settings struct {
		limit    int64
		partial  bool
		filename string
	}

	// Option adjusts a single parse or decode call.
	Option func(*settings)
)

func collect(opts []Option) settings {
	s := settings{limit: DefaultSizeLimit}
	for _, opt := range opts {
		opt(&s)
	}
	if s.filename == "" {
		s.filename = "<input>"
	}
	return s
}

// SizeLimit rejects source documents larger than n bytes.
func SizeLimit(n int64) Option { return func(s *settings) { s.limit = n } }

// Partial accepts values left non-concrete after unification, for documents
// whose optional fields may stay unset.
func Partial() Option { return func(s *settings) { s.partial = true } }

// Filename names the document in error messages.
func Filename(name string) Option { return func(s *settings) { s.filename = name } }
