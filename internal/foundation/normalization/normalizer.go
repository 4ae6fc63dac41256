// Package normalization maps free-form configuration strings onto closed
// enum sets.
package normalization

import "strings"

// Normalizer folds case and surrounding whitespace and maps the result onto
// a fixed value set, falling back to a default for anything unrecognized.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
}

// NewNormalizer builds a normalizer from valid key->value pairs. Keys are
// folded the same way input is, so callers can declare them in any case.
func NewNormalizer[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	folded := make(map[string]T, len(values))
	for k, v := range values {
		folded[fold(k)] = v
	}
	return &Normalizer[T]{values: folded, fallback: fallback}
}

// Normalize maps raw onto the value set. Unrecognized input yields the
// fallback rather than an error; config defaults stay forgiving.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[fold(raw)]; ok {
		return v
	}
	return n.fallback
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
