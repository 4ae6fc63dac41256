package tokens

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// maxDepth bounds transitive reference expansion. Legitimate token graphs are
// shallow; hitting the bound means a deferred value keeps emitting new
// placeholders without converging.
const maxDepth = 32

var refPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolved is the fully resolved token set of one environment.
type Resolved map[string]map[string]string

// Get returns a resolved token by category and name.
func (r Resolved) Get(category, name string) (string, bool) {
	cat, ok := r[category]
	if !ok {
		return "", false
	}
	v, ok := cat[name]
	return v, ok
}

// Flat returns the resolved set keyed by qualified name, sorted order not guaranteed.
func (r Resolved) Flat() map[string]string {
	flat := make(map[string]string)
	for cat, names := range r {
		for name, v := range names {
			flat[cat+"."+name] = v
		}
	}
	return flat
}

// QualifiedNames returns all qualified token names, sorted.
func (r Resolved) QualifiedNames() []string {
	names := make([]string, 0)
	for cat, m := range r {
		for name := range m {
			names = append(names, cat+"."+name)
		}
	}
	sort.Strings(names)
	return names
}

// CycleError reports a circular token reference. Chain holds the qualified
// names from the first re-visited token back to itself.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular token reference: %s", strings.Join(e.Chain, " -> "))
}

// Resolve evaluates every token of an environment to its final string value.
//
// References are resolved transitively with memoization. An in-progress set
// detects circular references and reports the exact chain. Expansion depth is
// bounded as a backstop. ${env:NAME} references read the process environment.
func (t *Table) Resolve(envName string) (Resolved, error) {
	values, err := t.flatten(envName)
	if err != nil {
		return nil, err
	}

	r := &resolver{
		values:   values,
		byName:   indexShortNames(values),
		resolved: make(map[string]string, len(values)),
		visiting: make(map[string]bool),
	}

	// Deterministic iteration keeps error output stable.
	qualified := make([]string, 0, len(values))
	for q := range values {
		qualified = append(qualified, q)
	}
	sort.Strings(qualified)

	for _, q := range qualified {
		if _, err := r.resolve(q); err != nil {
			return nil, err
		}
	}

	out := make(Resolved)
	for q, v := range r.resolved {
		cat, name, _ := strings.Cut(q, ".")
		if out[cat] == nil {
			out[cat] = make(map[string]string)
		}
		out[cat][name] = v
	}
	return out, nil
}

// resolver carries the state of one Resolve call.
type resolver struct {
	values   map[string]Value
	byName   map[string][]string
	resolved map[string]string
	visiting map[string]bool
	stack    []string
}

func indexShortNames(values map[string]Value) map[string][]string {
	idx := make(map[string][]string)
	for q := range values {
		_, name, _ := strings.Cut(q, ".")
		idx[name] = append(idx[name], q)
	}
	for name := range idx {
		sort.Strings(idx[name])
	}
	return idx
}

// qualify maps a reference to a qualified token name. Unqualified references
// are allowed when the short name is unique across categories.
func (r *resolver) qualify(ref string) (string, error) {
	if strings.Contains(ref, ".") {
		if _, ok := r.values[ref]; !ok {
			return "", errors.TokenError("unresolved token reference").
				WithContext("reference", ref).
				Build()
		}
		return ref, nil
	}
	candidates := r.byName[ref]
	switch len(candidates) {
	case 0:
		return "", errors.TokenError("unresolved token reference").
			WithContext("reference", ref).
			Build()
	case 1:
		return candidates[0], nil
	default:
		return "", errors.TokenError("ambiguous token reference").
			WithContext("reference", ref).
			WithContext("candidates", strings.Join(candidates, ", ")).
			Build()
	}
}

// resolve computes the final value of a qualified token, memoized.
func (r *resolver) resolve(qualified string) (string, error) {
	if v, ok := r.resolved[qualified]; ok {
		return v, nil
	}
	if r.visiting[qualified] {
		return "", r.cycleError(qualified)
	}

	r.visiting[qualified] = true
	r.stack = append(r.stack, qualified)
	defer func() {
		delete(r.visiting, qualified)
		r.stack = r.stack[:len(r.stack)-1]
	}()

	value := r.values[qualified]

	var raw string
	if value.Deferred != nil {
		computed, err := value.Deferred(r.lookup)
		if err != nil {
			return "", errors.TokenError("deferred token evaluation failed").
				WithCause(err).
				WithContext("token", qualified).
				Build()
		}
		raw = computed
	} else {
		raw = value.Literal
	}

	final, err := r.expand(raw, 0)
	if err != nil {
		if _, ok := err.(*CycleError); ok {
			return "", err
		}
		return "", errors.TokenError("token expansion failed").
			WithCause(err).
			WithContext("token", qualified).
			Build()
	}

	r.resolved[qualified] = final
	return final, nil
}

// lookup is the Lookup handed to deferred functions.
func (r *resolver) lookup(ref string) (string, error) {
	if env, ok := strings.CutPrefix(ref, "env:"); ok {
		return os.Getenv(env), nil
	}
	q, err := r.qualify(ref)
	if err != nil {
		return "", err
	}
	return r.resolve(q)
}

// expand substitutes ${ref} placeholders until none remain, bounded by maxDepth.
func (r *resolver) expand(s string, depth int) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	if depth >= maxDepth {
		return "", fmt.Errorf("token expansion exceeded %d passes", maxDepth)
	}

	var substErr error
	expanded := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		if substErr != nil {
			return match
		}
		ref := match[2 : len(match)-1]
		v, err := r.lookup(ref)
		if err != nil {
			substErr = err
			return match
		}
		return v
	})
	if substErr != nil {
		return "", substErr
	}

	// A substituted value may itself carry placeholders (deferred results).
	return r.expand(expanded, depth+1)
}

// cycleError builds a CycleError from the active resolution stack.
func (r *resolver) cycleError(qualified string) error {
	start := 0
	for i, q := range r.stack {
		if q == qualified {
			start = i
			break
		}
	}
	chain := make([]string, 0, len(r.stack)-start+1)
	chain = append(chain, r.stack[start:]...)
	chain = append(chain, qualified)
	return &CycleError{Chain: chain}
}

// ResolveString expands ${ref} placeholders in an arbitrary string against an
// already resolved token set. Used for project file fields and namespace URLs.
func ResolveString(s string, resolved Resolved) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	flat := resolved.Flat()
	byName := make(map[string][]string)
	for q := range flat {
		_, name, _ := strings.Cut(q, ".")
		byName[name] = append(byName[name], q)
	}

	var substErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := match[2 : len(match)-1]
		if env, ok := strings.CutPrefix(ref, "env:"); ok {
			return os.Getenv(env)
		}
		if v, ok := flat[ref]; ok {
			return v
		}
		if candidates := byName[ref]; len(candidates) == 1 {
			return flat[candidates[0]]
		}
		if substErr == nil {
			substErr = errors.TokenError("unresolved token reference").
				WithContext("reference", ref).
				Build()
		}
		return match
	})
	if substErr != nil {
		return "", substErr
	}
	return out, nil
}
