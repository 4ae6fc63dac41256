// Package tokens implements deployment token tables and their resolution.
//
// Tokens are named values grouped into categories per environment. A value is
// either a literal string (which may reference other tokens with ${category.name}
// or ${name}), or a deferred function computed lazily against the partially
// resolved token set. Environments inherit token tables from a parent
// environment and override per name.
package tokens

import (
	"fmt"
	"sort"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// Lookup resolves a token reference to its final value. It is handed to
// deferred functions so their inner references participate in cycle detection.
type Lookup func(ref string) (string, error)

// DeferredFunc computes a token value lazily. The lookup argument resolves
// other tokens; returned strings may themselves contain ${ref} placeholders,
// which the resolver expands afterwards.
type DeferredFunc func(lookup Lookup) (string, error)

// Value is a single token value. Deferred takes precedence over Literal.
type Value struct {
	Literal  string
	Deferred DeferredFunc
}

// Lit builds a literal value.
func Lit(s string) Value { return Value{Literal: s} }

// Defer builds a deferred value.
func Defer(fn DeferredFunc) Value { return Value{Deferred: fn} }

// Category maps token names to values.
type Category map[string]Value

// Environment holds the token table of one deployment environment.
type Environment struct {
	Name       string
	Inherits   string // parent environment, empty for roots
	Categories map[string]Category
}

// Table holds all environments.
type Table struct {
	environments map[string]*Environment
}

// NewTable creates an empty token table.
func NewTable() *Table {
	return &Table{environments: make(map[string]*Environment)}
}

// AddEnvironment registers an environment. Re-adding an existing environment
// replaces its inheritance link but keeps already declared tokens.
func (t *Table) AddEnvironment(name, inherits string) *Environment {
	env, ok := t.environments[name]
	if !ok {
		env = &Environment{Name: name, Categories: make(map[string]Category)}
		t.environments[name] = env
	}
	env.Inherits = inherits
	return env
}

// Set declares a token value in an environment, creating the environment and
// category on demand.
func (t *Table) Set(envName, category, name string, v Value) {
	env, ok := t.environments[envName]
	if !ok {
		env = t.AddEnvironment(envName, "")
	}
	cat, ok := env.Categories[category]
	if !ok {
		cat = make(Category)
		env.Categories[category] = cat
	}
	cat[name] = v
}

// Environments returns the declared environment names, sorted.
func (t *Table) Environments() []string {
	names := make([]string, 0, len(t.environments))
	for n := range t.environments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasEnvironment reports whether an environment is declared.
func (t *Table) HasEnvironment(name string) bool {
	_, ok := t.environments[name]
	return ok
}

// flatten merges the inheritance chain of an environment into a single
// qualified-name -> Value map. Parents apply first so children override per
// token name.
func (t *Table) flatten(envName string) (map[string]Value, error) {
	chain := make([]*Environment, 0, 4)
	seen := make(map[string]bool)

	for name := envName; name != ""; {
		env, ok := t.environments[name]
		if !ok {
			return nil, errors.TokenError("unknown environment").
				WithContext("environment", name).
				Build()
		}
		if seen[name] {
			return nil, errors.TokenError(fmt.Sprintf("environment inheritance cycle at %q", name)).
				WithContext("environment", envName).
				Build()
		}
		seen[name] = true
		chain = append(chain, env)
		name = env.Inherits
	}

	merged := make(map[string]Value)
	// Walk root-first so closer environments win.
	for i := len(chain) - 1; i >= 0; i-- {
		for catName, cat := range chain[i].Categories {
			for name, v := range cat {
				merged[catName+"."+name] = v
			}
		}
	}
	return merged, nil
}
