package tokens

import (
	"errors"
	"strings"
	"testing"

	founderr "github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

func TestResolveLiteralsAndReferences(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "General", "Prefix", Lit("app"))
	tbl.Set("Default", "Database", "Server", Lit("sql01"))
	tbl.Set("Default", "Database", "Name", Lit("${General.Prefix}_db"))
	tbl.Set("Default", "Database", "ConnectionString", Lit("Server=${Database.Server};Database=${Database.Name}"))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if v, _ := resolved.Get("Database", "Name"); v != "app_db" {
		t.Errorf("expected app_db, got %q", v)
	}
	if v, _ := resolved.Get("Database", "ConnectionString"); v != "Server=sql01;Database=app_db" {
		t.Errorf("unexpected connection string: %q", v)
	}
}

func TestResolveUnqualifiedReference(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "General", "Prefix", Lit("app"))
	tbl.Set("Default", "Reporting", "Folder", Lit("/${Prefix}/Reports"))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("Reporting", "Folder"); v != "/app/Reports" {
		t.Errorf("expected /app/Reports, got %q", v)
	}
}

func TestResolveAmbiguousReference(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "Name", Lit("x"))
	tbl.Set("Default", "B", "Name", Lit("y"))
	tbl.Set("Default", "C", "Ref", Lit("${Name}"))

	_, err := tbl.Resolve("Default")
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	if !founderr.HasCategory(err, founderr.CategoryTokens) {
		t.Errorf("expected tokens category, got %v", err)
	}
}

func TestResolveEnvironmentInheritance(t *testing.T) {
	tbl := NewTable()
	tbl.AddEnvironment("Default", "")
	tbl.AddEnvironment("UAT", "Default")
	tbl.Set("Default", "Database", "Server", Lit("sql01"))
	tbl.Set("Default", "Database", "Name", Lit("app"))
	tbl.Set("UAT", "Database", "Server", Lit("sql-uat"))

	resolved, err := tbl.Resolve("UAT")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("Database", "Server"); v != "sql-uat" {
		t.Errorf("child override lost: %q", v)
	}
	// Inherited from parent only.
	if v, _ := resolved.Get("Database", "Name"); v != "app" {
		t.Errorf("parent token not inherited: %q", v)
	}
}

func TestResolveReferenceToInheritedToken(t *testing.T) {
	tbl := NewTable()
	tbl.AddEnvironment("Default", "")
	tbl.AddEnvironment("Prod", "Default")
	tbl.Set("Default", "General", "Domain", Lit("example.com"))
	tbl.Set("Prod", "Mail", "Host", Lit("mail.${General.Domain}"))

	resolved, err := tbl.Resolve("Prod")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("Mail", "Host"); v != "mail.example.com" {
		t.Errorf("expected mail.example.com, got %q", v)
	}
}

func TestResolveCycleDetection(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "X", Lit("${B.Y}"))
	tbl.Set("Default", "B", "Y", Lit("${C.Z}"))
	tbl.Set("Default", "C", "Z", Lit("${A.X}"))

	_, err := tbl.Resolve("Default")
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %T: %v", err, err)
	}
	if len(cycle.Chain) != 4 {
		t.Errorf("expected chain of 4, got %v", cycle.Chain)
	}
	if cycle.Chain[0] != cycle.Chain[len(cycle.Chain)-1] {
		t.Errorf("chain should close on itself: %v", cycle.Chain)
	}
}

func TestResolveSelfReference(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "X", Lit("${A.X}"))

	_, err := tbl.Resolve("Default")
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if want := "A.X -> A.X"; !strings.Contains(cycle.Error(), want) {
		t.Errorf("expected chain %q in %q", want, cycle.Error())
	}
}

func TestResolveDeferredValue(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "Database", "Server", Lit("sql01"))
	tbl.Set("Default", "Database", "ConnectionString", Defer(func(lookup Lookup) (string, error) {
		server, err := lookup("Database.Server")
		if err != nil {
			return "", err
		}
		return "Server=" + server + ";Trusted_Connection=yes", nil
	}))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("Database", "ConnectionString"); v != "Server=sql01;Trusted_Connection=yes" {
		t.Errorf("unexpected value: %q", v)
	}
}

func TestResolveDeferredReferencingDeferred(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "Base", Defer(func(Lookup) (string, error) { return "base", nil }))
	tbl.Set("Default", "A", "Derived", Defer(func(lookup Lookup) (string, error) {
		base, err := lookup("A.Base")
		if err != nil {
			return "", err
		}
		return base + "-derived", nil
	}))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("A", "Derived"); v != "base-derived" {
		t.Errorf("unexpected value: %q", v)
	}
}

func TestResolveDeferredCycle(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "X", Defer(func(lookup Lookup) (string, error) {
		return lookup("A.Y")
	}))
	tbl.Set("Default", "A", "Y", Defer(func(lookup Lookup) (string, error) {
		return lookup("A.X")
	}))

	_, err := tbl.Resolve("Default")
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError through deferred lookups, got %v", err)
	}
}

func TestResolveDeferredEmittingPlaceholder(t *testing.T) {
	// A deferred result may carry placeholders; the resolver keeps expanding.
	tbl := NewTable()
	tbl.Set("Default", "A", "Target", Lit("final"))
	tbl.Set("Default", "A", "Indirect", Defer(func(Lookup) (string, error) {
		return "${A.Target}", nil
	}))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("A", "Indirect"); v != "final" {
		t.Errorf("expected final, got %q", v)
	}
}

func TestResolveExpansionBound(t *testing.T) {
	// A deferred value that keeps emitting a placeholder for itself never
	// converges; the depth bound must stop it.
	tbl := NewTable()
	tbl.Set("Default", "A", "X", Defer(func(Lookup) (string, error) {
		return "${A.X}", nil
	}))

	_, err := tbl.Resolve("Default")
	if err == nil {
		t.Fatal("expected non-convergence error")
	}
}

func TestResolveEnvReference(t *testing.T) {
	t.Setenv("PSCI_TEST_REGION", "westeurope")
	tbl := NewTable()
	tbl.Set("Default", "General", "Region", Lit("${env:PSCI_TEST_REGION}"))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, _ := resolved.Get("General", "Region"); v != "westeurope" {
		t.Errorf("expected westeurope, got %q", v)
	}
}

func TestResolveUnknownReference(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "X", Lit("${B.Missing}"))

	_, err := tbl.Resolve("Default")
	if err == nil {
		t.Fatal("expected unresolved reference error")
	}
	if !founderr.HasCategory(err, founderr.CategoryTokens) {
		t.Errorf("expected tokens category, got %v", err)
	}
}

func TestResolveEmptyLiteral(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "Empty", Lit(""))

	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v, ok := resolved.Get("A", "Empty"); !ok || v != "" {
		t.Errorf("empty literal should resolve to empty string, got %q (ok=%v)", v, ok)
	}
}

func TestResolveDeterminism(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "A", "One", Lit("1"))
	tbl.Set("Default", "A", "Two", Lit("${A.One}2"))
	tbl.Set("Default", "B", "Three", Lit("${A.Two}3"))

	first, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	for range 5 {
		again, err := tbl.Resolve("Default")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if v1, _ := first.Get("B", "Three"); v1 != "123" {
			t.Fatalf("expected 123, got %q", v1)
		}
		if v1, _ := again.Get("B", "Three"); v1 != "123" {
			t.Fatalf("resolution not deterministic: %q", v1)
		}
	}
}

func TestResolveInheritanceCycle(t *testing.T) {
	tbl := NewTable()
	tbl.AddEnvironment("A", "B")
	tbl.AddEnvironment("B", "A")

	_, err := tbl.Resolve("A")
	if err == nil {
		t.Fatal("expected inheritance cycle error")
	}
}

func TestResolveString(t *testing.T) {
	tbl := NewTable()
	tbl.Set("Default", "General", "Prefix", Lit("app"))
	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	out, err := ResolveString("folder-${General.Prefix}-${Prefix}", resolved)
	if err != nil {
		t.Fatalf("ResolveString failed: %v", err)
	}
	if out != "folder-app-app" {
		t.Errorf("expected folder-app-app, got %q", out)
	}

	if _, err := ResolveString("${Nope}", resolved); err == nil {
		t.Error("expected error for unknown reference")
	}
}
