package normalization

import "testing"

type verbosity string

const (
	quiet verbosity = "quiet"
	loud  verbosity = "loud"
)

func TestNormalizeFoldsCaseAndWhitespace(t *testing.T) {
	n := NewNormalizer(map[string]verbosity{
		"Quiet": quiet,
		"loud":  loud,
	}, quiet)

	cases := map[string]verbosity{
		"quiet":    quiet,
		"QUIET":    quiet,
		"  Loud  ": loud,
	}
	for in, want := range cases {
		if got := n.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeFallsBack(t *testing.T) {
	n := NewNormalizer(map[string]verbosity{"loud": loud}, quiet)

	if got := n.Normalize("shouting"); got != quiet {
		t.Errorf("unrecognized input = %q, want fallback %q", got, quiet)
	}
	if got := n.Normalize(""); got != quiet {
		t.Errorf("empty input = %q, want fallback %q", got, quiet)
	}
}
