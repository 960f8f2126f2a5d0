package testutil

import "testing"

// step runs a named subtest with a readability prefix. The prefixes let the
// pipeline tests read as scenarios without a BDD framework.
func step(t *testing.T, prefix, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(prefix+" "+desc, fn)
}

func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}
