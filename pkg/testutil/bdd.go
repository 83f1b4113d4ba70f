package testutil

import "testing"

// Given, When and Then run fn as a nested subtest whose name carries the step,
// so `go test -v` output reads as a scenario.
var (
	Given = step("Given")
	When  = step("When")
	Then  = step("Then")
)

func step(keyword string) func(t *testing.T, desc string, fn func(t *testing.T)) {
	return func(t *testing.T, desc string, fn func(t *testing.T)) {
		t.Helper()
		t.Run(keyword+" "+desc, fn)
	}
}
