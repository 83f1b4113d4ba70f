//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseVisitorID tests that parsing never panics on arbitrary input
// and that accepted ids round-trip unchanged.
func FuzzParseVisitorID(f *testing.F) {
	f.Add("")
	f.Add("v1")
	f.Add("v_550e8400-e29b-41d4-a716-446655440000")
	f.Add("'; DROP TABLE visitors;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseVisitorID(input)
		if err != nil {
			return
		}
		if id.String() != input {
			t.Errorf("accepted id changed value: %q -> %q", input, id)
		}
		if len(input) > maxIDLength {
			t.Errorf("accepted oversized id of length %d", len(input))
		}
	})
}
