package domain

import "testing"

// FuzzParseSessionID checks that parsing never panics on arbitrary input and
// that accepted values round-trip unchanged. Session IDs may come straight
// from collaborator systems, so the parser sees genuinely arbitrary bytes.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("wizard-session-9")
	f.Add("'; DROP TABLE sessions;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseSessionID(input)
		if err != nil {
			if input != "" {
				t.Errorf("non-empty input %q rejected: %v", input, err)
			}
			return
		}
		if id.String() != input {
			t.Errorf("round-trip changed value: %q -> %q", input, id.String())
		}
	})
}
