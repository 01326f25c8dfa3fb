package core

import "testing"

func TestEmailDomain(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"jane@acme.com", "acme.com"},
		{"  jane@acme.com  ", "acme.com"},
		{"jane@", ""},
		{"noatsign", ""},
		{"", ""},
		// Multiple separators keep the narrow second-part behavior.
		{"a@b@c.com", "b"},
	}
	for _, tc := range cases {
		if got := EmailDomain(tc.email); got != tc.want {
			t.Fatalf("EmailDomain(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
