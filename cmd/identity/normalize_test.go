package identity

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Alice@Example.COM ": "alice@example.com",
		"bob@example.com":      "bob@example.com",
		"":                     "",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Fatalf("NormalizeEmail(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "alice+tag@example.com", "x.y@sub.example.org"}
	for _, s := range valid {
		if !ValidEmail(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}

	invalid := []string{"", "no-at-sign", "two@@example.com", "spaces in@example.com", "@example.com", "a@nodot"}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}
