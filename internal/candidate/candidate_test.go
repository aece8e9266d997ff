package candidate

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/App/", "https://example.com/App"},
		{"https://example.com:443/app", "https://example.com/app"},
		{"http://example.com:80/app", "http://example.com/app"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com", "https://example.com"},
		{"https://example.com/app#section", "https://example.com/app"},
		{"https://example.com/app?x=1", "https://example.com/app?x=1"},
		{" https://example.com/app ", "https://example.com/app"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if err != nil {
			t.Fatalf("normalize(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("normalize(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "ftp://example.com", "example.com/app", "https://", "not a url\x7f://"} {
		if _, err := Normalize(in); err == nil {
			t.Fatalf("normalize(%q): expected error", in)
		}
	}
}

func TestIDStableAcrossSpellings(t *testing.T) {
	a, err := Normalize("https://Example.com/App/")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	b, err := Normalize("https://example.com:443/App")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ID(a) != ID(b) {
		t.Fatalf("ids differ for equivalent urls: %s %s", ID(a), ID(b))
	}
	if !ValidID(ID(a)) {
		t.Fatalf("id %q not valid", ID(a))
	}
}

func TestValidID(t *testing.T) {
	if ValidID("abc") {
		t.Fatalf("short id accepted")
	}
	if ValidID(strings.Repeat("z", 64)) {
		t.Fatalf("non-hex id accepted")
	}
	if !ValidID(strings.Repeat("a1", 32)) {
		t.Fatalf("hex id rejected")
	}
}
