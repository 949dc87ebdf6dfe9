package graph

import (
	"math/rand"
	"regexp"
	"testing"
)

var identShape = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func TestSanitize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Person", "Person"},
		{"works for", "works_for"},
		{"a--b", "a_b"},
		{"__x__", "x"},
		{"123abc", "_123abc"},
		{"héllo", "h_llo"},
		{"`) DETACH DELETE n //", "DETACH_DELETE_n"},
		{"KNOWS]->(x) DELETE x", "KNOWS_x_DELETE_x"},
		{"", "ENTITY"},
		{"___", "ENTITY"},
		{"日本", "ENTITY"},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.raw, FallbackLabel); got != tc.want {
			t.Fatalf("Sanitize(%q): want=%q got=%q", tc.raw, tc.want, got)
		}
	}
}

func TestIdentFallbacks(t *testing.T) {
	if got := LabelIdent("").String(); got != FallbackLabel {
		t.Fatalf("LabelIdent: want=%s got=%s", FallbackLabel, got)
	}
	if got := RelTypeIdent("!!").String(); got != FallbackRelType {
		t.Fatalf("RelTypeIdent: want=%s got=%s", FallbackRelType, got)
	}
	if got := PropertyIdent(" ").Quoted(); got != "`_property`" {
		t.Fatalf("PropertyIdent: got=%s", got)
	}
}

func TestLabelIdentAvoidsReservedLabels(t *testing.T) {
	cases := map[string]string{
		"Document":        "Document_Entity",
		"Chunk":           "Chunk_Entity",
		"EmbeddedEntity":  "EmbeddedEntity_Entity",
		" Chunk ":         "Chunk_Entity",
		"document":        "document",
		"Document_Entity": "Document_Entity",
	}
	for raw, want := range cases {
		if got := LabelIdent(raw).String(); got != want {
			t.Fatalf("LabelIdent(%q): want=%s got=%s", raw, want, got)
		}
	}
}

func TestSanitizeAlwaysYieldsSafeIdentifier(t *testing.T) {
	alphabet := []rune("aZ09_ `'\"\\$(){}[]-:;./\n\té日\u0000")
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		n := rng.Intn(24)
		raw := make([]rune, n)
		for j := range raw {
			raw[j] = alphabet[rng.Intn(len(alphabet))]
		}
		got := Sanitize(string(raw), FallbackProperty)
		if !identShape.MatchString(got) {
			t.Fatalf("Sanitize(%q) produced unsafe identifier %q", string(raw), got)
		}
		if got == FallbackProperty {
			continue
		}
		if again := Sanitize(got, FallbackProperty); again != got {
			t.Fatalf("Sanitize not idempotent: %q -> %q", got, again)
		}
	}
}
