package classifier

import (
	"context"
	"testing"
)

func TestStaticClassify(t *testing.T) {
	c := NewStatic(map[string]string{
		"sgr":   " Legal ",
		"ops":   "procedural",
		"  ":    "technical",
		"empty": "",
	})
	cases := map[string]string{
		"sgr":     "legal",
		" ops ":   "procedural",
		"empty":   "generic",
		"unknown": "generic",
		"":        "generic",
	}
	for corpusID, want := range cases {
		if got := c.Classify(context.Background(), corpusID); got != want {
			t.Fatalf("Classify(%q) = %q, want %q", corpusID, got, want)
		}
	}
}
