package strx

import "testing"

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "node"); got != "node" {
		t.Fatalf("got %q", got)
	}
	if got := Coalesce("mbox", "node"); got != "mbox" {
		t.Fatalf("got %q", got)
	}
}

func TestReplace(t *testing.T) {
	if got := Replace("a/b+c#d e", "/+# ", '-'); got != "a-b-c-d-e" {
		t.Fatalf("got %q", got)
	}
	if got := Replace("plain", "/", '-'); got != "plain" {
		t.Fatalf("got %q", got)
	}
}
