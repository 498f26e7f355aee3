package prompt

import "testing"

func TestRenderText(t *testing.T) {
	got := Render(Text("hello\n"))
	if got != "hello" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderSectionsNest(t *testing.T) {
	got := Render(
		Section("Context",
			Text("background"),
			Section("Details", Text("fine print")),
		),
	)
	want := "# Context\n\nbackground\n\n## Details\n\nfine print"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderTagSortsAttributes(t *testing.T) {
	got := Render(Tag("doc", map[string]string{"b": "2", "a": "1"}, Text("body")))
	want := "<doc a=\"1\" b=\"2\">\nbody\n</doc>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	node := Tag("item", map[string]string{"z": "9", "m": "5", "a": "1"}, Lines("one", "two"))
	first := Render(node)
	for i := 0; i < 16; i++ {
		if again := Render(node); again != first {
			t.Fatalf("render diverged: %q vs %q", first, again)
		}
	}
}

func TestRenderSeparatesSiblings(t *testing.T) {
	got := Render(Text("a"), Text("b"))
	if got != "a\n\nb" {
		t.Fatalf("unexpected sibling separation: %q", got)
	}
}
