package markdown

import "testing"

type personaFrontmatter struct {
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

func TestSplitFrontmatter(t *testing.T) {
	in := "---\ndescription: salty\n---\n\nYou are a pirate.\n"
	raw, body, ok := SplitFrontmatter(in)
	if !ok {
		t.Fatalf("SplitFrontmatter() ok = false")
	}
	if raw != "description: salty" {
		t.Fatalf("raw = %q", raw)
	}
	if body != "\nYou are a pirate.\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplitFrontmatterBOMAndCRLF(t *testing.T) {
	in := "\ufeff---\r\ndescription: x\r\n---\r\nBody\r\n"
	raw, body, ok := SplitFrontmatter(in)
	if !ok || raw != "description: x" || body != "Body\n" {
		t.Fatalf("SplitFrontmatter() = (%q, %q, %v)", raw, body, ok)
	}
}

func TestSplitFrontmatterAbsent(t *testing.T) {
	for _, in := range []string{"plain prompt", "---\nunterminated"} {
		_, body, ok := SplitFrontmatter(in)
		if ok {
			t.Fatalf("SplitFrontmatter(%q) ok = true", in)
		}
		if body != in {
			t.Fatalf("SplitFrontmatter(%q) body = %q", in, body)
		}
	}
}

func TestParseFrontmatter(t *testing.T) {
	in := "---\ndescription: talks like a pirate\ntags:\n  - fun\n  - sea\n---\nArr.\n"
	fm, body, ok := ParseFrontmatter[personaFrontmatter](in)
	if !ok {
		t.Fatalf("ParseFrontmatter() ok = false")
	}
	if fm.Description != "talks like a pirate" || len(fm.Tags) != 2 {
		t.Fatalf("frontmatter = %+v", fm)
	}
	if body != "Arr.\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseFrontmatterInvalidYAML(t *testing.T) {
	in := "---\ndescription: [\n---\nText\n"
	_, body, ok := ParseFrontmatter[personaFrontmatter](in)
	if ok {
		t.Fatalf("ParseFrontmatter() ok = true for invalid yaml")
	}
	if body != in {
		t.Fatalf("body = %q, want contents untouched", body)
	}
}

func TestParseFrontmatterNonMappingKeepsContents(t *testing.T) {
	for _, in := range []string{
		"---\nYou are a pirate.\n---\nSpeak in rhymes.",
		"---\n- one\n- two\n---\nBody",
	} {
		_, body, ok := ParseFrontmatter[personaFrontmatter](in)
		if ok {
			t.Fatalf("ParseFrontmatter(%q) ok = true", in)
		}
		if body != in {
			t.Fatalf("ParseFrontmatter(%q) body = %q", in, body)
		}
	}
}

func TestParseFrontmatterEmptyBlock(t *testing.T) {
	_, body, ok := ParseFrontmatter[personaFrontmatter]("---\n---\nBody")
	if !ok || body != "Body" {
		t.Fatalf("ParseFrontmatter() = (%q, %v)", body, ok)
	}
}
