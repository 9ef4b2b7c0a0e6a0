package relay

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkText_ShortPassthrough(t *testing.T) {
	got := chunkText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("chunks = %q", got)
	}
}

func TestChunkText_PrefersNewline(t *testing.T) {
	text := "first line\nsecond line tail"
	got := chunkText(text, 15)
	if len(got) < 2 {
		t.Fatalf("chunks = %q", got)
	}
	if got[0] != "first line" {
		t.Fatalf("first chunk = %q, want break at newline", got[0])
	}
}

func TestChunkText_FallsBackToSpace(t *testing.T) {
	text := "alpha beta gamma delta"
	for _, chunk := range chunkText(text, 12) {
		if strings.HasPrefix(chunk, " ") || strings.HasSuffix(chunk, " ") {
			t.Fatalf("chunk has dangling space: %q", chunk)
		}
	}
}

func TestChunkText_NeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 40)
	for _, chunk := range chunkText(text, 17) {
		if !utf8.ValidString(chunk) {
			t.Fatalf("invalid utf8 chunk: %q", chunk)
		}
		if n := len([]rune(chunk)); n > 17 {
			t.Fatalf("chunk of %d runes exceeds limit", n)
		}
	}
}

func TestChunkText_ReassemblesHardCuts(t *testing.T) {
	text := strings.Repeat("x", 95)
	got := chunkText(text, 10)
	if strings.Join(got, "") != text {
		t.Fatalf("hard cuts lost content")
	}
}
