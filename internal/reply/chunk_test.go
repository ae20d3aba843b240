package reply

import (
	"strings"
	"testing"
)

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	got := Chunk("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("got %v", got)
	}
}

func TestChunk_EmptyTextYieldsNoChunks(t *testing.T) {
	if got := Chunk("", 10); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestChunk_SplitsAtWordBoundary(t *testing.T) {
	got := Chunk("one two three four", 9)
	for _, c := range got {
		if len(c) > 9 {
			t.Errorf("chunk %q exceeds maxLen", c)
		}
	}
	for _, c := range got {
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk %q has leading/trailing whitespace", c)
		}
	}
	if joined := strings.Join(got, " "); joined != "one two three four" {
		t.Errorf("round trip = %q", joined)
	}
}

func TestChunk_PrefersNewlineOverWordBoundary(t *testing.T) {
	got := Chunk("short line\nthis is a much longer second line of text", 15)
	if got[0] != "short line" {
		t.Errorf("first chunk = %q, want to break at the newline", got[0])
	}
}

func TestChunk_NeverEmptyChunk(t *testing.T) {
	got := Chunk("a b c d e f g h", 3)
	for i, c := range got {
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestChunk_SingleWordLongerThanMaxSplitsMidWord(t *testing.T) {
	word := strings.Repeat("x", 30)
	got := Chunk(word, 10)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if strings.Join(got, "") != word {
		t.Errorf("round trip = %q", strings.Join(got, ""))
	}
}

func TestChunk_NoChunkExceedsMaxLen(t *testing.T) {
	text := strings.Repeat("word ", 500)
	got := Chunk(text, 50)
	for _, c := range got {
		if len(c) > 50 {
			t.Errorf("chunk len %d exceeds 50: %q", len(c), c)
		}
	}
}
