package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkTextShortPassesThrough(t *testing.T) {
	chunks := chunkText("hello", maxMessageLen)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("unexpected chunks: %v", chunks)
	}
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	a := strings.Repeat("a", 60)
	b := strings.Repeat("b", 60)
	c := strings.Repeat("c", 60)
	text := a + "\n\n" + b + "\n\n" + c

	chunks := chunkText(text, 130)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != a+"\n\n"+b {
		t.Errorf("first chunk should hold two paragraphs, got %q", chunks[0])
	}
	if chunks[1] != c {
		t.Errorf("second chunk should hold the last paragraph, got %q", chunks[1])
	}
	for i, chunk := range chunks {
		if len(chunk) > 130 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, len(chunk))
		}
	}
}

func TestChunkTextHardSplitsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := chunkText(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	var total int
	for _, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk exceeds limit: %d chars", len(chunk))
		}
		total += len(chunk)
	}
	if total != 250 {
		t.Errorf("expected all 250 chars preserved, got %d", total)
	}
}

func TestChunkTextNeverSplitsARune(t *testing.T) {
	// plan texts are emoji-heavy; 🌙 is 4 bytes, so a 10-byte limit
	// lands mid-rune on every naive cut
	text := strings.Repeat("🌙", 40)
	chunks := chunkText(text, 10)
	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, chunk)
		}
		if len(chunk) > 10 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
		rebuilt.WriteString(chunk)
	}
	if rebuilt.String() != text {
		t.Error("expected all runes preserved across chunks")
	}
}

func TestUserKeyRoundTrip(t *testing.T) {
	key := userKey(123456789)
	if key != "tg:123456789" {
		t.Errorf("unexpected key %q", key)
	}
	id, err := chatIDFromKey(key)
	if err != nil {
		t.Fatalf("chatIDFromKey failed: %v", err)
	}
	if id != 123456789 {
		t.Errorf("expected 123456789, got %d", id)
	}
	if _, err := chatIDFromKey("web:abc"); err == nil {
		t.Error("expected error for non-telegram key")
	}
}
