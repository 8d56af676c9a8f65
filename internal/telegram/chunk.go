package telegram

import (
	"strings"
	"unicode/utf8"
)

// maxMessageLen is Telegram's hard limit on message text.
const maxMessageLen = 4096

// chunkText splits text into pieces no longer than limit, preferring
// paragraph boundaries so recipes don't get cut mid-step.
func chunkText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		// oversized paragraph: hard-split, never through a rune
		for len(para) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, para[:cut])
			para = para[cut:]
		}
		if current.Len() > 0 && current.Len()+2+len(para) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}
