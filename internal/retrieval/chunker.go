// Package retrieval holds the text-segmentation and vector-ranking helpers
// behind semantic retrieval: splitting documents into bounded chunks,
// normalising embedding vectors, and ordering chunks by similarity.
package retrieval

import "strings"

// DefaultMaxChunkLen bounds chunk length in bytes when no explicit maximum is
// configured. Sized so a chunk stays well inside typical embedding-model
// input limits.
const DefaultMaxChunkLen = 1000

// Split segments content into an ordered list of trimmed, non-empty chunks,
// each at most maxLen bytes. Chunks are substrings of the normalised content
// in document order.
//
// Paragraphs (blank-line separated) are the preferred unit. A paragraph that
// exceeds maxLen is re-split on sentence boundaries, and an individual
// sentence longer than maxLen is hard-wrapped on the last space inside the
// limit (mid-word only when a single token exceeds maxLen).
func Split(content string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var chunks []string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxLen {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, splitParagraph(para, maxLen)...)
	}
	return chunks
}

// splitParagraph packs sentences into chunks up to maxLen.
func splitParagraph(para string, maxLen int) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > maxLen {
			flush()
			chunks = append(chunks, hardWrap(sentence, maxLen)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitSentences breaks text on sentence-final punctuation followed by
// whitespace. It is deliberately simple: abbreviation handling is not worth
// its weight for retrieval chunking, where an occasional over-split is
// harmless.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// hardWrap cuts text into pieces of at most maxLen bytes, preferring the last
// space inside the limit as the cut point.
func hardWrap(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cut := strings.LastIndexByte(text[:maxLen], ' ')
		if cut <= 0 {
			cut = maxLen
		}
		if s := strings.TrimSpace(text[:cut]); s != "" {
			chunks = append(chunks, s)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if s := strings.TrimSpace(text); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
