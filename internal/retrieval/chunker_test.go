package retrieval

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit_ParagraphsArePreferredUnit(t *testing.T) {
	content := "First paragraph.\n\nSecond paragraph.\n\n\n\nThird."
	got := Split(content, 0)
	want := []string{"First paragraph.", "Second paragraph.", "Third."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split: got %v, want %v", got, want)
	}
}

func TestSplit_NormalisesCRLF(t *testing.T) {
	got := Split("one\r\n\r\ntwo", 0)
	want := []string{"one", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split: got %v, want %v", got, want)
	}
}

func TestSplit_WhitespaceOnlyYieldsNothing(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\n\n", "\t \r\n"} {
		if got := Split(content, 0); len(got) != 0 {
			t.Errorf("Split(%q): got %v, want no chunks", content, got)
		}
	}
}

func TestSplit_LongParagraphSplitsOnSentences(t *testing.T) {
	para := "Sentence one is here. Sentence two is here. Sentence three is here."
	got := Split(para, 45)

	if len(got) < 2 {
		t.Fatalf("Split: got %v, want multiple chunks", got)
	}
	for _, c := range got {
		if len(c) > 45 {
			t.Errorf("chunk exceeds limit: %d bytes %q", len(c), c)
		}
	}
	if joined := strings.Join(got, " "); joined != para {
		t.Errorf("reassembled: got %q, want %q", joined, para)
	}
}

func TestSplit_OversizedSentenceHardWrapsOnSpaces(t *testing.T) {
	sentence := strings.Repeat("word ", 30) + "end."
	got := Split(sentence, 40)

	for _, c := range got {
		if len(c) > 40 {
			t.Errorf("chunk exceeds limit: %d bytes %q", len(c), c)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk not trimmed: %q", c)
		}
	}
	if joined := strings.Join(got, " "); joined != strings.TrimSpace(sentence) {
		t.Errorf("reassembled: got %q", joined)
	}
}

func TestSplit_SingleTokenLongerThanLimit(t *testing.T) {
	token := strings.Repeat("x", 25)
	got := Split(token, 10)

	var total int
	for _, c := range got {
		if len(c) > 10 {
			t.Errorf("chunk exceeds limit: %q", c)
		}
		total += len(c)
	}
	if total != 25 {
		t.Errorf("bytes after split: got %d, want 25", total)
	}
}

func TestSplit_DocumentOrderPreserved(t *testing.T) {
	content := "Alpha. Beta. Gamma. Delta. Epsilon. Zeta."
	chunks := Split(content, 14)

	pos := -1
	for _, c := range chunks {
		next := strings.Index(content, c)
		if next <= pos {
			t.Fatalf("chunk %q out of document order in %v", c, chunks)
		}
		pos = next
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? No trailing punctuation")
	want := []string{"One.", "Two!", "Three?", "No trailing punctuation"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSentences: got %v, want %v", got, want)
	}

	// Punctuation without following whitespace does not split.
	got = splitSentences("v1.2.3 is out")
	if len(got) != 1 {
		t.Errorf("splitSentences: got %v, want one sentence", got)
	}
}
