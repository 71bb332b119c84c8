package ingest

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Segmentation defaults.
const (
	DefaultChunkSize = 100000
	DefaultMinLength = 5
)

// terminals splits on runs of . ! ? but not on a dot between two digits.
var terminals = regexp2.MustCompile(`(?<!\d)[.!?]+|[.!?]+(?!\d)`, regexp2.None)

// SentenceSplitter is an optional linguistic sentence tokenizer.
type SentenceSplitter interface {
	Available() bool
	Sentences(text string) []string
}

// Segmenter splits raw text into sentences.
type Segmenter struct {
	chunkSize int
	minLength int
	splitter  SentenceSplitter
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithChunkSize sets the size, in characters, above which text is split into
// independently processed chunks.
func WithChunkSize(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithMinLength sets the minimum sentence length in characters.
func WithMinLength(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n >= 0 {
			s.minLength = n
		}
	}
}

// WithSplitter delegates sentence boundaries to a linguistic tokenizer when
// it reports itself available.
func WithSplitter(sp SentenceSplitter) SegmenterOption {
	return func(s *Segmenter) { s.splitter = sp }
}

// NewSegmenter creates a segmenter with defaults applied.
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{chunkSize: DefaultChunkSize, minLength: DefaultMinLength}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment returns the sentences of text in original order. Whitespace is
// collapsed first; fragments shorter than the minimum length are dropped.
func (s *Segmenter) Segment(text string) []string {
	text = collapseSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	for _, chunk := range chunks(text, s.chunkSize) {
		for _, frag := range s.split(chunk) {
			frag = strings.TrimSpace(frag)
			if len([]rune(frag)) < s.minLength {
				continue
			}
			out = append(out, frag)
		}
	}
	return out
}

func (s *Segmenter) split(chunk string) []string {
	if s.splitter != nil && s.splitter.Available() {
		return s.splitter.Sentences(chunk)
	}
	return SplitTerminals(chunk)
}

// SplitTerminals splits text on sentence-final punctuation runs.
func SplitTerminals(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	m, err := terminals.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, string(runes[start:m.Index]))
		start = m.Index + m.Length
		m, err = terminals.FindNextMatch(m)
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// chunks cuts text into pieces of at most size runes.
func chunks(text string, size int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	out := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
