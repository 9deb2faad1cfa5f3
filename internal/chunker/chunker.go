package chunker

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/hybridrag/pkg/types"
)

const (
	// MaxTokensPerChunk is the default upper bound on chunk size
	MaxTokensPerChunk = 256

	// MinTokensPerChunk is the size below which a paragraph is merged with its neighbour
	MinTokensPerChunk = 32
)

// Chunker splits plain text and markdown into passages
type Chunker struct {
	maxTokens int
	minTokens int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithMaxTokens overrides MaxTokensPerChunk
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithMinTokens overrides MinTokensPerChunk
func WithMinTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minTokens = n
		}
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens: MaxTokensPerChunk,
		minTokens: MinTokensPerChunk,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minTokens > c.maxTokens {
		c.minTokens = c.maxTokens
	}
	return c
}

// ChunkFile reads a text or markdown file and chunks its content
func (c *Chunker) ChunkFile(filePath string) ([]*types.Chunk, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("file %s is not valid UTF-8", filePath)
	}
	return c.ChunkText(string(content)), nil
}

// ChunkText splits text into ordered passages. Paragraphs (blank-line
// separated) are the unit; small neighbours are merged up to the token
// budget, a markdown heading always starts a new passage, and paragraphs
// over budget are split at sentence and then word boundaries.
func (c *Chunker) ChunkText(text string) []*types.Chunk {
	var passages []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			passages = append(passages, s)
		}
		current.Reset()
	}

	for _, para := range splitParagraphs(text) {
		if isHeading(para) {
			flush()
			current.WriteString(para)
			continue
		}

		for _, piece := range c.splitOversized(para) {
			pieceTokens := types.EstimateTokens(piece)
			currentTokens := types.EstimateTokens(current.String())

			if current.Len() > 0 && currentTokens+pieceTokens > c.maxTokens && !c.headingOnly(current.String()) {
				flush()
				currentTokens = 0
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)

			if currentTokens+pieceTokens >= c.minTokens && !c.headingOnly(current.String()) {
				flush()
			}
		}
	}
	flush()

	chunks := make([]*types.Chunk, 0, len(passages))
	for i, p := range passages {
		chunk := &types.Chunk{Text: p, Ordinal: i}
		chunk.ComputeTokenCount()
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)
	}
	return chunks
}

// headingOnly reports whether the buffer holds nothing but a heading line
func (c *Chunker) headingOnly(s string) bool {
	return isHeading(s) && !strings.Contains(strings.TrimSpace(s), "\n")
}

// splitOversized breaks a paragraph that exceeds the budget into sentences,
// then packs them; single sentences over budget are cut at word boundaries
func (c *Chunker) splitOversized(para string) []string {
	if types.EstimateTokens(para) <= c.maxTokens {
		return []string{para}
	}

	var pieces []string
	var current strings.Builder
	for _, sentence := range splitSentences(para) {
		if types.EstimateTokens(sentence) > c.maxTokens {
			if current.Len() > 0 {
				pieces = append(pieces, strings.TrimSpace(current.String()))
				current.Reset()
			}
			pieces = append(pieces, c.splitWords(sentence)...)
			continue
		}
		if current.Len() > 0 && types.EstimateTokens(current.String()+" "+sentence) > c.maxTokens {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(current.String()))
	}
	return pieces
}

// splitWords packs words into pieces of at most maxTokens
func (c *Chunker) splitWords(sentence string) []string {
	maxRunes := c.maxTokens * types.TokensPerChar

	var pieces []string
	var current strings.Builder
	runes := 0
	for _, word := range strings.Fields(sentence) {
		n := utf8.RuneCountInString(word)
		if runes > 0 && runes+1+n > maxRunes {
			pieces = append(pieces, current.String())
			current.Reset()
			runes = 0
		}
		if runes > 0 {
			current.WriteByte(' ')
			runes++
		}
		current.WriteString(word)
		runes += n
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

// splitParagraphs splits on blank lines, normalizing line endings
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	var current []string
	flush := func() {
		if p := strings.TrimSpace(strings.Join(current, "\n")); p != "" {
			paragraphs = append(paragraphs, p)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case isHeading(trimmed):
			// A heading is its own paragraph even without surrounding blank lines
			flush()
			current = append(current, trimmed)
			flush()
		default:
			current = append(current, line)
		}
	}
	flush()
	return paragraphs
}

// splitSentences splits after Latin and Urdu sentence terminators
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if !isSentenceEnd(r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '۔', '؟':
		return true
	}
	return false
}

func isHeading(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "#")
}
