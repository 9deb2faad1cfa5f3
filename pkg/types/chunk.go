package types

import (
	"crypto/sha256"
	"errors"
	"strings"
	"unicode/utf8"
)

// TokensPerChar is the heuristic for estimating tokens (runes/4)
const TokensPerChar = 4

// Chunk represents an indexed passage of corpus text
type Chunk struct {
	// Identification
	ID       int64
	SourceID int64 // Source document the chunk was cut from, 0 when unknown

	// Content
	Text        string
	ContentHash [32]byte // SHA-256 hash for deduplication
	TokenCount  int

	// Position of the chunk within its source (0-based)
	Ordinal int
}

// ValidateContent checks if the chunk text is valid
func (c *Chunk) ValidateContent() error {
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("chunk text cannot be empty")
	}

	if c.Ordinal < 0 {
		return errors.New("ordinal must not be negative")
	}

	return nil
}

// ComputeTokenCount estimates the number of tokens in the chunk
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = EstimateTokens(c.Text)
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk text
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Text))
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}

	return nil
}

// EstimateTokens approximates the token count of text as one token per four runes
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / TokensPerChar
}
