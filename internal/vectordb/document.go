package vectordb

import (
	"strings"
	"time"
)

// Difficulty indicates how advanced a tutorial is.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Document represents a tutorial to be stored and searched semantically.
type Document struct {
	ID       string
	Content  string
	Metadata DocumentMetadata
}

// DocumentMetadata holds structured information about a tutorial document.
type DocumentMetadata struct {
	Category    string
	Title       string
	CauseTags   []string
	Keywords    []string
	Source      string
	Difficulty  Difficulty
	LastUpdated time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// SearchFilter allows narrowing search results by metadata fields.
type SearchFilter struct {
	Category   *string
	Difficulty *Difficulty
}

// joinList encodes a string slice into a single metadata value.
// chromem metadata values are flat strings, so lists are comma-joined.
func joinList(items []string) string {
	return strings.Join(items, ",")
}

// splitList decodes a metadata value produced by joinList.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
