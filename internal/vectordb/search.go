package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity))

		if r.Document.Metadata.Title != "" {
			sb.WriteString(fmt.Sprintf("Title: %s\n", r.Document.Metadata.Title))
		}
		if r.Document.Metadata.Category != "" {
			sb.WriteString(fmt.Sprintf("Category: %s\n", r.Document.Metadata.Category))
		}
		if len(r.Document.Metadata.CauseTags) > 0 {
			sb.WriteString(fmt.Sprintf("Causes: %s\n", strings.Join(r.Document.Metadata.CauseTags, ", ")))
		}
		if r.Document.Metadata.Difficulty != "" {
			sb.WriteString(fmt.Sprintf("Difficulty: %s\n", r.Document.Metadata.Difficulty))
		}

		sb.WriteString("\n")
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
