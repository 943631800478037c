// Package models defines core data structures for policy documents, retrieval results, and ticket resolutions.
package models

// Document is a single policy document. It is immutable once an index is built;
// changing content means rebuilding the index.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ScoredDocument is a retrieved document annotated with its raw squared L2 distance
// to the query. Lower scores are more relevant.
type ScoredDocument struct {
	Document
	Score float32 `json:"score"`
}

// Titles returns the titles of docs in order.
func Titles(docs []ScoredDocument) []string {
	titles := make([]string, len(docs))
	for i, d := range docs {
		titles[i] = d.Title
	}
	return titles
}
