// Package vector provides exact L2 vector indexes addressed by insertion position.
package vector

import "context"

// NoMatch is the position reported for result slots that have no vector, when k
// exceeds the number of indexed vectors.
const NoMatch int64 = -1

// Index stores vectors in insertion order and searches them by squared Euclidean
// distance. Positions are zero-based insertion order and are never reused.
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns exactly k hits, nearest first. Slots beyond Size() are padded
	// with Position == NoMatch.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Save(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Hit is a single search result: squared L2 distance and insertion position.
type Hit struct {
	Distance float32
	Position int64
}
