// Package storage keeps an audit trail of index builds and ticket resolutions.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kbassist/internal/models"
)

// Storage records builds and resolutions. Implementations must be safe for concurrent use.
type Storage interface {
	RecordBuild(ctx context.Context, b *BuildRecord) error
	ListBuilds(ctx context.Context, limit int) ([]*BuildRecord, error)

	RecordResolution(ctx context.Context, r *ResolutionRecord) error
	ListResolutions(ctx context.Context, offset, limit int) ([]*ResolutionRecord, error)
	CountResolutions(ctx context.Context) (int64, error)

	Close() error
}

// BuildRecord describes one published index snapshot.
type BuildRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source"`
	DocCount   int       `json:"doc_count"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
	IndexType  string    `json:"index_type"`
}

// ResolutionRecord is one resolved ticket.
type ResolutionRecord struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	BuildID    string            `json:"build_id,omitempty"`
	TicketText string            `json:"ticket_text"`
	Resolution models.Resolution `json:"resolution"`
}
