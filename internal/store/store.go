// Package store persists gold-layer output to a local database so the JSON
// API can serve dashboards without warehouse access.
package store

import (
	"context"
	"time"

	"github.com/sarbstats/econ-cli/internal/model"
)

// Store is the local persistence interface for reporting output.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *model.ReportingSnapshot) error
	LatestSnapshot(ctx context.Context) (*model.ReportingSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]model.ReportingSnapshot, error)

	SaveAnnotation(ctx context.Context, a *model.InsightAnnotation) error
	GetAnnotation(ctx context.Context, snapshotDate time.Time) (*model.InsightAnnotation, error)

	Migrate(ctx context.Context) error
	Close() error
}
