// Package insight attaches narrative commentary to reporting snapshots.
// Annotation is always additive: a nil result or an error from a provider
// never blocks the snapshot itself.
package insight

import (
	"context"

	"github.com/sarbstats/econ-cli/internal/model"
)

// Annotator is the capability interface the pipeline depends on. The core
// only ever sees this interface; which provider backs it is wiring.
type Annotator interface {
	// Annotate returns commentary for the snapshot, or nil when the
	// provider has nothing to say.
	Annotate(ctx context.Context, snap *model.ReportingSnapshot) (*model.InsightAnnotation, error)
}

// NullProvider is the explicit "no AI available" path. It satisfies
// Annotator by returning nothing, so disabling annotation is a visible,
// testable configuration rather than a swallowed exception branch.
type NullProvider struct{}

// Annotate always returns nil without error.
func (NullProvider) Annotate(context.Context, *model.ReportingSnapshot) (*model.InsightAnnotation, error) {
	return nil, nil
}
