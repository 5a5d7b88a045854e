// Package detector defines the boundary to the external component
// detector. The inference step itself runs out of process; this service
// only consumes its output.
package detector

import (
	"context"

	"scenereview/internal/dto"
)

// Detector proposes components from a scene image. Implementations may
// fail or return an empty list; ingestion handles both.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]dto.DetectedComponent, error)
}
