// Package ingestion wraps detector output into ledger writes. A scene
// and its component batch are written in one transaction with an inner
// savepoint, so a failed batch preserves the scene row.
package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"scenereview/internal/apperrors"
	"scenereview/internal/categories"
	"scenereview/internal/dto"
	"scenereview/internal/models"
	"scenereview/internal/repository"
	"scenereview/internal/repository/sqlite"
	"scenereview/internal/services/detector"
)

// Coordinator ingests detected components for new scenes.
type Coordinator struct {
	db            *sqlite.DB
	sceneRepo     repository.SceneRepository
	componentRepo repository.ComponentRepository
	detector      detector.Detector
	logger        zerolog.Logger
}

// NewCoordinator creates an ingestion coordinator. The detector is an
// injected dependency so tests can substitute a fake.
func NewCoordinator(db *sqlite.DB, sceneRepo repository.SceneRepository, componentRepo repository.ComponentRepository, det detector.Detector, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		db:            db,
		sceneRepo:     sceneRepo,
		componentRepo: componentRepo,
		detector:      det,
		logger:        logger.With().Str("service", "ingestion").Logger(),
	}
}

// ProcessScene runs the detector on a scene image and ingests its
// output. Detector failure is fatal: no scene row is created.
func (c *Coordinator) ProcessScene(ctx context.Context, image []byte, descriptor dto.SceneDescriptor) (int64, error) {
	if c.detector == nil {
		return 0, apperrors.ErrDetectorUnavailable
	}

	detections, err := c.detector.Detect(ctx, image)
	if err != nil {
		c.logger.Error().Err(err).Str("scene", descriptor.Name).Msg("detector failed")
		return 0, fmt.Errorf("%w: %v", apperrors.ErrDetectorUnavailable, err)
	}

	return c.Ingest(ctx, descriptor, detections)
}

// Ingest writes a scene row and one pending component per detection
// inside a single transaction. The component batch runs under a
// savepoint: if any insert fails, or the detector produced nothing,
// only the savepoint is rolled back and the scene survives with zero
// components. The caller then receives the scene id together with a
// ComponentProcessingError.
func (c *Coordinator) Ingest(ctx context.Context, descriptor dto.SceneDescriptor, detections []dto.DetectedComponent) (int64, error) {
	if err := c.validateDescriptor(ctx, descriptor); err != nil {
		return 0, err
	}

	var sceneID int64
	var componentErr error

	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := c.sceneRepo.CreateTx(ctx, tx, &models.Scene{
			Name:     descriptor.Name,
			Category: descriptor.Category,
		})
		if err != nil {
			return err
		}
		sceneID = id

		componentErr = sqlite.Savepoint(ctx, tx, "components", func() error {
			if len(detections) == 0 {
				// A scene with zero components cannot be reviewed.
				return fmt.Errorf("no components detected in scene")
			}

			components := make([]models.Component, 0, len(detections))
			for i, d := range detections {
				name := d.Name
				if name == "" {
					name = fmt.Sprintf("component_%d", i)
				}
				components = append(components, models.Component{
					SceneID:    sceneID,
					Name:       name,
					Type:       d.Type,
					X:          d.X,
					Y:          d.Y,
					Width:      d.Width,
					Height:     d.Height,
					Confidence: d.Confidence,
					Status:     models.StatusPending,
				})
			}

			if _, err := c.componentRepo.InsertBatchTx(ctx, tx, components); err != nil {
				return err
			}

			// Initialize counters: everything starts pending.
			_, err := c.sceneRepo.RecountTx(ctx, tx, sceneID)
			return err
		})

		// The scene row commits either way.
		return nil
	})
	if err != nil {
		return 0, err
	}

	if componentErr != nil {
		c.logger.Warn().Err(componentErr).Int64("scene_id", sceneID).Msg("component batch rolled back, scene preserved")
		return sceneID, &apperrors.ComponentProcessingError{SceneID: sceneID, Err: componentErr}
	}

	c.logger.Info().Int64("scene_id", sceneID).Int("components", len(detections)).Msg("scene ingested")
	return sceneID, nil
}

// validateDescriptor rejects bad scene metadata before any write.
func (c *Coordinator) validateDescriptor(ctx context.Context, descriptor dto.SceneDescriptor) error {
	if strings.TrimSpace(descriptor.Name) == "" {
		return fmt.Errorf("%w: scene name is required", apperrors.ErrValidation)
	}
	if !categories.KnownCategory(descriptor.Category) {
		return fmt.Errorf("%w: unknown scene category %q", apperrors.ErrValidation, descriptor.Category)
	}

	exists, err := c.sceneRepo.ExistsByName(ctx, descriptor.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: scene %q already exists", apperrors.ErrValidation, descriptor.Name)
	}
	return nil
}
