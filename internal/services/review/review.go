// Package review enforces the component review state machine: pending
// components move to accepted or rejected exactly once, and the parent
// scene's counters follow in the same transaction.
package review

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog"

	"scenereview/internal/apperrors"
	"scenereview/internal/categories"
	"scenereview/internal/models"
	"scenereview/internal/repository"
	"scenereview/internal/repository/sqlite"
)

// StateMachine applies review transitions to components.
type StateMachine struct {
	db            *sqlite.DB
	sceneRepo     repository.SceneRepository
	componentRepo repository.ComponentRepository
	minConfidence float64
	logger        zerolog.Logger
}

// NewStateMachine creates a review state machine over the ledger.
func NewStateMachine(db *sqlite.DB, sceneRepo repository.SceneRepository, componentRepo repository.ComponentRepository, minConfidence float64, logger zerolog.Logger) *StateMachine {
	return &StateMachine{
		db:            db,
		sceneRepo:     sceneRepo,
		componentRepo: componentRepo,
		minConfidence: minConfidence,
		logger:        logger.With().Str("service", "review").Logger(),
	}
}

// Accept transitions a pending component to accepted. Notes are optional.
func (m *StateMachine) Accept(ctx context.Context, componentID int64, notes string) (*models.Component, error) {
	return m.transition(ctx, componentID, models.StatusAccepted, notes)
}

// Reject transitions a pending component to rejected. Notes are required.
func (m *StateMachine) Reject(ctx context.Context, componentID int64, notes string) (*models.Component, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, apperrors.ErrMissingNotes
	}
	return m.transition(ctx, componentID, models.StatusRejected, notes)
}

// transition performs the status write, review timestamp, counter
// recompute and the once-only completion time in one transaction, so a
// concurrent reader never observes counters inconsistent with the
// component rows.
func (m *StateMachine) transition(ctx context.Context, componentID int64, target models.ComponentStatus, notes string) (*models.Component, error) {
	var updated *models.Component

	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		comp, err := m.componentRepo.GetByIDTx(ctx, tx, componentID)
		if err != nil {
			return err
		}

		if comp.Status.Terminal() {
			return &apperrors.IllegalTransitionError{
				ComponentID: componentID,
				From:        string(comp.Status),
				To:          string(target),
			}
		}

		scene, err := m.sceneRepo.GetByIDTx(ctx, tx, comp.SceneID)
		if err != nil {
			return err
		}

		if !categories.Compatible(scene.Category, comp.Type) {
			return &apperrors.CategoryMismatchError{
				Category:   scene.Category,
				Type:       comp.Type,
				ValidTypes: categories.ValidTypes(scene.Category),
			}
		}

		if err := m.componentRepo.MarkReviewedTx(ctx, tx, componentID, target, notes); err != nil {
			return err
		}

		if _, err := m.sceneRepo.RecountTx(ctx, tx, comp.SceneID); err != nil {
			return err
		}

		updated, err = m.componentRepo.GetByIDTx(ctx, tx, componentID)
		return err
	})
	if err != nil {
		m.logger.Debug().Err(err).Int64("component_id", componentID).Str("target", string(target)).Msg("transition rejected")
		return nil, err
	}

	m.logger.Info().
		Int64("component_id", componentID).
		Int64("scene_id", updated.SceneID).
		Str("status", string(updated.Status)).
		Msg("component reviewed")
	return updated, nil
}

// ValidationReport describes how a component fares against the category
// table and the confidence threshold, with alternative types a reviewer
// could reassign it to.
type ValidationReport struct {
	ComponentID     int64    `json:"component_id"`
	Category        string   `json:"category"`
	Type            string   `json:"type"`
	Valid           bool     `json:"valid"`
	CategoryValid   bool     `json:"category_valid"`
	ConfidenceValid bool     `json:"confidence_valid"`
	Message         string   `json:"message"`
	Alternatives    []string `json:"alternatives,omitempty"`
}

// Validate reports category compatibility and confidence threshold
// checks for a component without mutating anything.
func (m *StateMachine) Validate(ctx context.Context, componentID int64) (*ValidationReport, error) {
	comp, err := m.componentRepo.GetByID(ctx, componentID)
	if err != nil {
		return nil, err
	}
	scene, err := m.sceneRepo.GetByID(ctx, comp.SceneID)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		ComponentID:   componentID,
		Category:      scene.Category,
		Type:          comp.Type,
		CategoryValid: categories.Compatible(scene.Category, comp.Type),
		Alternatives:  categories.Alternatives(scene.Category, comp.Type),
	}

	confValid, confMsg := categories.ValidateConfidence(comp.Confidence, m.minConfidence)
	report.ConfidenceValid = confValid
	report.Valid = report.CategoryValid && confValid

	if !report.CategoryValid {
		report.Message = (&apperrors.CategoryMismatchError{
			Category:   scene.Category,
			Type:       comp.Type,
			ValidTypes: categories.ValidTypes(scene.Category),
		}).Error()
	} else {
		report.Message = confMsg
	}

	return report, nil
}
