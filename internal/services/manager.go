// Package services wires the review pipeline together and exposes the
// action boundary consumed by the HTTP/UI layer.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"scenereview/internal/apperrors"
	"scenereview/internal/dto"
	"scenereview/internal/models"
	"scenereview/internal/repository"
	"scenereview/internal/services/ingestion"
	"scenereview/internal/services/review"
	"scenereview/internal/services/stats"
	"scenereview/internal/services/websocket"
)

// Manager is the review action boundary: ingest scenes, accept or
// reject components, and read statistics.
type Manager struct {
	ingestor  *ingestion.Coordinator
	reviewer  *review.StateMachine
	refresher *stats.Coordinator
	cache     *stats.Cache
	snapshots repository.SnapshotRepository
	hub       *websocket.HubService
	logger    zerolog.Logger
}

// NewManager assembles the action boundary from its collaborators.
func NewManager(
	ingestor *ingestion.Coordinator,
	reviewer *review.StateMachine,
	refresher *stats.Coordinator,
	cache *stats.Cache,
	snapshots repository.SnapshotRepository,
	hub *websocket.HubService,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		ingestor:  ingestor,
		reviewer:  reviewer,
		refresher: refresher,
		cache:     cache,
		snapshots: snapshots,
		hub:       hub,
		logger:    logger.With().Str("service", "manager").Logger(),
	}
}

// IngestScene writes a scene and its detected components to the ledger.
// A partial failure still returns the preserved scene's id alongside
// the error.
func (m *Manager) IngestScene(ctx context.Context, descriptor dto.SceneDescriptor, detections []dto.DetectedComponent) (int64, error) {
	sceneID, err := m.ingestor.Ingest(ctx, descriptor, detections)
	if err != nil {
		return sceneID, err
	}
	m.publish(websocket.Event{Type: websocket.EventSceneIngested, SceneID: sceneID})
	return sceneID, nil
}

// ProcessScene runs the detector on an image and ingests the result.
func (m *Manager) ProcessScene(ctx context.Context, image []byte, descriptor dto.SceneDescriptor) (int64, error) {
	sceneID, err := m.ingestor.ProcessScene(ctx, image, descriptor)
	if err != nil {
		return sceneID, err
	}
	m.publish(websocket.Event{Type: websocket.EventSceneIngested, SceneID: sceneID})
	return sceneID, nil
}

// AcceptComponent marks a pending component accepted. Notes are optional.
func (m *Manager) AcceptComponent(ctx context.Context, componentID int64, notes string) (*models.Component, error) {
	comp, err := m.reviewer.Accept(ctx, componentID, notes)
	if err != nil {
		return nil, err
	}
	m.cache.Invalidate(comp.SceneID)
	m.publish(websocket.Event{Type: websocket.EventComponentAccepted, SceneID: comp.SceneID, ComponentID: comp.ID})
	return comp, nil
}

// RejectComponent marks a pending component rejected. Notes are required.
func (m *Manager) RejectComponent(ctx context.Context, componentID int64, notes string) (*models.Component, error) {
	comp, err := m.reviewer.Reject(ctx, componentID, notes)
	if err != nil {
		return nil, err
	}
	m.cache.Invalidate(comp.SceneID)
	m.publish(websocket.Event{Type: websocket.EventComponentRejected, SceneID: comp.SceneID, ComponentID: comp.ID})
	return comp, nil
}

// ValidateComponent reports category and confidence validation for a
// component without mutating it.
func (m *Manager) ValidateComponent(ctx context.Context, componentID int64) (*review.ValidationReport, error) {
	return m.reviewer.Validate(ctx, componentID)
}

// GetSceneStatistics serves a scene's snapshot through the TTL cache.
func (m *Manager) GetSceneStatistics(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error) {
	return m.cache.Get(ctx, sceneID)
}

// GetGlobalStatistics serves the stored global snapshot, computing it
// on first use. Between scheduler runs the snapshot may lag the ledger.
func (m *Manager) GetGlobalStatistics(ctx context.Context) (*models.GlobalSnapshot, error) {
	snap, err := m.snapshots.GetGlobalSnapshot(ctx)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	return m.RefreshGlobal(ctx)
}

// RefreshSceneStatistics forces a snapshot rebuild for one scene.
func (m *Manager) RefreshSceneStatistics(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error) {
	snap, err := m.refresher.RefreshScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	m.cache.Invalidate(sceneID)
	m.publish(websocket.Event{Type: websocket.EventSnapshotRefreshed, SceneID: sceneID, Scope: "scene"})
	return snap, nil
}

// RefreshGlobal forces a rebuild of the global snapshot. Used by the
// background scheduler and on demand.
func (m *Manager) RefreshGlobal(ctx context.Context) (*models.GlobalSnapshot, error) {
	snap, err := m.refresher.RefreshGlobal(ctx)
	if err != nil {
		return nil, err
	}
	m.publish(websocket.Event{Type: websocket.EventSnapshotRefreshed, Scope: stats.GlobalScope})
	return snap, nil
}

func (m *Manager) publish(event websocket.Event) {
	if m.hub != nil {
		m.hub.Publish(event)
	}
}
