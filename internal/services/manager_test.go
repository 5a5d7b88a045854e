package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenereview/internal/apperrors"
	"scenereview/internal/categories"
	"scenereview/internal/dto"
	"scenereview/internal/models"
	"scenereview/internal/repository/sqlite"
	"scenereview/internal/services/ingestion"
	"scenereview/internal/services/review"
	"scenereview/internal/services/stats"
)

type managerFixture struct {
	*Manager
	components *sqlite.ComponentRepository
}

// newTestManager wires the full pipeline over a temp-dir database, the
// same shape the application assembles at startup, minus the hub.
func newTestManager(t *testing.T) *managerFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath, 0, 0)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	scenes := sqlite.NewSceneRepository(db)
	components := sqlite.NewComponentRepository(db)
	snapshots := sqlite.NewSnapshotRepository(db)

	ingestor := ingestion.NewCoordinator(db, scenes, components, nil, log)
	reviewer := review.NewStateMachine(db, scenes, components, 0.5, log)
	refresher := stats.NewCoordinator(snapshots, 3, time.Millisecond, 4*time.Millisecond, log)
	cache := stats.NewCache(refresher, 30*time.Second, 16, log)

	return &managerFixture{
		Manager:    NewManager(ingestor, reviewer, refresher, cache, snapshots, nil, log),
		components: components,
	}
}

func ingestLivingRoom(t *testing.T, m *managerFixture, name string) (int64, []models.Component) {
	t.Helper()
	ctx := context.Background()

	sceneID, err := m.IngestScene(ctx, dto.SceneDescriptor{Name: name, Category: categories.LivingRoom}, []dto.DetectedComponent{
		{Name: "sofa", Type: categories.Furniture, X: 10, Y: 20, Width: 300, Height: 150, Confidence: 0.92},
		{Name: "bookshelf", Type: categories.Furniture, X: 350, Y: 10, Width: 120, Height: 200, Confidence: 0.78},
		{Name: "vase", Type: categories.Decor, X: 200, Y: 90, Width: 30, Height: 50, Confidence: 0.55},
	})
	if err != nil {
		t.Fatalf("IngestScene failed: %v", err)
	}

	comps, err := m.components.GetBySceneID(ctx, sceneID)
	if err != nil {
		t.Fatalf("GetBySceneID failed: %v", err)
	}
	return sceneID, comps
}

func TestManager_ReviewLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sceneID, comps := ingestLivingRoom(t, m, "living1")
	require.Len(t, comps, 3)

	accepted, err := m.AcceptComponent(ctx, comps[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)

	rejected, err := m.RejectComponent(ctx, comps[1].ID, "bad angle")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "bad angle", rejected.ReviewerNotes)

	snap, err := m.GetSceneStatistics(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalComponents)
	assert.Equal(t, 1, snap.Accepted)
	assert.Equal(t, 1, snap.Rejected)
	assert.Equal(t, 1, snap.Pending)
	assert.InDelta(t, 66.67, snap.ReviewProgress, 0.01)
	assert.InDelta(t, (0.92+0.78+0.55)/3, snap.AvgConfidence, 1e-9)
	assert.Equal(t, map[string]int{"furniture": 2, "decor": 1}, snap.TypeDistribution)
}

func TestManager_CacheInvalidatedByReview(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sceneID, comps := ingestLivingRoom(t, m, "living1")

	before, err := m.GetSceneStatistics(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, 3, before.Pending)

	_, err = m.AcceptComponent(ctx, comps[0].ID, "")
	require.NoError(t, err)

	// The cached snapshot was invalidated, so the next read reflects
	// the transition immediately despite the TTL window.
	after, err := m.GetSceneStatistics(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Pending)
	assert.Equal(t, 1, after.Accepted)
}

func TestManager_RejectWithoutNotes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, comps := ingestLivingRoom(t, m, "living1")

	_, err := m.RejectComponent(ctx, comps[0].ID, "")
	assert.ErrorIs(t, err, apperrors.ErrMissingNotes)
}

func TestManager_ZeroComponentIngestKeepsScene(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sceneID, err := m.IngestScene(ctx, dto.SceneDescriptor{Name: "empty1", Category: categories.Bedroom}, nil)
	var procErr *apperrors.ComponentProcessingError
	require.ErrorAs(t, err, &procErr)
	require.NotZero(t, sceneID)

	snap, err := m.GetSceneStatistics(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalComponents)
	assert.Zero(t, snap.ReviewProgress)
}

func TestManager_GlobalStatisticsComputedOnFirstUse(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, comps := ingestLivingRoom(t, m, "living1")

	_, err := m.AcceptComponent(ctx, comps[0].ID, "")
	require.NoError(t, err)

	snap, err := m.GetGlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalComponents)
	assert.Equal(t, 1, snap.TotalReviews)
	assert.Equal(t, map[string]int{"pending": 2, "accepted": 1}, snap.StatusDistribution)

	accuracy, ok := snap.AccuracyByCategory[categories.LivingRoom]
	require.True(t, ok)
	assert.Equal(t, 3, accuracy.Total)
	assert.Equal(t, 3, accuracy.Correct)
}

func TestManager_RefreshSceneStatistics(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sceneID, _ := ingestLivingRoom(t, m, "living1")

	snap, err := m.RefreshSceneStatistics(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalComponents)
	assert.False(t, snap.LastRefresh.IsZero())

	_, err = m.RefreshSceneStatistics(ctx, sceneID+100)
	var failed *apperrors.RefreshFailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestManager_CompletionFlow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	sceneID, comps := ingestLivingRoom(t, m, "living1")

	for i, comp := range comps {
		if i%2 == 0 {
			_, err := m.AcceptComponent(ctx, comp.ID, "")
			require.NoError(t, err)
		} else {
			_, err := m.RejectComponent(ctx, comp.ID, "duplicate detection")
			require.NoError(t, err)
		}
	}

	snap, err := m.GetSceneStatistics(ctx, sceneID)
	require.NoError(t, err)
	assert.Zero(t, snap.Pending)
	assert.InDelta(t, 100.0, snap.ReviewProgress, 1e-9)
	assert.InDelta(t, 2.0/3.0, snap.AcceptanceRate, 1e-9)

	// A completed scene refuses further transitions.
	_, err = m.AcceptComponent(ctx, comps[0].ID, "")
	assert.ErrorIs(t, err, apperrors.ErrConsistency)
}

func TestManager_IngestValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.IngestScene(ctx, dto.SceneDescriptor{Name: "x", Category: "hallway"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	ingestLivingRoom(t, m, "living1")
	_, err = m.IngestScene(ctx, dto.SceneDescriptor{Name: "living1", Category: categories.LivingRoom}, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = m.ProcessScene(ctx, []byte("img"), dto.SceneDescriptor{Name: "living2", Category: categories.LivingRoom})
	assert.ErrorIs(t, err, apperrors.ErrDetectorUnavailable)
}
