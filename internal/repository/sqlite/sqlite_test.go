package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"scenereview/internal/apperrors"
	"scenereview/internal/categories"
	"scenereview/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath, 0, 0)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// seedScene inserts a scene with components and returns the scene id
// and component ids.
func seedScene(t *testing.T, db *DB, category string, comps []models.Component) (int64, []int64) {
	t.Helper()

	scenes := NewSceneRepository(db)
	components := NewComponentRepository(db)

	var sceneID int64
	var ids []int64
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		id, err := scenes.CreateTx(context.Background(), tx, &models.Scene{
			Name:     fmt.Sprintf("scene_%s_%s", category, t.Name()),
			Category: category,
		})
		if err != nil {
			return err
		}
		sceneID = id

		for i := range comps {
			comps[i].SceneID = sceneID
		}
		ids, err = components.InsertBatchTx(context.Background(), tx, comps)
		if err != nil {
			return err
		}

		_, err = scenes.RecountTx(context.Background(), tx, sceneID)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to seed scene: %v", err)
	}

	return sceneID, ids
}

func pendingComponent(name, compType string, confidence float64) models.Component {
	return models.Component{
		Name:       name,
		Type:       compType,
		Width:      64,
		Height:     64,
		Confidence: confidence,
		Status:     models.StatusPending,
	}
}

func TestSceneRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	sceneID, _ := seedScene(t, db, categories.LivingRoom, []models.Component{
		pendingComponent("sofa", categories.Furniture, 0.9),
		pendingComponent("vase", categories.Decor, 0.6),
	})

	scene, err := NewSceneRepository(db).GetByID(context.Background(), sceneID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if scene.Category != categories.LivingRoom {
		t.Errorf("category = %q, want %q", scene.Category, categories.LivingRoom)
	}
	if scene.TotalComponents != 2 || scene.PendingComponents != 2 {
		t.Errorf("counters = (%d total, %d pending), want (2, 2)", scene.TotalComponents, scene.PendingComponents)
	}
	if scene.ReviewCompletionTime != nil {
		t.Error("review completion time should be unset for a pending scene")
	}
}

func TestSceneRepository_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := NewSceneRepository(db).GetByID(context.Background(), 12345)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestSceneRepository_ExistsByName(t *testing.T) {
	db := newTestDB(t)
	seedScene(t, db, categories.Kitchen, []models.Component{
		pendingComponent("oven", categories.Appliance, 0.8),
	})

	repo := NewSceneRepository(db)
	name := fmt.Sprintf("scene_%s_%s", categories.Kitchen, t.Name())

	exists, err := repo.ExistsByName(context.Background(), name)
	if err != nil {
		t.Fatalf("ExistsByName failed: %v", err)
	}
	if !exists {
		t.Error("seeded scene should exist by name")
	}

	exists, err = repo.ExistsByName(context.Background(), "nope")
	if err != nil {
		t.Fatalf("ExistsByName failed: %v", err)
	}
	if exists {
		t.Error("unknown name should not exist")
	}
}

func TestComponentRepository_MarkReviewedTx_PendingGuard(t *testing.T) {
	db := newTestDB(t)
	_, ids := seedScene(t, db, categories.LivingRoom, []models.Component{
		pendingComponent("sofa", categories.Furniture, 0.9),
	})

	components := NewComponentRepository(db)

	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return components.MarkReviewedTx(context.Background(), tx, ids[0], models.StatusAccepted, "")
	})
	if err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	comp, err := components.GetByID(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if comp.Status != models.StatusAccepted {
		t.Errorf("status = %q, want accepted", comp.Status)
	}
	if comp.ReviewTimestamp == nil {
		t.Error("review timestamp must be set once the component leaves pending")
	}

	// The pending guard rejects a second transition instead of
	// overwriting the first review.
	err = db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return components.MarkReviewedTx(context.Background(), tx, ids[0], models.StatusRejected, "changed my mind")
	})
	if !errors.Is(err, apperrors.ErrConsistency) {
		t.Errorf("expected consistency error on double transition, got %v", err)
	}
}

func TestSceneRepository_RecountTx_CompletionTimeOnce(t *testing.T) {
	db := newTestDB(t)
	sceneID, ids := seedScene(t, db, categories.LivingRoom, []models.Component{
		pendingComponent("sofa", categories.Furniture, 0.9),
		pendingComponent("vase", categories.Decor, 0.6),
	})

	scenes := NewSceneRepository(db)
	components := NewComponentRepository(db)
	ctx := context.Background()

	review := func(id int64, status models.ComponentStatus, notes string) *models.Scene {
		var scene *models.Scene
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if err := components.MarkReviewedTx(ctx, tx, id, status, notes); err != nil {
				return err
			}
			var err error
			scene, err = scenes.RecountTx(ctx, tx, sceneID)
			return err
		})
		if err != nil {
			t.Fatalf("review transition failed: %v", err)
		}
		return scene
	}

	scene := review(ids[0], models.StatusAccepted, "")
	if scene.PendingComponents != 1 || scene.AcceptedComponents != 1 {
		t.Errorf("counters after first review = (%d pending, %d accepted), want (1, 1)", scene.PendingComponents, scene.AcceptedComponents)
	}
	if scene.ReviewCompletionTime != nil {
		t.Error("completion time must not be set while components are pending")
	}

	scene = review(ids[1], models.StatusRejected, "bad crop")
	if scene.PendingComponents != 0 || scene.RejectedComponents != 1 {
		t.Errorf("counters after second review = (%d pending, %d rejected), want (0, 1)", scene.PendingComponents, scene.RejectedComponents)
	}
	if scene.ReviewCompletionTime == nil {
		t.Fatal("completion time must be set when the last component leaves pending")
	}
	completedAt := *scene.ReviewCompletionTime

	// A later recount must not move the completion time.
	var recounted *models.Scene
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		recounted, err = scenes.RecountTx(ctx, tx, sceneID)
		return err
	})
	if err != nil {
		t.Fatalf("recount failed: %v", err)
	}
	if recounted.ReviewCompletionTime == nil || !recounted.ReviewCompletionTime.Equal(completedAt) {
		t.Errorf("completion time changed on recount: %v -> %v", completedAt, recounted.ReviewCompletionTime)
	}
}

func TestSavepoint_RollbackPreservesOuterWrites(t *testing.T) {
	db := newTestDB(t)
	scenes := NewSceneRepository(db)
	components := NewComponentRepository(db)
	ctx := context.Background()

	var sceneID int64
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := scenes.CreateTx(ctx, tx, &models.Scene{Name: "sp_test", Category: categories.Bedroom})
		if err != nil {
			return err
		}
		sceneID = id

		spErr := Savepoint(ctx, tx, "components", func() error {
			if _, err := components.InsertBatchTx(ctx, tx, []models.Component{
				{SceneID: sceneID, Name: "bed", Type: categories.Furniture, Confidence: 0.9},
			}); err != nil {
				return err
			}
			return errors.New("batch failed")
		})
		if spErr == nil {
			return errors.New("savepoint should have propagated the failure")
		}

		// Outer transaction still usable after the rollback.
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	scene, err := scenes.GetByID(ctx, sceneID)
	if err != nil {
		t.Fatalf("scene should survive the savepoint rollback: %v", err)
	}
	if scene.Name != "sp_test" {
		t.Errorf("scene name = %q, want sp_test", scene.Name)
	}

	comps, err := components.GetBySceneID(ctx, sceneID)
	if err != nil {
		t.Fatalf("GetBySceneID failed: %v", err)
	}
	if len(comps) != 0 {
		t.Errorf("component batch should have been rolled back, found %d rows", len(comps))
	}
}

func TestSnapshotRepository_RebuildSceneSnapshot(t *testing.T) {
	db := newTestDB(t)
	sceneID, ids := seedScene(t, db, categories.LivingRoom, []models.Component{
		pendingComponent("sofa", categories.Furniture, 0.9),
		pendingComponent("lamp", categories.Decor, 0.7),
		pendingComponent("rug", categories.Decor, 0.5),
	})

	components := NewComponentRepository(db)
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return components.MarkReviewedTx(ctx, tx, ids[0], models.StatusAccepted, "")
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	snapshots := NewSnapshotRepository(db)

	// No snapshot before the first rebuild.
	if _, err := snapshots.GetSceneSnapshot(ctx, sceneID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not-found before rebuild, got %v", err)
	}

	built, err := snapshots.RebuildSceneSnapshot(ctx, sceneID)
	if err != nil {
		t.Fatalf("RebuildSceneSnapshot failed: %v", err)
	}

	stored, err := snapshots.GetSceneSnapshot(ctx, sceneID)
	if err != nil {
		t.Fatalf("GetSceneSnapshot failed: %v", err)
	}

	if stored.TotalComponents != 3 || stored.Accepted != 1 || stored.Pending != 2 {
		t.Errorf("snapshot counters = (%d total, %d accepted, %d pending), want (3, 1, 2)",
			stored.TotalComponents, stored.Accepted, stored.Pending)
	}
	if got, want := stored.AvgConfidence, (0.9+0.7+0.5)/3; !almostEqual(got, want) {
		t.Errorf("avg confidence = %v, want %v", got, want)
	}
	if !almostEqual(stored.AcceptanceRate, 1.0/3) {
		t.Errorf("acceptance rate = %v, want 1/3", stored.AcceptanceRate)
	}
	if stored.TypeDistribution[categories.Decor] != 2 || stored.TypeDistribution[categories.Furniture] != 1 {
		t.Errorf("type distribution = %v", stored.TypeDistribution)
	}
	if stored.ConfidenceDistribution["90-100"] != 1 || stored.ConfidenceDistribution["70-80"] != 1 || stored.ConfidenceDistribution["50-60"] != 1 {
		t.Errorf("confidence distribution = %v", stored.ConfidenceDistribution)
	}
	if !stored.LastRefresh.Equal(built.LastRefresh) {
		t.Errorf("stored last refresh %v differs from built %v", stored.LastRefresh, built.LastRefresh)
	}
}

func TestSnapshotRepository_RebuildSceneSnapshot_UnknownScene(t *testing.T) {
	db := newTestDB(t)

	_, err := NewSnapshotRepository(db).RebuildSceneSnapshot(context.Background(), 999)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not-found for unknown scene, got %v", err)
	}
}

func TestSnapshotRepository_RebuildGlobalSnapshot(t *testing.T) {
	db := newTestDB(t)

	// A living room with a valid and an invalid component type, plus a
	// kitchen with a valid one.
	_, livingIDs := seedScene(t, db, categories.LivingRoom, []models.Component{
		pendingComponent("sofa", categories.Furniture, 0.9),
		pendingComponent("fridge", categories.Appliance, 0.4),
	})
	seedScene(t, db, categories.Kitchen, []models.Component{
		pendingComponent("oven", categories.Appliance, 0.8),
	})

	components := NewComponentRepository(db)
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return components.MarkReviewedTx(ctx, tx, livingIDs[0], models.StatusAccepted, "")
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	snapshots := NewSnapshotRepository(db)
	snap, err := snapshots.RebuildGlobalSnapshot(ctx)
	if err != nil {
		t.Fatalf("RebuildGlobalSnapshot failed: %v", err)
	}

	if snap.TotalComponents != 3 || snap.TotalReviews != 1 {
		t.Errorf("totals = (%d components, %d reviews), want (3, 1)", snap.TotalComponents, snap.TotalReviews)
	}
	if !almostEqual(snap.MedianConfidence, 0.8) {
		t.Errorf("median confidence = %v, want 0.8", snap.MedianConfidence)
	}
	if snap.StatusDistribution["pending"] != 2 || snap.StatusDistribution["accepted"] != 1 {
		t.Errorf("status distribution = %v", snap.StatusDistribution)
	}

	living := snap.AccuracyByCategory[categories.LivingRoom]
	if living.Total != 2 || living.Correct != 1 || living.Incorrect != 1 {
		t.Errorf("living room accuracy = %+v, want total=2 correct=1 incorrect=1", living)
	}

	stored, err := snapshots.GetGlobalSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetGlobalSnapshot failed: %v", err)
	}
	if stored.TotalComponents != snap.TotalComponents {
		t.Errorf("stored snapshot differs from rebuilt one")
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
