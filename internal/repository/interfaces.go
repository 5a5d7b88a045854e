package repository

import (
	"context"
	"database/sql"

	"scenereview/internal/models"
)

// SceneRepository defines the interface for scene ledger operations.
// Tx variants participate in a caller-owned transaction so that status
// writes and counter updates commit together.
type SceneRepository interface {
	// Create operations
	CreateTx(ctx context.Context, tx *sql.Tx, scene *models.Scene) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*models.Scene, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Scene, error)
	GetAll(ctx context.Context) ([]models.Scene, error)
	ExistsByName(ctx context.Context, name string) (bool, error)

	// RecountTx recomputes the scene's four counters from its component
	// rows and sets review_completion_time exactly once when pending
	// reaches zero. Must run inside the same transaction as the status
	// write that triggered it.
	RecountTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Scene, error)

	// Delete operations
	Delete(ctx context.Context, id int64) error
}

// ComponentRepository defines the interface for component ledger operations.
type ComponentRepository interface {
	// Create operations
	InsertBatchTx(ctx context.Context, tx *sql.Tx, components []models.Component) ([]int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*models.Component, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Component, error)
	GetBySceneID(ctx context.Context, sceneID int64) ([]models.Component, error)

	// MarkReviewedTx transitions a pending component into a terminal
	// status. It writes nothing and reports a conflict when the
	// component already left the pending state.
	MarkReviewedTx(ctx context.Context, tx *sql.Tx, id int64, status models.ComponentStatus, notes string) error
}

// SnapshotRepository owns the precomputed aggregate projections. Rebuild
// operations replace a snapshot atomically; readers keep seeing the
// previous snapshot until the rebuild commits.
type SnapshotRepository interface {
	GetSceneSnapshot(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error)
	GetGlobalSnapshot(ctx context.Context) (*models.GlobalSnapshot, error)
	RebuildSceneSnapshot(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error)
	RebuildGlobalSnapshot(ctx context.Context) (*models.GlobalSnapshot, error)
}
