package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"scenereview/internal/apperrors"
	"scenereview/internal/models"
)

// SceneRepository implements repository.SceneRepository for SQLite.
type SceneRepository struct {
	db *DB
}

// NewSceneRepository creates a new SQLite scene repository.
func NewSceneRepository(db *DB) *SceneRepository {
	return &SceneRepository{db: db}
}

const sceneColumns = `id, name, category, total_components, pending_components,
	accepted_components, rejected_components, review_completion_time, created_at, updated_at`

func scanScene(row *sql.Row) (*models.Scene, error) {
	var scene models.Scene
	var completion sql.NullTime
	err := row.Scan(
		&scene.ID, &scene.Name, &scene.Category,
		&scene.TotalComponents, &scene.PendingComponents,
		&scene.AcceptedComponents, &scene.RejectedComponents,
		&completion, &scene.CreatedAt, &scene.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completion.Valid {
		t := completion.Time
		scene.ReviewCompletionTime = &t
	}
	return &scene, nil
}

// CreateTx inserts a scene row inside the caller's transaction and
// returns its id without committing.
func (r *SceneRepository) CreateTx(ctx context.Context, tx *sql.Tx, scene *models.Scene) (int64, error) {
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO scenes (name, category, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, scene.Name, scene.Category, now, now)
	if err != nil {
		return 0, WrapErr("insert scene", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, WrapErr("scene insert id", err)
	}
	return id, nil
}

// GetByID retrieves a scene by its id.
func (r *SceneRepository) GetByID(ctx context.Context, id int64) (*models.Scene, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	scene, err := scanScene(r.db.Conn().QueryRowContext(ctx, `
		SELECT `+sceneColumns+` FROM scenes WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "scene", ID: id}
	}
	if err != nil {
		return nil, WrapErr("query scene", err)
	}
	return scene, nil
}

// GetByIDTx retrieves a scene inside the caller's transaction.
func (r *SceneRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Scene, error) {
	scene, err := scanScene(tx.QueryRowContext(ctx, `
		SELECT `+sceneColumns+` FROM scenes WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "scene", ID: id}
	}
	if err != nil {
		return nil, WrapErr("query scene", err)
	}
	return scene, nil
}

// GetAll retrieves all scenes ordered by creation time, newest first.
func (r *SceneRepository) GetAll(ctx context.Context) ([]models.Scene, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+sceneColumns+` FROM scenes ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, WrapErr("query scenes", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var scene models.Scene
		var completion sql.NullTime
		if err := rows.Scan(
			&scene.ID, &scene.Name, &scene.Category,
			&scene.TotalComponents, &scene.PendingComponents,
			&scene.AcceptedComponents, &scene.RejectedComponents,
			&completion, &scene.CreatedAt, &scene.UpdatedAt,
		); err != nil {
			return nil, WrapErr("scan scene", err)
		}
		if completion.Valid {
			t := completion.Time
			scene.ReviewCompletionTime = &t
		}
		scenes = append(scenes, scene)
	}

	return scenes, rows.Err()
}

// ExistsByName checks whether a scene with the given name already exists.
func (r *SceneRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	var count int
	err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM scenes WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, WrapErr("count scenes", err)
	}
	return count > 0, nil
}

// RecountTx recomputes the scene's counters from its component rows and
// sets review_completion_time the first time pending reaches zero on a
// non-empty scene. Runs inside the caller's transaction so counters and
// component rows are never observably inconsistent.
func (r *SceneRepository) RecountTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Scene, error) {
	var total, pending, accepted, rejected int
	err := tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0)
		FROM components WHERE scene_id = ?
	`, id).Scan(&total, &pending, &accepted, &rejected)
	if err != nil {
		return nil, WrapErr("recount components", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE scenes SET
			total_components = ?,
			pending_components = ?,
			accepted_components = ?,
			rejected_components = ?,
			review_completion_time = CASE
				WHEN ? = 0 AND ? > 0 AND review_completion_time IS NULL THEN ?
				ELSE review_completion_time
			END,
			updated_at = ?
		WHERE id = ?
	`, total, pending, accepted, rejected,
		pending, total, time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return nil, WrapErr("update scene counters", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, WrapErr("scene counters rows affected", err)
	}
	if affected == 0 {
		return nil, &apperrors.NotFoundError{Kind: "scene", ID: id}
	}

	return r.GetByIDTx(ctx, tx, id)
}

// Delete removes a scene; its components follow via cascade.
func (r *SceneRepository) Delete(ctx context.Context, id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM scenes WHERE id = ?`, id); err != nil {
		return WrapErr("delete scene", err)
	}
	return nil
}
