package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"scenereview/internal/apperrors"
	"scenereview/internal/models"
)

// ComponentRepository implements repository.ComponentRepository for SQLite.
type ComponentRepository struct {
	db *DB
}

// NewComponentRepository creates a new SQLite component repository.
func NewComponentRepository(db *DB) *ComponentRepository {
	return &ComponentRepository{db: db}
}

const componentColumns = `id, scene_id, name, component_type, x, y, width, height,
	confidence, status, review_timestamp, reviewer_notes, created_at, updated_at`

func scanComponentRow(scan func(dest ...interface{}) error) (*models.Component, error) {
	var comp models.Component
	var reviewedAt sql.NullTime
	var notes sql.NullString
	err := scan(
		&comp.ID, &comp.SceneID, &comp.Name, &comp.Type,
		&comp.X, &comp.Y, &comp.Width, &comp.Height,
		&comp.Confidence, &comp.Status, &reviewedAt, &notes,
		&comp.CreatedAt, &comp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		comp.ReviewTimestamp = &t
	}
	if notes.Valid {
		comp.ReviewerNotes = notes.String
	}
	return &comp, nil
}

// InsertBatchTx inserts pending component rows inside the caller's
// transaction, typically under the ingestion savepoint.
func (r *ComponentRepository) InsertBatchTx(ctx context.Context, tx *sql.Tx, components []models.Component) ([]int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO components (scene_id, name, component_type, x, y, width, height, confidence, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, WrapErr("prepare component insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	ids := make([]int64, 0, len(components))
	for _, comp := range components {
		status := comp.Status
		if status == "" {
			status = models.StatusPending
		}
		result, err := stmt.ExecContext(ctx,
			comp.SceneID, comp.Name, comp.Type,
			comp.X, comp.Y, comp.Width, comp.Height,
			comp.Confidence, status, now, now,
		)
		if err != nil {
			return nil, WrapErr("insert component", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, WrapErr("component insert id", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// GetByID retrieves a component by its id.
func (r *ComponentRepository) GetByID(ctx context.Context, id int64) (*models.Component, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	comp, err := scanComponentRow(r.db.Conn().QueryRowContext(ctx, `
		SELECT `+componentColumns+` FROM components WHERE id = ?
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "component", ID: id}
	}
	if err != nil {
		return nil, WrapErr("query component", err)
	}
	return comp, nil
}

// GetByIDTx retrieves a component inside the caller's transaction.
func (r *ComponentRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Component, error) {
	comp, err := scanComponentRow(tx.QueryRowContext(ctx, `
		SELECT `+componentColumns+` FROM components WHERE id = ?
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "component", ID: id}
	}
	if err != nil {
		return nil, WrapErr("query component", err)
	}
	return comp, nil
}

// GetBySceneID retrieves all components belonging to a scene.
func (r *ComponentRepository) GetBySceneID(ctx context.Context, sceneID int64) ([]models.Component, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+componentColumns+` FROM components WHERE scene_id = ? ORDER BY id
	`, sceneID)
	if err != nil {
		return nil, WrapErr("query components", err)
	}
	defer rows.Close()

	var components []models.Component
	for rows.Next() {
		comp, err := scanComponentRow(rows.Scan)
		if err != nil {
			return nil, WrapErr("scan component", err)
		}
		components = append(components, *comp)
	}

	return components, rows.Err()
}

// MarkReviewedTx moves a pending component into a terminal status inside
// the caller's transaction. The pending guard in the WHERE clause makes
// a double transition report a conflict instead of overwriting the
// earlier review.
func (r *ComponentRepository) MarkReviewedTx(ctx context.Context, tx *sql.Tx, id int64, status models.ComponentStatus, notes string) error {
	now := time.Now().UTC()

	var notesArg interface{}
	if notes != "" {
		notesArg = notes
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE components
		SET status = ?, review_timestamp = ?, reviewer_notes = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, status, now, notesArg, now, id)
	if err != nil {
		return WrapErr("update component status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return WrapErr("component status rows affected", err)
	}
	if affected == 0 {
		// Either the component does not exist or it already left pending.
		comp, err := r.GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return &apperrors.IllegalTransitionError{
			ComponentID: id,
			From:        string(comp.Status),
			To:          string(status),
		}
	}

	return nil
}
