package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"scenereview/internal/apperrors"
	"scenereview/internal/categories"
	"scenereview/internal/models"
)

// SnapshotRepository owns the precomputed aggregate projections backing
// scene and global statistics. Snapshots are recomputed from ledger
// state and swapped in atomically; readers keep the previous snapshot
// until a rebuild commits.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new SQLite snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// confidenceBin buckets a [0,1] score into 10-point bins keyed "70-80".
func confidenceBin(score float64) string {
	bin := int(score * 10)
	if bin > 9 {
		bin = 9
	}
	if bin < 0 {
		bin = 0
	}
	return fmt.Sprintf("%d-%d", bin*10, bin*10+10)
}

// GetSceneSnapshot returns the stored projection for one scene.
func (r *SnapshotRepository) GetSceneSnapshot(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	var snap models.SceneSnapshot
	var typeDist, confDist string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT scene_id, total_components, pending_components, accepted_components,
			rejected_components, avg_confidence, min_confidence, max_confidence,
			acceptance_rate, review_progress, avg_review_seconds,
			type_distribution, confidence_distribution, last_refresh
		FROM scene_stats WHERE scene_id = ?
	`, sceneID).Scan(
		&snap.SceneID, &snap.TotalComponents, &snap.Pending, &snap.Accepted,
		&snap.Rejected, &snap.AvgConfidence, &snap.MinConfidence, &snap.MaxConfidence,
		&snap.AcceptanceRate, &snap.ReviewProgress, &snap.AvgReviewSeconds,
		&typeDist, &confDist, &snap.LastRefresh,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "scene snapshot", ID: sceneID}
	}
	if err != nil {
		return nil, WrapErr("query scene snapshot", err)
	}

	if err := json.Unmarshal([]byte(typeDist), &snap.TypeDistribution); err != nil {
		return nil, fmt.Errorf("decode type distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(confDist), &snap.ConfidenceDistribution); err != nil {
		return nil, fmt.Errorf("decode confidence distribution: %w", err)
	}
	return &snap, nil
}

// GetGlobalSnapshot returns the stored global projection.
func (r *SnapshotRepository) GetGlobalSnapshot(ctx context.Context) (*models.GlobalSnapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	var snap models.GlobalSnapshot
	var statusDist, confDist, accuracy string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT total_components, total_reviews, avg_confidence, median_confidence,
			avg_review_seconds, status_distribution, confidence_distribution,
			accuracy_by_category, last_refresh
		FROM global_stats WHERE id = 1
	`).Scan(
		&snap.TotalComponents, &snap.TotalReviews, &snap.AvgConfidence,
		&snap.MedianConfidence, &snap.AvgReviewSeconds,
		&statusDist, &confDist, &accuracy, &snap.LastRefresh,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "global snapshot", ID: 1}
	}
	if err != nil {
		return nil, WrapErr("query global snapshot", err)
	}

	if err := json.Unmarshal([]byte(statusDist), &snap.StatusDistribution); err != nil {
		return nil, fmt.Errorf("decode status distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(confDist), &snap.ConfidenceDistribution); err != nil {
		return nil, fmt.Errorf("decode confidence distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(accuracy), &snap.AccuracyByCategory); err != nil {
		return nil, fmt.Errorf("decode category accuracy: %w", err)
	}
	return &snap, nil
}

// componentFacts is the slice of ledger state a rebuild aggregates over.
type componentFacts struct {
	category   string
	compType   string
	confidence float64
	status     models.ComponentStatus
	createdAt  time.Time
	reviewedAt *time.Time
}

func (r *SnapshotRepository) readSceneFacts(ctx context.Context, sceneID int64) ([]componentFacts, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	// Verify the scene exists so a rebuild for a bogus id surfaces a
	// not-found instead of writing an empty projection.
	var exists int
	err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM scenes WHERE id = ?`, sceneID).Scan(&exists)
	if err != nil {
		return nil, WrapErr("check scene", err)
	}
	if exists == 0 {
		return nil, &apperrors.NotFoundError{Kind: "scene", ID: sceneID}
	}

	return r.queryFacts(ctx, `
		SELECT s.category, c.component_type, c.confidence, c.status, c.created_at, c.review_timestamp
		FROM components c JOIN scenes s ON s.id = c.scene_id
		WHERE c.scene_id = ?
	`, sceneID)
}

func (r *SnapshotRepository) readGlobalFacts(ctx context.Context) ([]componentFacts, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	ctx, cancel := r.db.OpContext(ctx)
	defer cancel()

	return r.queryFacts(ctx, `
		SELECT s.category, c.component_type, c.confidence, c.status, c.created_at, c.review_timestamp
		FROM components c JOIN scenes s ON s.id = c.scene_id
	`)
}

func (r *SnapshotRepository) queryFacts(ctx context.Context, query string, args ...interface{}) ([]componentFacts, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapErr("query component facts", err)
	}
	defer rows.Close()

	var facts []componentFacts
	for rows.Next() {
		var f componentFacts
		var reviewedAt sql.NullTime
		if err := rows.Scan(&f.category, &f.compType, &f.confidence, &f.status, &f.createdAt, &reviewedAt); err != nil {
			return nil, WrapErr("scan component facts", err)
		}
		if reviewedAt.Valid {
			t := reviewedAt.Time
			f.reviewedAt = &t
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// RebuildSceneSnapshot recomputes one scene's projection from current
// ledger state and replaces the stored row. The aggregate is computed
// outside the write lock so concurrent readers keep serving the
// previous snapshot during the rebuild.
func (r *SnapshotRepository) RebuildSceneSnapshot(ctx context.Context, sceneID int64) (*models.SceneSnapshot, error) {
	facts, err := r.readSceneFacts(ctx, sceneID)
	if err != nil {
		return nil, err
	}

	snap := buildSceneSnapshot(sceneID, facts)

	typeDist, err := json.Marshal(snap.TypeDistribution)
	if err != nil {
		return nil, fmt.Errorf("encode type distribution: %w", err)
	}
	confDist, err := json.Marshal(snap.ConfidenceDistribution)
	if err != nil {
		return nil, fmt.Errorf("encode confidence distribution: %w", err)
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO scene_stats (
				scene_id, total_components, pending_components, accepted_components,
				rejected_components, avg_confidence, min_confidence, max_confidence,
				acceptance_rate, review_progress, avg_review_seconds,
				type_distribution, confidence_distribution, last_refresh
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			snap.SceneID, snap.TotalComponents, snap.Pending, snap.Accepted,
			snap.Rejected, snap.AvgConfidence, snap.MinConfidence, snap.MaxConfidence,
			snap.AcceptanceRate, snap.ReviewProgress, snap.AvgReviewSeconds,
			string(typeDist), string(confDist), snap.LastRefresh,
		)
		return WrapErr("replace scene snapshot", err)
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// RebuildGlobalSnapshot recomputes the global projection, joining the
// detection-level and review-level aggregates into one composite row.
func (r *SnapshotRepository) RebuildGlobalSnapshot(ctx context.Context) (*models.GlobalSnapshot, error) {
	facts, err := r.readGlobalFacts(ctx)
	if err != nil {
		return nil, err
	}

	snap := buildGlobalSnapshot(facts)

	statusDist, err := json.Marshal(snap.StatusDistribution)
	if err != nil {
		return nil, fmt.Errorf("encode status distribution: %w", err)
	}
	confDist, err := json.Marshal(snap.ConfidenceDistribution)
	if err != nil {
		return nil, fmt.Errorf("encode confidence distribution: %w", err)
	}
	accuracy, err := json.Marshal(snap.AccuracyByCategory)
	if err != nil {
		return nil, fmt.Errorf("encode category accuracy: %w", err)
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO global_stats (
				id, total_components, total_reviews, avg_confidence, median_confidence,
				avg_review_seconds, status_distribution, confidence_distribution,
				accuracy_by_category, last_refresh
			) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			snap.TotalComponents, snap.TotalReviews, snap.AvgConfidence,
			snap.MedianConfidence, snap.AvgReviewSeconds,
			string(statusDist), string(confDist), string(accuracy), snap.LastRefresh,
		)
		return WrapErr("replace global snapshot", err)
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func buildSceneSnapshot(sceneID int64, facts []componentFacts) *models.SceneSnapshot {
	snap := &models.SceneSnapshot{
		SceneID:                sceneID,
		TypeDistribution:       make(map[string]int),
		ConfidenceDistribution: make(map[string]int),
		LastRefresh:            time.Now().UTC(),
	}

	var totalConfidence, totalReviewSeconds float64
	reviewed := 0
	for i, f := range facts {
		switch f.status {
		case models.StatusPending:
			snap.Pending++
		case models.StatusAccepted:
			snap.Accepted++
		case models.StatusRejected:
			snap.Rejected++
		}

		totalConfidence += f.confidence
		if i == 0 || f.confidence < snap.MinConfidence {
			snap.MinConfidence = f.confidence
		}
		if f.confidence > snap.MaxConfidence {
			snap.MaxConfidence = f.confidence
		}
		snap.TypeDistribution[f.compType]++
		snap.ConfidenceDistribution[confidenceBin(f.confidence)]++

		if f.reviewedAt != nil {
			totalReviewSeconds += f.reviewedAt.Sub(f.createdAt).Seconds()
			reviewed++
		}
	}

	snap.TotalComponents = len(facts)
	if snap.TotalComponents > 0 {
		snap.AvgConfidence = totalConfidence / float64(snap.TotalComponents)
		snap.AcceptanceRate = float64(snap.Accepted) / float64(snap.TotalComponents)
		snap.ReviewProgress = float64(snap.Accepted+snap.Rejected) / float64(snap.TotalComponents) * 100
	}
	if reviewed > 0 {
		snap.AvgReviewSeconds = totalReviewSeconds / float64(reviewed)
	}
	return snap
}

func buildGlobalSnapshot(facts []componentFacts) *models.GlobalSnapshot {
	snap := &models.GlobalSnapshot{
		StatusDistribution:     make(map[string]int),
		ConfidenceDistribution: make(map[string]int),
		AccuracyByCategory:     make(map[string]models.CategoryAccuracy),
		LastRefresh:            time.Now().UTC(),
	}

	var totalConfidence, totalReviewSeconds float64
	confidences := make([]float64, 0, len(facts))
	for _, f := range facts {
		snap.StatusDistribution[string(f.status)]++
		snap.ConfidenceDistribution[confidenceBin(f.confidence)]++
		totalConfidence += f.confidence
		confidences = append(confidences, f.confidence)

		acc := snap.AccuracyByCategory[f.category]
		acc.Total++
		if categories.Compatible(f.category, f.compType) {
			acc.Correct++
		} else {
			acc.Incorrect++
		}
		snap.AccuracyByCategory[f.category] = acc

		if f.reviewedAt != nil {
			totalReviewSeconds += f.reviewedAt.Sub(f.createdAt).Seconds()
			snap.TotalReviews++
		}
	}

	snap.TotalComponents = len(facts)
	if snap.TotalComponents > 0 {
		snap.AvgConfidence = totalConfidence / float64(snap.TotalComponents)
		snap.MedianConfidence = median(confidences)
	}
	if snap.TotalReviews > 0 {
		snap.AvgReviewSeconds = totalReviewSeconds / float64(snap.TotalReviews)
	}
	return snap
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
