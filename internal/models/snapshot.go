package models

import "time"

// SceneSnapshot is a precomputed statistics projection for one scene.
// It is derived from the ledger by refresh and never hand-mutated;
// between refreshes it is stale by definition.
type SceneSnapshot struct {
	SceneID int64 `json:"scene_id"`

	TotalComponents int `json:"total_components"`
	Pending         int `json:"pending_components"`
	Accepted        int `json:"accepted_components"`
	Rejected        int `json:"rejected_components"`

	AvgConfidence float64 `json:"avg_confidence"`
	MinConfidence float64 `json:"min_confidence"`
	MaxConfidence float64 `json:"max_confidence"`

	// AcceptanceRate is accepted/total over all components.
	AcceptanceRate float64 `json:"acceptance_rate"`
	// ReviewProgress is the reviewed percentage, 0-100.
	ReviewProgress float64 `json:"review_progress"`
	// AvgReviewSeconds is the mean latency between component creation
	// and its review timestamp, over reviewed components.
	AvgReviewSeconds float64 `json:"avg_review_seconds"`

	// TypeDistribution counts components per detector type tag.
	TypeDistribution map[string]int `json:"type_distribution"`
	// ConfidenceDistribution bins confidence scores into 10-point
	// buckets keyed like "70-80".
	ConfidenceDistribution map[string]int `json:"confidence_distribution"`

	LastRefresh time.Time `json:"last_refresh"`
}

// CategoryAccuracy tracks how many components carry a type that is
// valid for their scene's category.
type CategoryAccuracy struct {
	Total     int `json:"total"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

// GlobalSnapshot joins the detection-level and review-level aggregates
// across all scenes into one composite projection.
type GlobalSnapshot struct {
	TotalComponents int `json:"total_components"`
	TotalReviews    int `json:"total_reviews"`

	AvgConfidence    float64 `json:"avg_confidence"`
	MedianConfidence float64 `json:"median_confidence"`
	AvgReviewSeconds float64 `json:"avg_review_seconds"`

	StatusDistribution     map[string]int              `json:"status_distribution"`
	ConfidenceDistribution map[string]int              `json:"confidence_distribution"`
	AccuracyByCategory     map[string]CategoryAccuracy `json:"accuracy_by_category"`

	LastRefresh time.Time `json:"last_refresh"`
}
