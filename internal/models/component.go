package models

import "time"

// ComponentStatus is the review state of a detected component.
type ComponentStatus string

const (
	StatusPending  ComponentStatus = "pending"
	StatusAccepted ComponentStatus = "accepted"
	StatusRejected ComponentStatus = "rejected"
)

// Valid reports whether s is a known status value.
func (s ComponentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s ComponentStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Component represents a detected sub-object within a scene,
// subject to accept/reject review.
type Component struct {
	ID      int64  `json:"id"`
	SceneID int64  `json:"scene_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`

	// Bounding box from the detector.
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`

	Confidence float64         `json:"confidence"`
	Status     ComponentStatus `json:"status"`

	// ReviewTimestamp is set on the first transition out of pending.
	ReviewTimestamp *time.Time `json:"review_timestamp,omitempty"`
	// ReviewerNotes is required when the component is rejected.
	ReviewerNotes string `json:"reviewer_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
