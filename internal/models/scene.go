package models

import "time"

// Scene represents one reviewed photograph and its aggregate review counters.
type Scene struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`

	// Counters always equal the count of the scene's components
	// partitioned by status. Mutated only by the review state machine.
	TotalComponents    int `json:"total_components"`
	PendingComponents  int `json:"pending_components"`
	AcceptedComponents int `json:"accepted_components"`
	RejectedComponents int `json:"rejected_components"`

	ReviewCompletionTime *time.Time `json:"review_completion_time,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// ReviewProgress returns the percentage of components reviewed.
func (s *Scene) ReviewProgress() float64 {
	if s.TotalComponents == 0 {
		return 0
	}
	reviewed := s.AcceptedComponents + s.RejectedComponents
	return float64(reviewed) / float64(s.TotalComponents) * 100
}
