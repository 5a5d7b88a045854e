package dto

// SceneDescriptor carries the metadata for a scene about to be ingested.
type SceneDescriptor struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// DetectedComponent is one detector output: a typed sub-object with its
// bounding geometry and confidence score in [0,1].
type DetectedComponent struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
