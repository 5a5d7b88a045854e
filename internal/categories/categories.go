// Package categories holds the static scene-category to component-type
// compatibility table used to validate reviews and score detection
// accuracy.
package categories

import (
	"fmt"
	"sort"
)

// Known scene categories.
const (
	LivingRoom = "living_room"
	Bedroom    = "bedroom"
	Kitchen    = "kitchen"
	Bathroom   = "bathroom"
	DiningRoom = "dining_room"
)

// Known component types.
const (
	Furniture = "furniture"
	Appliance = "appliance"
	Fixture   = "fixture"
	Decor     = "decor"
)

// validTypes maps each scene category to the component types that may
// legitimately appear in it.
var validTypes = map[string][]string{
	LivingRoom: {Furniture, Decor},
	Kitchen:    {Furniture, Appliance, Fixture},
	Bedroom:    {Furniture, Decor, Fixture},
	Bathroom:   {Fixture, Furniture},
	DiningRoom: {Furniture, Decor, Fixture},
}

// KnownCategory reports whether category is in the table.
func KnownCategory(category string) bool {
	_, ok := validTypes[category]
	return ok
}

// Categories returns all known scene categories, sorted.
func Categories() []string {
	out := make([]string, 0, len(validTypes))
	for c := range validTypes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ValidTypes returns the component types valid for category, or nil
// when the category is unknown.
func ValidTypes(category string) []string {
	return validTypes[category]
}

// Compatible reports whether componentType is valid for category.
func Compatible(category, componentType string) bool {
	for _, t := range validTypes[category] {
		if t == componentType {
			return true
		}
	}
	return false
}

// Alternatives returns the other valid component types for a category,
// excluding current.
func Alternatives(category, current string) []string {
	var out []string
	for _, t := range validTypes[category] {
		if t != current {
			out = append(out, t)
		}
	}
	return out
}

// ValidateConfidence reports whether score meets the minimum threshold.
func ValidateConfidence(score, threshold float64) (bool, string) {
	if score >= threshold {
		return true, fmt.Sprintf("confidence score %.2f meets threshold", score)
	}
	return false, fmt.Sprintf("confidence score %.2f below minimum threshold of %.2f", score, threshold)
}
