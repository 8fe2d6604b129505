package utils

import (
	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library,
// which handles all Unicode characters properly
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}
	return slug.Make(text)
}

// GenerateJobSlug creates a slug for a job from its name. Job names are
// unique, so the slug is stable for the life of the job.
func GenerateJobSlug(name string) string {
	if name == "" {
		return "job"
	}
	return NormalizeSlug(name)
}
