package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

const (
	DefaultImageModel = "gemini-3-pro-image-preview"
	DefaultTextModel  = "gemini-3-pro-preview"
)

var (
	ErrGenerationFailed = errors.New("image generation failed")
	ErrNoImageProduced  = errors.New("no image produced")
	ErrNotConfigured    = errors.New("gemini client is not configured")
)

// Models is the slice of the genai Models service used here. *genai.Models
// satisfies it; tests substitute a fake.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// analysisPayload mirrors the response schema. Pointers distinguish a
// missing field from a zero value.
type analysisPayload struct {
	Critique    *string   `json:"critique"`
	Rating      *float64  `json:"rating"`
	MatchScore  *float64  `json:"matchScore"`
	Suggestions *[]string `json:"suggestions"`
}
