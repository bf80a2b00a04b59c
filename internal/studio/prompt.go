package studio

import (
	"errors"
	"fmt"
	"strings"

	"stylenow-studio/internal/media"
)

const ImageSize = "1K"

var ErrInvalidInput = errors.New("invalid try-on input")

const (
	textureDirective   = "Make fabric textures (wool, silk, leather, denim) extremely detailed and tactile."
	grainOnDirective   = "Add subtle analog film grain for a cinematic texture."
	grainOffDirective  = "Ensure clean, noise-free digital image quality."
	beautyOnDirective  = "Apply professional high-end skin retouching while maintaining natural pores."
	beautyOffDirective = "Keep skin texture raw and realistic."
)

// GenerationRequest is everything the image model needs for one render.
// Built by BuildRequest and not modified afterwards.
type GenerationRequest struct {
	Subject     media.ImageAsset
	Garments    []media.ImageAsset
	Settings    Settings
	Prompt      string
	AspectRatio string
	ImageSize   string
}

// BuildRequest validates the inputs and assembles the instruction text. The
// output depends only on the arguments.
func BuildRequest(settings Settings, subject media.ImageAsset, garments []media.ImageAsset) (GenerationRequest, error) {
	if subject.IsZero() {
		return GenerationRequest{}, fmt.Errorf("%w: subject image is missing", ErrInvalidInput)
	}
	if len(garments) == 0 {
		return GenerationRequest{}, fmt.Errorf("%w: at least one garment image is required", ErrInvalidInput)
	}
	for i, g := range garments {
		if g.IsZero() {
			return GenerationRequest{}, fmt.Errorf("%w: garment %d is empty", ErrInvalidInput, i+1)
		}
	}
	if err := settings.Validate(); err != nil {
		return GenerationRequest{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return GenerationRequest{
		Subject:     subject,
		Garments:    append([]media.ImageAsset(nil), garments...),
		Settings:    settings,
		Prompt:      BuildPrompt(settings),
		AspectRatio: settings.AspectRatio.ID(),
		ImageSize:   ImageSize,
	}, nil
}

// BuildPrompt renders the try-on instruction for already validated settings.
func BuildPrompt(s Settings) string {
	var b strings.Builder
	b.Grow(1536)

	b.WriteString("Create a high-fashion, professional photoshoot image.\n\n")

	writeSection(&b, "SUBJECT REFERENCE", []string{
		"The person in the FIRST image is the subject.",
		"PRESERVE: Facial identity, skin tone, body shape, and hair style exactly.",
	})

	wardrobe := []string{
		"Dress the subject in the item(s) provided in the subsequent images.",
		"FIT: Ensure the clothing fits naturally on the subject's body pose.",
	}
	if s.EnhanceTexture {
		wardrobe = append(wardrobe, textureDirective)
	}
	writeSection(&b, "WARDROBE STYLING", wardrobe)

	writeSection(&b, "CAMERA & LENS SETUP", []string{
		"Focal Length: " + s.FocalLength.Label() + ".",
		"Aperture: " + s.DepthOfField.Label() + ".",
		"Perspective: Matches the focal length choice (e.g. compression for telephoto, distortion for wide).",
	})

	writeSection(&b, "POSING & ACTION", []string{
		"Pose: " + s.Pose.Label() + ".",
		"Expression: Professional model expression matching the vibe.",
	})

	writeSection(&b, "LIGHTING & ATMOSPHERE", []string{
		"Lighting Setup: " + s.Lighting.Label() + ".",
		"Environment: " + s.EnvironmentDescription() + ".",
		"Color Grading: " + s.ColorGrade.Label() + ".",
	})

	grain := grainOffDirective
	if s.FilmGrain {
		grain = grainOnDirective
	}
	skin := beautyOffDirective
	if s.BeautyFilter {
		skin = beautyOnDirective
	}
	writeSection(&b, "POST-PROCESSING", []string{
		grain,
		skin,
		"Quality: 4K, Editorial Standard.",
	})

	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title string, lines []string) {
	b.WriteString(title + ":\n")
	for _, line := range lines {
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\n")
}
