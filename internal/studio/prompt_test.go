package studio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylenow-studio/internal/media"
)

func mustImage(t *testing.T, data string) media.ImageAsset {
	t.Helper()
	img, err := media.New([]byte(data), "image/png")
	require.NoError(t, err)
	return img
}

func TestBuildRequestDeterministic(t *testing.T) {
	subject := mustImage(t, "subject")
	garments := []media.ImageAsset{mustImage(t, "coat"), mustImage(t, "boots")}

	for _, s := range []Settings{
		DefaultSettings(),
		{AspectRatio: AspectStory, FocalLength: FocalTele135, Pose: PoseDetail, Lighting: LightingNeon, Environment: EnvRunway, ColorGrade: GradeMuted, FilmGrain: true},
	} {
		a, err := BuildRequest(s, subject, garments)
		require.NoError(t, err)
		b, err := BuildRequest(s, subject, garments)
		require.NoError(t, err)

		assert.Equal(t, a.Prompt, b.Prompt)
		assert.Equal(t, s.AspectRatio.ID(), a.AspectRatio)
		assert.Equal(t, ImageSize, a.ImageSize)
		assert.Equal(t, garments, a.Garments)
	}
}

func TestBuildRequestKeepsGarmentOrder(t *testing.T) {
	garments := []media.ImageAsset{mustImage(t, "a"), mustImage(t, "b"), mustImage(t, "c")}
	req, err := BuildRequest(DefaultSettings(), mustImage(t, "s"), garments)
	require.NoError(t, err)

	garments[0] = mustImage(t, "changed")
	require.Len(t, req.Garments, 3)
	assert.Equal(t, []byte("a"), req.Garments[0].Bytes())
	assert.Equal(t, []byte("c"), req.Garments[2].Bytes())
}

func TestBuildRequestInvalidInput(t *testing.T) {
	subject := mustImage(t, "subject")
	garment := mustImage(t, "coat")

	_, err := BuildRequest(DefaultSettings(), media.ImageAsset{}, []media.ImageAsset{garment})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildRequest(DefaultSettings(), subject, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildRequest(DefaultSettings(), subject, []media.ImageAsset{{}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := DefaultSettings()
	bad.Environment = EnvCustom
	_, err = BuildRequest(bad, subject, []media.ImageAsset{garment})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestBuildPromptTextureDirective(t *testing.T) {
	s := DefaultSettings()

	s.EnhanceTexture = true
	assert.Contains(t, BuildPrompt(s), textureDirective)

	s.EnhanceTexture = false
	assert.NotContains(t, BuildPrompt(s), textureDirective)
}

func TestBuildPromptExclusiveDirectives(t *testing.T) {
	for _, on := range []bool{true, false} {
		s := DefaultSettings()
		s.FilmGrain = on
		s.BeautyFilter = on
		prompt := BuildPrompt(s)

		assert.Equal(t, on, strings.Contains(prompt, grainOnDirective))
		assert.Equal(t, !on, strings.Contains(prompt, grainOffDirective))
		assert.Equal(t, on, strings.Contains(prompt, beautyOnDirective))
		assert.Equal(t, !on, strings.Contains(prompt, beautyOffDirective))
	}
}

func TestBuildPromptCustomEnvironment(t *testing.T) {
	s := DefaultSettings()
	s.Environment = EnvCustom
	s.CustomEnvironment = "a rooftop at dusk"

	prompt := BuildPrompt(s)
	assert.Contains(t, prompt, "a rooftop at dusk")
	assert.NotContains(t, prompt, "Studio Grey Seamless")
	assert.NotContains(t, prompt, EnvCustom.Label())
}

func TestBuildPromptSubstitutesLabels(t *testing.T) {
	s := DefaultSettings()
	s.FocalLength = FocalWide24
	s.DepthOfField = DepthShallow
	s.Pose = PoseWalking
	s.Lighting = LightingGolden
	s.Environment = EnvBeach
	s.ColorGrade = GradeCinematic

	prompt := BuildPrompt(s)
	for _, label := range []string{
		"24mm (Wide/Dynamic)",
		"f/1.8 (Shallow - Bokeh Background)",
		"Walking / Runway Strut",
		"Golden Hour (Warm Sun)",
		"Sunset Beach",
		"Cinematic Teal/Orange",
	} {
		assert.Contains(t, prompt, label)
	}
}

func TestBuildPromptSectionOrder(t *testing.T) {
	prompt := BuildPrompt(DefaultSettings())

	sections := []string{
		"SUBJECT REFERENCE:",
		"WARDROBE STYLING:",
		"CAMERA & LENS SETUP:",
		"POSING & ACTION:",
		"LIGHTING & ATMOSPHERE:",
		"POST-PROCESSING:",
	}
	last := -1
	for _, title := range sections {
		idx := strings.Index(prompt, title)
		require.GreaterOrEqual(t, idx, 0, title)
		assert.Greater(t, idx, last, title)
		last = idx
	}
}
