package webapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/workflow"
)

// settingsDTO is the wire form of studio.Settings: every enumerated field
// travels as its variant ID.
type settingsDTO struct {
	AspectRatio       string `json:"aspect_ratio"`
	FocalLength       string `json:"focal_length"`
	DepthOfField      string `json:"depth_of_field"`
	Pose              string `json:"pose"`
	Lighting          string `json:"lighting"`
	Environment       string `json:"environment"`
	CustomEnvironment string `json:"custom_environment,omitempty"`
	ColorGrade        string `json:"color_grade"`
	EnhanceTexture    bool   `json:"enhance_texture"`
	FilmGrain         bool   `json:"film_grain"`
	BeautyFilter      bool   `json:"beauty_filter"`
}

func toSettingsDTO(s studio.Settings) settingsDTO {
	return settingsDTO{
		AspectRatio:       s.AspectRatio.ID(),
		FocalLength:       s.FocalLength.ID(),
		DepthOfField:      s.DepthOfField.ID(),
		Pose:              s.Pose.ID(),
		Lighting:          s.Lighting.ID(),
		Environment:       s.Environment.ID(),
		CustomEnvironment: s.CustomEnvironment,
		ColorGrade:        s.ColorGrade.ID(),
		EnhanceTexture:    s.EnhanceTexture,
		FilmGrain:         s.FilmGrain,
		BeautyFilter:      s.BeautyFilter,
	}
}

func (d settingsDTO) toSettings() (studio.Settings, error) {
	var s studio.Settings
	fields := []struct{ field, id string }{
		{studio.FieldAspectRatio, d.AspectRatio},
		{studio.FieldFocalLength, d.FocalLength},
		{studio.FieldDepthOfField, d.DepthOfField},
		{studio.FieldPose, d.Pose},
		{studio.FieldLighting, d.Lighting},
		{studio.FieldEnvironment, d.Environment},
		{studio.FieldColorGrade, d.ColorGrade},
	}
	for _, f := range fields {
		if err := s.Set(f.field, f.id); err != nil {
			return studio.Settings{}, err
		}
	}
	s.CustomEnvironment = d.CustomEnvironment
	s.EnhanceTexture = d.EnhanceTexture
	s.FilmGrain = d.FilmGrain
	s.BeautyFilter = d.BeautyFilter
	return s, s.Validate()
}

// overlaySettings applies a partial settings object on top of cur. Fields
// missing from patch keep their current values.
func overlaySettings(cur studio.Settings, patch []byte) (studio.Settings, error) {
	dto := toSettingsDTO(cur)
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dto); err != nil {
		return studio.Settings{}, fmt.Errorf("%w: invalid settings body: %v", studio.ErrInvalidInput, err)
	}
	return dto.toSettings()
}

type sessionView struct {
	ID           string                 `json:"id"`
	State        string                 `json:"state"`
	Subject      string                 `json:"subject,omitempty"`
	Garments     []string               `json:"garments"`
	GarmentCount int                    `json:"garment_count"`
	Settings     settingsDTO            `json:"settings"`
	Generated    string                 `json:"generated,omitempty"`
	Overlay      []string               `json:"overlay,omitempty"`
	Analysis     *studio.AnalysisResult `json:"analysis,omitempty"`
	Error        string                 `json:"error,omitempty"`
	AutoRender   bool                   `json:"auto_render"`
	Permitted    bool                   `json:"permitted"`
	Ready        bool                   `json:"ready"`
	Busy         bool                   `json:"busy"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// newSessionView renders a snapshot. With lite set, image payloads are
// left out so pollers only pay for state.
func newSessionView(id string, snap workflow.Snapshot, lite bool) sessionView {
	v := sessionView{
		ID:           id,
		State:        snap.State.String(),
		Garments:     []string{},
		GarmentCount: len(snap.Garments),
		Settings:     toSettingsDTO(snap.Settings),
		Analysis:     snap.Analysis,
		Error:        snap.ErrMessage(),
		AutoRender:   snap.AutoRender,
		Permitted:    snap.Permitted,
		Ready:        snap.Ready(),
		Busy:         snap.State.Busy(),
		UpdatedAt:    snap.UpdatedAt,
	}
	if snap.HasRender() {
		v.Overlay = snap.Settings.Overlay()
	}
	if lite {
		return v
	}

	v.Subject = snap.Subject.DataURL()
	for _, g := range snap.Garments {
		v.Garments = append(v.Garments, g.DataURL())
	}
	v.Generated = snap.Generated.DataURL()
	return v
}

type imageRequest struct {
	Image string `json:"image"`
}

type garmentsRequest struct {
	Images []string `json:"images"`
}

type autoRenderRequest struct {
	Enabled bool `json:"enabled"`
}

type optionsResponse struct {
	Fields   []studio.FieldOptions `json:"fields"`
	Flags    []studio.FlagOption   `json:"flags"`
	Defaults settingsDTO           `json:"defaults"`
}

type statusResponse struct {
	Permitted bool `json:"permitted"`
	Sessions  int  `json:"sessions"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
