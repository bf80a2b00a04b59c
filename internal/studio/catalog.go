package studio

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	FieldAspectRatio  = "aspect_ratio"
	FieldFocalLength  = "focal_length"
	FieldDepthOfField = "depth_of_field"
	FieldPose         = "pose"
	FieldLighting     = "lighting"
	FieldEnvironment  = "environment"
	FieldColorGrade   = "color_grade"

	FlagEnhanceTexture = "enhance_texture"
	FlagFilmGrain      = "film_grain"
	FlagBeautyFilter   = "beauty_filter"
)

type FieldOptions struct {
	Field   string    `json:"field"`
	Title   string    `json:"title"`
	Options []Variant `json:"options"`
}

type FlagOption struct {
	Flag  string `json:"flag"`
	Title string `json:"title"`
}

var fieldOrder = []struct {
	field string
	title string
	table []Variant
}{
	{FieldAspectRatio, "Aspect Ratio", aspectRatios},
	{FieldFocalLength, "Lens", focalLengths},
	{FieldDepthOfField, "Aperture", depthsOfField},
	{FieldPose, "Pose", poses},
	{FieldLighting, "Lighting", lightings},
	{FieldEnvironment, "Environment", environments},
	{FieldColorGrade, "Color Grade", colorGrades},
}

var flagOrder = []FlagOption{
	{Flag: FlagEnhanceTexture, Title: "Fabric Detail"},
	{Flag: FlagFilmGrain, Title: "Film Grain"},
	{Flag: FlagBeautyFilter, Title: "Skin Retouch"},
}

// Catalog lists every enumerated field with its legal values, in UI order.
func Catalog() []FieldOptions {
	out := make([]FieldOptions, 0, len(fieldOrder))
	for _, f := range fieldOrder {
		out = append(out, FieldOptions{
			Field:   f.field,
			Title:   f.title,
			Options: append([]Variant(nil), f.table...),
		})
	}
	return out
}

func Flags() []FlagOption {
	return append([]FlagOption(nil), flagOrder...)
}

func (s Settings) Selected(field string) (string, error) {
	switch field {
	case FieldAspectRatio:
		return s.AspectRatio.ID(), nil
	case FieldFocalLength:
		return s.FocalLength.ID(), nil
	case FieldDepthOfField:
		return s.DepthOfField.ID(), nil
	case FieldPose:
		return s.Pose.ID(), nil
	case FieldLighting:
		return s.Lighting.ID(), nil
	case FieldEnvironment:
		return s.Environment.ID(), nil
	case FieldColorGrade:
		return s.ColorGrade.ID(), nil
	}
	return "", fmt.Errorf("%w: unknown field %q", ErrInvalidSettings, field)
}

// Set assigns the variant with the given ID. The receiver is left untouched
// on error.
func (s *Settings) Set(field, id string) error {
	var err error
	switch field {
	case FieldAspectRatio:
		var v AspectRatio
		if v, err = ParseAspectRatio(id); err == nil {
			s.AspectRatio = v
		}
	case FieldFocalLength:
		var v FocalLength
		if v, err = ParseFocalLength(id); err == nil {
			s.FocalLength = v
		}
	case FieldDepthOfField:
		var v DepthOfField
		if v, err = ParseDepthOfField(id); err == nil {
			s.DepthOfField = v
		}
	case FieldPose:
		var v Pose
		if v, err = ParsePose(id); err == nil {
			s.Pose = v
		}
	case FieldLighting:
		var v Lighting
		if v, err = ParseLighting(id); err == nil {
			s.Lighting = v
		}
	case FieldEnvironment:
		var v Environment
		if v, err = ParseEnvironment(id); err == nil {
			s.Environment = v
		}
	case FieldColorGrade:
		var v ColorGrade
		if v, err = ParseColorGrade(id); err == nil {
			s.ColorGrade = v
		}
	default:
		err = fmt.Errorf("%w: unknown field %q", ErrInvalidSettings, field)
	}
	return err
}

func (s *Settings) Cycle(field string) error {
	for _, f := range fieldOrder {
		if f.field != field {
			continue
		}
		current, err := s.Selected(field)
		if err != nil {
			return err
		}
		next := 0
		for i, v := range f.table {
			if v.ID == current {
				next = (i + 1) % len(f.table)
				break
			}
		}
		return s.Set(field, f.table[next].ID)
	}
	return fmt.Errorf("%w: unknown field %q", ErrInvalidSettings, field)
}

func (s *Settings) Toggle(flag string) error {
	switch flag {
	case FlagEnhanceTexture:
		s.EnhanceTexture = !s.EnhanceTexture
	case FlagFilmGrain:
		s.FilmGrain = !s.FilmGrain
	case FlagBeautyFilter:
		s.BeautyFilter = !s.BeautyFilter
	default:
		return fmt.Errorf("%w: unknown flag %q", ErrInvalidSettings, flag)
	}
	return nil
}

func (s Settings) Flag(flag string) (bool, error) {
	switch flag {
	case FlagEnhanceTexture:
		return s.EnhanceTexture, nil
	case FlagFilmGrain:
		return s.FilmGrain, nil
	case FlagBeautyFilter:
		return s.BeautyFilter, nil
	}
	return false, fmt.Errorf("%w: unknown flag %q", ErrInvalidSettings, flag)
}

// Apply parses "key=value" tokens (e.g. from a bot command) onto the
// settings. Unknown keys or values fail the whole call without partial
// writes.
func (s *Settings) Apply(args string) error {
	next := *s
	for _, tok := range strings.Fields(args) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return fmt.Errorf("%w: expected key=value, got %q", ErrInvalidSettings, tok)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case FlagEnhanceTexture, FlagFilmGrain, FlagBeautyFilter:
			on, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%w: %s expects a boolean", ErrInvalidSettings, key)
			}
			if cur, _ := next.Flag(key); cur != on {
				_ = next.Toggle(key)
			}
		case "custom_environment":
			next.CustomEnvironment = strings.ReplaceAll(value, "_", " ")
			next.Environment = EnvCustom
		default:
			if err := next.Set(key, value); err != nil {
				return err
			}
		}
	}
	*s = next
	return nil
}
