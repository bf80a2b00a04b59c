package studio

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSettings = errors.New("invalid studio settings")

// Variant is one legal value of a settings field: a stable ID for logic and
// storage plus the label that is shown in UIs and substituted into prompts.
type Variant struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type AspectRatio int

const (
	AspectPortrait AspectRatio = iota
	AspectSquare
	AspectLandscape
	AspectStory
)

var aspectRatios = []Variant{
	{ID: "3:4", Label: "3:4"},
	{ID: "1:1", Label: "1:1"},
	{ID: "16:9", Label: "16:9"},
	{ID: "9:16", Label: "9:16"},
}

type FocalLength int

const (
	FocalWide24 FocalLength = iota
	FocalStreet35
	FocalNormal50
	FocalPortrait85
	FocalTele135
)

var focalLengths = []Variant{
	{ID: "wide_24", Label: "24mm (Wide/Dynamic)"},
	{ID: "street_35", Label: "35mm (Street/Lifestyle)"},
	{ID: "normal_50", Label: "50mm (Natural/Human Eye)"},
	{ID: "portrait_85", Label: "85mm (Flattering Portrait)"},
	{ID: "tele_135", Label: "135mm (Compressed/Runway)"},
}

type DepthOfField int

const (
	DepthDeep DepthOfField = iota
	DepthBalanced
	DepthShallow
)

var depthsOfField = []Variant{
	{ID: "deep", Label: "f/11 (Deep Focus - All Clear)"},
	{ID: "balanced", Label: "f/5.6 (Balanced)"},
	{ID: "shallow", Label: "f/1.8 (Shallow - Bokeh Background)"},
}

type Pose int

const (
	PoseClassic Pose = iota
	PoseWalking
	PoseSitting
	PoseLeaning
	PoseDynamic
	PoseCandid
	PoseDetail
)

var poses = []Variant{
	{ID: "classic", Label: "Classic Model Stance"},
	{ID: "walking", Label: "Walking / Runway Strut"},
	{ID: "sitting", Label: "Sitting / Relaxed"},
	{ID: "leaning", Label: "Leaning against wall/prop"},
	{ID: "dynamic", Label: "Dynamic / In Motion"},
	{ID: "candid", Label: "Candid / Unposed"},
	{ID: "detail", Label: "Detail (Hands/Accessories)"},
}

type Lighting int

const (
	LightingSoftbox Lighting = iota
	LightingHard
	LightingNatural
	LightingGolden
	LightingRembrandt
	LightingNeon
	LightingRim
	LightingFlash
)

var lightings = []Variant{
	{ID: "softbox", Label: "Studio Softbox (Even, Clean)"},
	{ID: "hard", Label: "Hard Light (High Contrast)"},
	{ID: "natural", Label: "Natural Window Light"},
	{ID: "golden", Label: "Golden Hour (Warm Sun)"},
	{ID: "rembrandt", Label: "Rembrandt (Dramatic)"},
	{ID: "neon", Label: "Neon / Cyberpunk"},
	{ID: "rim", Label: "Rim Light / Backlit"},
	{ID: "flash", Label: "Direct Flash (Paparazzi)"},
}

type Environment int

const (
	EnvStudioGrey Environment = iota
	EnvStudioWhite
	EnvStudioBlack
	EnvLuxury
	EnvStreet
	EnvNature
	EnvBeach
	EnvRunway
	EnvMirror
	EnvCustom
)

var environments = []Variant{
	{ID: "studio_grey", Label: "Studio Grey Seamless"},
	{ID: "studio_white", Label: "Infinity White Cyc"},
	{ID: "studio_black", Label: "Pitch Black Void"},
	{ID: "luxury", Label: "Luxury Penthouse"},
	{ID: "street", Label: "Urban Street / Concrete"},
	{ID: "nature", Label: "Botanic Garden"},
	{ID: "beach", Label: "Sunset Beach"},
	{ID: "runway", Label: "Fashion Runway"},
	{ID: "mirror", Label: "Studio with Mirror Floor"},
	{ID: "custom", Label: "Custom Location..."},
}

type ColorGrade int

const (
	GradeTrue ColorGrade = iota
	GradeBW
	GradeVintage
	GradeCinematic
	GradeFashion
	GradeMuted
)

var colorGrades = []Variant{
	{ID: "true", Label: "True to Life"},
	{ID: "bw", Label: "Black & White (High Contrast)"},
	{ID: "vintage", Label: "Vintage / Film Look"},
	{ID: "cinematic", Label: "Cinematic Teal/Orange"},
	{ID: "fashion", Label: "High Fashion / Vibrant"},
	{ID: "muted", Label: "Muted / Matte / Pastel"},
}

func (v AspectRatio) ID() string { return variantAt(aspectRatios, int(v)).ID }
func (v AspectRatio) Label() string { return variantAt(aspectRatios, int(v)).Label }
func (v AspectRatio) Valid() bool { return inRange(aspectRatios, int(v)) }
func (v FocalLength) ID() string { return variantAt(focalLengths, int(v)).ID }
func (v FocalLength) Label() string { return variantAt(focalLengths, int(v)).Label }
func (v FocalLength) Valid() bool { return inRange(focalLengths, int(v)) }
func (v DepthOfField) ID() string { return variantAt(depthsOfField, int(v)).ID }
func (v DepthOfField) Label() string { return variantAt(depthsOfField, int(v)).Label }
func (v DepthOfField) Valid() bool { return inRange(depthsOfField, int(v)) }
func (v Pose) ID() string { return variantAt(poses, int(v)).ID }
func (v Pose) Label() string { return variantAt(poses, int(v)).Label }
func (v Pose) Valid() bool { return inRange(poses, int(v)) }
func (v Lighting) ID() string { return variantAt(lightings, int(v)).ID }
func (v Lighting) Label() string { return variantAt(lightings, int(v)).Label }
func (v Lighting) Valid() bool { return inRange(lightings, int(v)) }
func (v Environment) ID() string { return variantAt(environments, int(v)).ID }
func (v Environment) Label() string { return variantAt(environments, int(v)).Label }
func (v Environment) Valid() bool { return inRange(environments, int(v)) }
func (v ColorGrade) ID() string { return variantAt(colorGrades, int(v)).ID }
func (v ColorGrade) Label() string { return variantAt(colorGrades, int(v)).Label }
func (v ColorGrade) Valid() bool { return inRange(colorGrades, int(v)) }

func ParseAspectRatio(id string) (AspectRatio, error) {
	return parseVariant[AspectRatio](aspectRatios, FieldAspectRatio, id)
}

func ParseFocalLength(id string) (FocalLength, error) {
	return parseVariant[FocalLength](focalLengths, FieldFocalLength, id)
}

func ParseDepthOfField(id string) (DepthOfField, error) {
	return parseVariant[DepthOfField](depthsOfField, FieldDepthOfField, id)
}

func ParsePose(id string) (Pose, error) {
	return parseVariant[Pose](poses, FieldPose, id)
}

func ParseLighting(id string) (Lighting, error) {
	return parseVariant[Lighting](lightings, FieldLighting, id)
}

func ParseEnvironment(id string) (Environment, error) {
	return parseVariant[Environment](environments, FieldEnvironment, id)
}

func ParseColorGrade(id string) (ColorGrade, error) {
	return parseVariant[ColorGrade](colorGrades, FieldColorGrade, id)
}

// Settings is the full set of photographic parameters for one render.
// CustomEnvironment is only read when Environment is EnvCustom.
type Settings struct {
	AspectRatio       AspectRatio
	FocalLength       FocalLength
	DepthOfField      DepthOfField
	Pose              Pose
	Lighting          Lighting
	Environment       Environment
	CustomEnvironment string
	ColorGrade        ColorGrade

	EnhanceTexture bool
	FilmGrain      bool
	BeautyFilter   bool
}

func DefaultSettings() Settings {
	return Settings{
		AspectRatio:    AspectPortrait,
		FocalLength:    FocalPortrait85,
		DepthOfField:   DepthBalanced,
		Pose:           PoseClassic,
		Lighting:       LightingSoftbox,
		Environment:    EnvStudioGrey,
		ColorGrade:     GradeTrue,
		EnhanceTexture: true,
		FilmGrain:      false,
		BeautyFilter:   true,
	}
}

// Validate rejects out-of-range enum values and a custom environment
// without a description.
func (s Settings) Validate() error {
	checks := []struct {
		field string
		ok    bool
	}{
		{FieldAspectRatio, s.AspectRatio.Valid()},
		{FieldFocalLength, s.FocalLength.Valid()},
		{FieldDepthOfField, s.DepthOfField.Valid()},
		{FieldPose, s.Pose.Valid()},
		{FieldLighting, s.Lighting.Valid()},
		{FieldEnvironment, s.Environment.Valid()},
		{FieldColorGrade, s.ColorGrade.Valid()},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("%w: %s out of range", ErrInvalidSettings, c.field)
		}
	}
	if s.Environment == EnvCustom && strings.TrimSpace(s.CustomEnvironment) == "" {
		return fmt.Errorf("%w: custom environment needs a description", ErrInvalidSettings)
	}
	return nil
}

// EnvironmentDescription is the text substituted into the prompt for the
// scene: the custom description verbatim for EnvCustom, the label otherwise.
func (s Settings) EnvironmentDescription() string {
	if s.Environment == EnvCustom {
		return strings.TrimSpace(s.CustomEnvironment)
	}
	return s.Environment.Label()
}

// Overlay returns the short caption lines shown on top of a finished render.
func (s Settings) Overlay() []string {
	lighting := strings.TrimSpace(strings.SplitN(s.Lighting.Label(), "(", 2)[0])
	return []string{
		"LENS: " + firstWord(s.FocalLength.Label()),
		"APERTURE: " + firstWord(s.DepthOfField.Label()),
		"GRADE: " + s.ColorGrade.Label(),
		"LIGHT: " + lighting,
	}
}

func variantAt(table []Variant, idx int) Variant {
	if !inRange(table, idx) {
		return Variant{}
	}
	return table[idx]
}

func inRange(table []Variant, idx int) bool {
	return idx >= 0 && idx < len(table)
}

func parseVariant[T ~int](table []Variant, field, id string) (T, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for i, v := range table {
		if v.ID == id {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidSettings, field, id)
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
