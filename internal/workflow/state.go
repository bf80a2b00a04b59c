package workflow

import (
	"time"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/studio"
)

type State int

const (
	StateIdle State = iota
	StateGenerating
	StateAnalyzing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateAnalyzing:
		return "analyzing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Busy() bool {
	return s == StateGenerating || s == StateAnalyzing
}

// Snapshot is a consistent copy of a session. Zero-valued images mean "none".
type Snapshot struct {
	State      State
	Subject    media.ImageAsset
	Garments   []media.ImageAsset
	Settings   studio.Settings
	Generated  media.ImageAsset
	Analysis   *studio.AnalysisResult
	Err        error
	AutoRender bool
	Permitted  bool
	UpdatedAt  time.Time
}

func (s Snapshot) HasSubject() bool { return !s.Subject.IsZero() }

func (s Snapshot) HasRender() bool { return !s.Generated.IsZero() }

// Ready reports whether an invocation would pass its input checks.
func (s Snapshot) Ready() bool {
	return s.HasSubject() && len(s.Garments) > 0 && s.Settings.Validate() == nil
}

func (s Snapshot) ErrMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
