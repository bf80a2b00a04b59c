package studio

import "math"

const (
	MaxRating     = 10
	MaxMatchScore = 100

	unavailableCritique = "Analysis currently unavailable."
)

type AnalysisResult struct {
	Critique    string   `json:"critique"`
	Rating      int      `json:"rating"`
	MatchScore  int      `json:"matchScore"`
	Suggestions []string `json:"suggestions"`
}

// UnavailableAnalysis is substituted whenever the critique could not be produced.
func UnavailableAnalysis() AnalysisResult {
	return AnalysisResult{
		Critique:    unavailableCritique,
		Rating:      0,
		MatchScore:  0,
		Suggestions: []string{},
	}
}

func (r AnalysisResult) Unavailable() bool {
	return r.Critique == unavailableCritique && r.Rating == 0 && r.MatchScore == 0 && len(r.Suggestions) == 0
}

// NewAnalysis clamps rating into 0..MaxRating and matchScore into
// 0..MaxMatchScore. A nil suggestion list becomes empty.
func NewAnalysis(critique string, rating, matchScore float64, suggestions []string) AnalysisResult {
	if suggestions == nil {
		suggestions = []string{}
	}
	return AnalysisResult{
		Critique:    critique,
		Rating:      clampRound(rating, MaxRating),
		MatchScore:  clampRound(matchScore, MaxMatchScore),
		Suggestions: suggestions,
	}
}

func clampRound(v float64, upper int) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= float64(upper) {
		return upper
	}
	return int(v + 0.5)
}
