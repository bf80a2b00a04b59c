package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/studio"
)

const analysisPrompt = `Act as a high-end fashion editor.
The FIRST image is the original person. The SECOND image is the generated outfit render.
Analyze the generated outfit image compared to the original person.

Provide a JSON response:
{
  "critique": "Professional critique of the fit, styling, and visual impact.",
  "rating": 8,
  "matchScore": 85,
  "suggestions": ["suggestion 1", "suggestion 2", "suggestion 3"]
}

Rules: rating is 0-10, matchScore is 0-100, suggestions has at most 3 short items.`

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client

	ImageModel string
	TextModel  string
	// ImageSize overrides the request's output size ("1K", "2K", "4K").
	ImageSize string

	// Models overrides the genai transport; when nil one is built from APIKey.
	Models Models
	Logger *slog.Logger
}

// Client talks to the image model (renders) and the text model (critiques).
type Client struct {
	models     Models
	imageModel string
	textModel  string
	imageSize  string
	logger     *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = DefaultTextModel
	}

	models := opts.Models
	if models == nil && strings.TrimSpace(opts.APIKey) != "" {
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     opts.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: opts.HTTPClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    strings.TrimSpace(opts.BaseURL),
				APIVersion: strings.TrimSpace(opts.APIVersion),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		models = gc.Models
	}

	return &Client{
		models:     models,
		imageModel: imageModel,
		textModel:  textModel,
		imageSize:  strings.TrimSpace(opts.ImageSize),
		logger:     logger,
	}, nil
}

// Generate issues exactly one image-model call and returns the first image
// found across the returned candidates. Every failure wraps ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, req studio.GenerationRequest) (media.ImageAsset, error) {
	if c.models == nil {
		return media.ImageAsset{}, fmt.Errorf("%w: %w", ErrGenerationFailed, ErrNotConfigured)
	}

	parts := make([]*genai.Part, 0, len(req.Garments)+2)
	parts = append(parts, genai.NewPartFromBytes(req.Subject.Bytes(), req.Subject.MimeType()))
	for _, g := range req.Garments {
		parts = append(parts, genai.NewPartFromBytes(g.Bytes(), g.MimeType()))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	imageSize := req.ImageSize
	if c.imageSize != "" {
		imageSize = c.imageSize
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: req.AspectRatio,
			ImageSize:   imageSize,
		},
	}

	c.logger.Info("render requested",
		"model", c.imageModel,
		"garments", len(req.Garments),
		"aspect_ratio", req.AspectRatio,
		"image_size", imageSize,
	)

	resp, err := c.models.GenerateContent(ctx, c.imageModel, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, config)
	if err != nil {
		return media.ImageAsset{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	img, err := firstImage(resp)
	if err != nil {
		return media.ImageAsset{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return img, nil
}

// Analyze asks the text model for a structured critique. It never fails:
// any problem yields studio.UnavailableAnalysis.
func (c *Client) Analyze(ctx context.Context, generated, original media.ImageAsset) studio.AnalysisResult {
	result, err := c.analyze(ctx, generated, original)
	if err != nil {
		c.logger.Warn("analysis degraded", "model", c.textModel, "err", err)
		return studio.UnavailableAnalysis()
	}
	return result
}

func (c *Client) analyze(ctx context.Context, generated, original media.ImageAsset) (studio.AnalysisResult, error) {
	if c.models == nil {
		return studio.AnalysisResult{}, ErrNotConfigured
	}
	if generated.IsZero() || original.IsZero() {
		return studio.AnalysisResult{}, errors.New("analysis needs both images")
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(original.Bytes(), original.MimeType()),
		genai.NewPartFromBytes(generated.Bytes(), generated.MimeType()),
		genai.NewPartFromText(analysisPrompt),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema(),
	}

	resp, err := c.models.GenerateContent(ctx, c.textModel, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, config)
	if err != nil {
		return studio.AnalysisResult{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return studio.AnalysisResult{}, errors.New("empty response")
	}

	return parseAnalysis(resp.Text())
}

func analysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"critique":   {Type: genai.TypeString},
			"rating":     {Type: genai.TypeNumber},
			"matchScore": {Type: genai.TypeNumber},
			"suggestions": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required:         []string{"critique", "rating", "matchScore", "suggestions"},
		PropertyOrdering: []string{"critique", "rating", "matchScore", "suggestions"},
	}
}

func parseAnalysis(text string) (studio.AnalysisResult, error) {
	text = stripCodeFence(text)
	if text == "" {
		return studio.AnalysisResult{}, errors.New("no analysis returned")
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return studio.AnalysisResult{}, fmt.Errorf("decode analysis: %w", err)
	}

	var missing []string
	if payload.Critique == nil {
		missing = append(missing, "critique")
	}
	if payload.Rating == nil {
		missing = append(missing, "rating")
	}
	if payload.MatchScore == nil {
		missing = append(missing, "matchScore")
	}
	if payload.Suggestions == nil {
		missing = append(missing, "suggestions")
	}
	if len(missing) > 0 {
		return studio.AnalysisResult{}, fmt.Errorf("analysis missing fields: %s", strings.Join(missing, ", "))
	}

	return studio.NewAnalysis(
		strings.TrimSpace(*payload.Critique),
		*payload.Rating,
		*payload.MatchScore,
		*payload.Suggestions,
	), nil
}

func firstImage(resp *genai.GenerateContentResponse) (media.ImageAsset, error) {
	if resp == nil {
		return media.ImageAsset{}, ErrNoImageProduced
	}

	var reasons []string
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return media.New(part.InlineData.Data, mimeType)
			}
		}
		if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
			reasons = append(reasons, string(cand.FinishReason))
		}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reasons = append(reasons, "prompt blocked: "+string(resp.PromptFeedback.BlockReason))
	}
	if len(reasons) > 0 {
		return media.ImageAsset{}, fmt.Errorf("%w (finish: %s)", ErrNoImageProduced, strings.Join(reasons, ", "))
	}
	return media.ImageAsset{}, ErrNoImageProduced
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
