package handlers

import (
	"errors"
	"fmt"
	"strings"

	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/workflow"
)

const helpText = "👗 StyleNow Studio\n\n" +
	"1. Send a photo of the person with the caption \"model\" (or use /subject first).\n" +
	"2. Send garment photos, one by one or as an album (an album captioned \"model\" starts with the subject).\n" +
	"3. Send /render to get a studio shot plus a stylist critique.\n\n" +
	"Commands:\n" +
	"/new - start over (settings are kept)\n" +
	"/subject - the next photo is the subject\n" +
	"/render - render the look\n" +
	"/settings [key=value ...] - camera, pose, light and scene\n" +
	"/auto [on|off] - re-render automatically when the wardrobe changes\n" +
	"/remove <n> - drop garment n\n" +
	"/download - get the last render as a file\n" +
	"/status - show the session"

func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workflow.ErrBusy):
		return "⏳ A render is already in progress. Please wait for it to finish."
	case errors.Is(err, workflow.ErrNotPermitted):
		return "🔑 Rendering is unavailable: the studio has no Gemini API key configured."
	case errors.Is(err, workflow.ErrClosed):
		return "⌛ This session has expired. Send /new to start again."
	case errors.Is(err, studio.ErrInvalidSettings):
		return "⚠️ " + err.Error()
	case errors.Is(err, studio.ErrInvalidInput):
		return "⚠️ " + err.Error()
	default:
		return "❌ Something went wrong. Please try again."
	}
}

func missingInputMessage(snap workflow.Snapshot) string {
	switch {
	case !snap.HasSubject() && len(snap.Garments) == 0:
		return "📷 Send the subject photo (caption \"model\") and at least one garment first."
	case !snap.HasSubject():
		return "📷 Send the subject photo first (caption \"model\" or use /subject)."
	case len(snap.Garments) == 0:
		return "👕 Send at least one garment photo first."
	default:
		return "⚠️ The studio settings are incomplete. Check /settings."
	}
}

func statusText(snap workflow.Snapshot) string {
	var b strings.Builder
	b.WriteString("📋 Session\n")
	fmt.Fprintf(&b, "State: %s\n", snap.State)
	fmt.Fprintf(&b, "Subject: %s\n", yesNo(snap.HasSubject()))
	fmt.Fprintf(&b, "Garments: %d\n", len(snap.Garments))
	fmt.Fprintf(&b, "Auto-render: %s\n", onOff(snap.AutoRender))
	fmt.Fprintf(&b, "Render: %s\n", yesNo(snap.HasRender()))
	if snap.Permitted {
		b.WriteString("Gemini: connected ✅\n")
	} else {
		b.WriteString("Gemini: no API key ❌\n")
	}
	if snap.Err != nil {
		fmt.Fprintf(&b, "Last error: %s\n", snap.ErrMessage())
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(snap.Settings.Overlay(), "\n"))
	return b.String()
}

func renderCaption(snap workflow.Snapshot) string {
	caption := "✅ Render ready\n" + strings.Join(snap.Settings.Overlay(), " · ")
	if a := snap.Analysis; a != nil && !a.Unavailable() {
		caption += fmt.Sprintf("\n⭐ %d/%d · Match %d%%", a.Rating, studio.MaxRating, a.MatchScore)
	}
	return caption
}

func analysisText(a studio.AnalysisResult) string {
	if a.Unavailable() {
		return "🧐 " + a.Critique
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧐 Stylist notes (%d/%d, match %d%%)\n\n", a.Rating, studio.MaxRating, a.MatchScore)
	b.WriteString(a.Critique)
	if len(a.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range a.Suggestions {
			b.WriteString("\n• " + s)
		}
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
