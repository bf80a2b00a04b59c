package handlers

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/mediagroup"
	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/telegram"
	"stylenow-studio/internal/workflow"
)

// --- Fakes ---

type sentPhoto struct {
	img     media.ImageAsset
	caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	photos    []sentPhoto
	docs      []string
	keyboards []telegram.InlineKeyboard
	edits     int
	answers   []string
}

func (f *fakeMessenger) SendText(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(chatID int64, text string, kb telegram.InlineKeyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return 100 + len(f.keyboards), nil
}

func (f *fakeMessenger) EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.InlineKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeMessenger) AnswerCallback(callbackID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
}

func (f *fakeMessenger) SendPhoto(chatID int64, img media.ImageAsset, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{img: img, caption: caption})
	return nil
}

func (f *fakeMessenger) SendDocument(chatID int64, img media.ImageAsset, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, filename)
	return nil
}

func (f *fakeMessenger) SendUploading(chatID int64) {}

func (f *fakeMessenger) DownloadImage(ctx context.Context, fileID string) (media.ImageAsset, error) {
	return media.New([]byte(fileID), "image/jpeg")
}

func (f *fakeMessenger) LastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeMessenger) AllText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.texts, "\n---\n")
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req studio.GenerationRequest) (media.ImageAsset, error) {
	return media.New([]byte("render"), "image/png")
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, generated, original media.ImageAsset) studio.AnalysisResult {
	return studio.NewAnalysis("Sharp tailoring, strong silhouette.", 8, 85, []string{"try boots"})
}

func newHandler(t *testing.T, permitted bool) (*Handler, *fakeMessenger) {
	t.Helper()
	fm := &fakeMessenger{}
	h, err := New(Options{
		Messenger: fm,
		NewController: func(listener func(workflow.Snapshot)) (*workflow.Controller, error) {
			return workflow.New(workflow.Options{
				Generator: stubGenerator{},
				Analyzer:  stubAnalyzer{},
				Permitted: func() bool { return permitted },
				Listener:  listener,
			})
		},
	})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h, fm
}

const chatID int64 = 42

func command(text string) telegram.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func photo(fileID, caption string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID},
		Caption:   caption,
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "_thumb", Width: 90},
			{FileID: fileID, Width: 1280},
		},
	}}
}

func text(body string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID},
		Text:      body,
	}}
}

func callback(data string) telegram.Update {
	return telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func snapshot(t *testing.T, h *Handler) workflow.Snapshot {
	t.Helper()
	ctrl, err := h.controller(chatID)
	require.NoError(t, err)
	return ctrl.Snapshot()
}

// --- Tests ---

func TestPhotoRouting(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("coat", "")))
	assert.Contains(t, fm.LastText(), "subject photo")

	require.NoError(t, h.HandleUpdate(ctx, photo("person", "Model")))
	assert.Contains(t, fm.LastText(), "Subject set")

	require.NoError(t, h.HandleUpdate(ctx, command("/subject")))
	require.NoError(t, h.HandleUpdate(ctx, photo("person2", "")))

	snap := snapshot(t, h)
	assert.Equal(t, []byte("person2"), snap.Subject.Bytes())
	require.Len(t, snap.Garments, 1)
	assert.Equal(t, []byte("coat"), snap.Garments[0].Bytes(), "largest photo size is used")

	require.NoError(t, h.HandleUpdate(ctx, photo("hat", "")))
	assert.Len(t, snapshot(t, h).Garments, 2)
}

func TestRenderDeliversPhotoAndCritique(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("person", "model")))
	require.NoError(t, h.HandleUpdate(ctx, photo("coat", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/render")))

	require.Len(t, fm.photos, 1)
	assert.Equal(t, []byte("render"), fm.photos[0].img.Bytes())
	assert.Contains(t, fm.photos[0].caption, "LENS: 85mm")
	assert.Contains(t, fm.photos[0].caption, "8/10")
	assert.Contains(t, fm.LastText(), "Sharp tailoring")
	assert.Contains(t, fm.LastText(), "• try boots")

	require.NoError(t, h.HandleUpdate(ctx, command("/download")))
	require.Len(t, fm.docs, 1)
	assert.True(t, strings.HasPrefix(fm.docs[0], "StyleNow_Render_"))
	assert.True(t, strings.HasSuffix(fm.docs[0], ".png"))
}

func TestRenderReportsMissingInputs(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/render")))
	assert.Contains(t, fm.LastText(), "at least one garment")

	require.NoError(t, h.HandleUpdate(ctx, photo("person", "model")))
	require.NoError(t, h.HandleUpdate(ctx, command("/render")))
	assert.Contains(t, fm.LastText(), "garment photo first")
	assert.Empty(t, fm.photos)
}

func TestRenderNotPermitted(t *testing.T) {
	h, fm := newHandler(t, false)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("person", "model")))
	require.NoError(t, h.HandleUpdate(ctx, photo("coat", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/render")))
	assert.Contains(t, fm.LastText(), "no Gemini API key")
	assert.Empty(t, fm.photos)

	require.NoError(t, h.HandleUpdate(ctx, command("/status")))
	assert.Contains(t, fm.LastText(), "no API key")
}

func TestRemoveCommand(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()
	require.NoError(t, h.HandleUpdate(ctx, photo("coat", "")))
	require.NoError(t, h.HandleUpdate(ctx, photo("hat", "")))

	require.NoError(t, h.HandleUpdate(ctx, command("/remove 5")))
	assert.Contains(t, fm.LastText(), "does not exist")
	require.NoError(t, h.HandleUpdate(ctx, command("/remove x")))
	assert.Contains(t, fm.LastText(), "Usage")

	require.NoError(t, h.HandleUpdate(ctx, command("/remove 1")))
	garments := snapshot(t, h).Garments
	require.Len(t, garments, 1)
	assert.Equal(t, []byte("hat"), garments[0].Bytes())
}

func TestNewCommandResetsSession(t *testing.T) {
	h, _ := newHandler(t, true)
	ctx := context.Background()
	require.NoError(t, h.HandleUpdate(ctx, photo("person", "model")))
	require.NoError(t, h.HandleUpdate(ctx, photo("coat", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/settings pose=sitting")))

	require.NoError(t, h.HandleUpdate(ctx, command("/new")))
	snap := snapshot(t, h)
	assert.False(t, snap.HasSubject())
	assert.Empty(t, snap.Garments)
	assert.Equal(t, studio.PoseSitting, snap.Settings.Pose)
}

func TestSettingsCommandArgs(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/settings pose=sitting film_grain=true")))
	snap := snapshot(t, h)
	assert.Equal(t, studio.PoseSitting, snap.Settings.Pose)
	assert.True(t, snap.Settings.FilmGrain)
	require.NotEmpty(t, fm.keyboards)

	require.NoError(t, h.HandleUpdate(ctx, command("/settings lighting=laser")))
	assert.Contains(t, fm.LastText(), "invalid studio settings")
	assert.Equal(t, studio.LightingSoftbox, snapshot(t, h).Settings.Lighting)
}

func TestSettingsKeyboardFlow(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/settings")))
	require.NoError(t, h.HandleUpdate(ctx, callback("st:menu:pose")))
	assert.Contains(t, fm.LastText(), "Choose pose")

	require.NoError(t, h.HandleUpdate(ctx, callback("st:set:pose:1")))
	assert.Equal(t, studio.PoseWalking, snapshot(t, h).Settings.Pose)

	require.NoError(t, h.HandleUpdate(ctx, callback("st:set:aspect_ratio:3")))
	assert.Equal(t, studio.AspectStory, snapshot(t, h).Settings.AspectRatio)

	require.NoError(t, h.HandleUpdate(ctx, callback("st:flag:film_grain")))
	assert.True(t, snapshot(t, h).Settings.FilmGrain)

	require.NoError(t, h.HandleUpdate(ctx, callback("st:auto")))
	assert.True(t, snapshot(t, h).AutoRender)

	require.NoError(t, h.HandleUpdate(ctx, callback("st:set:pose:99")))
	assert.Contains(t, fm.answers, "Unknown option")

	require.NoError(t, h.HandleUpdate(ctx, callback("st:set:environment:9")))
	assert.Equal(t, studio.EnvStudioGrey, snapshot(t, h).Settings.Environment, "custom waits for a description")

	require.NoError(t, h.HandleUpdate(ctx, text("a rooftop at dusk")))
	snap := snapshot(t, h)
	assert.Equal(t, studio.EnvCustom, snap.Settings.Environment)
	assert.Equal(t, "a rooftop at dusk", snap.Settings.EnvironmentDescription())
	assert.Contains(t, fm.LastText(), "Environment: a rooftop at dusk")
}

func TestCallbackIgnoresForeignData(t *testing.T) {
	h, fm := newHandler(t, true)
	require.NoError(t, h.HandleUpdate(context.Background(), callback("pv:1:menu")))
	assert.Empty(t, fm.answers)
}

func TestAlbumAddsGarments(t *testing.T) {
	h, _ := newHandler(t, true)
	h.HandleAlbum(context.Background(), mediagroup.Album{ChatID: chatID, FileIDs: []string{"coat", "hat", "boots"}})

	garments := snapshot(t, h).Garments
	require.Len(t, garments, 3)
	assert.Equal(t, []byte("coat"), garments[0].Bytes())
	assert.Equal(t, []byte("boots"), garments[2].Bytes())
}

func TestAlbumWithSubjectCaption(t *testing.T) {
	h, _ := newHandler(t, true)
	h.HandleAlbum(context.Background(), mediagroup.Album{
		ChatID:  chatID,
		Caption: "model",
		FileIDs: []string{"person", "coat", "hat"},
	})

	snap := snapshot(t, h)
	assert.Equal(t, []byte("person"), snap.Subject.Bytes())
	require.Len(t, snap.Garments, 2)
	assert.Equal(t, []byte("coat"), snap.Garments[0].Bytes())
}

func TestExpiredSessionDropsChatState(t *testing.T) {
	h, _ := newHandler(t, true)
	ctx := context.Background()
	require.NoError(t, h.HandleUpdate(ctx, command("/subject")))
	require.NoError(t, h.HandleUpdate(ctx, command("/status")))

	h.mu.Lock()
	_, ok := h.chats[chatID]
	h.mu.Unlock()
	require.True(t, ok)

	require.True(t, h.sessions.Delete("42"))

	h.mu.Lock()
	_, ok = h.chats[chatID]
	h.mu.Unlock()
	assert.False(t, ok)
	assert.False(t, h.chat(chatID).awaitingSubject)
}

func TestUnknownCommandAndPlainText(t *testing.T) {
	h, fm := newHandler(t, true)
	ctx := context.Background()
	require.NoError(t, h.HandleUpdate(ctx, command("/dance")))
	assert.Contains(t, fm.LastText(), "Unknown command")
	require.NoError(t, h.HandleUpdate(ctx, text("hello")))
	assert.Contains(t, fm.LastText(), "/help")
}
