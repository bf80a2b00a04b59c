package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/mediagroup"
	"stylenow-studio/internal/session"
	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/telegram"
	"stylenow-studio/internal/workflow"
)

type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.InlineKeyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.InlineKeyboard) error
	AnswerCallback(callbackID, text string)
	SendPhoto(chatID int64, img media.ImageAsset, caption string) error
	SendDocument(chatID int64, img media.ImageAsset, filename string) error
	SendUploading(chatID int64)
	DownloadImage(ctx context.Context, fileID string) (media.ImageAsset, error)
}

// ControllerFactory builds a workflow controller whose transitions are
// reported to listener.
type ControllerFactory func(listener func(workflow.Snapshot)) (*workflow.Controller, error)

type Options struct {
	Messenger     Messenger
	NewController ControllerFactory
	SessionTTL    time.Duration
	Logger        *slog.Logger
}

type Handler struct {
	tg       Messenger
	sessions *session.Store
	logger   *slog.Logger
	albums   *mediagroup.Aggregator

	mu    sync.Mutex
	chats map[int64]*chatState
}

// chatState is bot-only UI state that does not belong in the workflow.
type chatState struct {
	awaitingSubject   bool
	awaitingCustomEnv bool
	menu              string
	keyboardMsgID     int
}

func New(opts Options) (*Handler, error) {
	if opts.Messenger == nil {
		return nil, errors.New("handlers: messenger is required")
	}
	if opts.NewController == nil {
		return nil, errors.New("handlers: controller factory is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Handler{
		tg:     opts.Messenger,
		logger: logger,
		chats:  make(map[int64]*chatState),
	}

	store, err := session.NewStore(session.Options{
		TTL:    opts.SessionTTL,
		Logger: logger,
		New: func(key string) (*workflow.Controller, error) {
			chatID, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("session key %q: %w", key, err)
			}
			return opts.NewController(func(s workflow.Snapshot) { h.deliver(chatID, s) })
		},
		OnEvicted: h.forgetChat,
	})
	if err != nil {
		return nil, err
	}
	h.sessions = store
	return h, nil
}

func (h *Handler) SetAlbumAggregator(ag *mediagroup.Aggregator) {
	h.albums = ag
}

func (h *Handler) Close() {
	h.sessions.Close()
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand():
		return h.handleCommand(ctx, chatID, msg)
	case len(msg.Photo) > 0:
		return h.handlePhoto(ctx, chatID, msg)
	case strings.TrimSpace(msg.Text) != "":
		return h.handleText(chatID, msg.Text)
	}
	return nil
}

// HandleAlbum adds the photos of a flushed album as garments. An album
// captioned like a subject photo contributes its first photo as the subject.
func (h *Handler) HandleAlbum(ctx context.Context, album mediagroup.Album) {
	fileIDs := album.FileIDs
	if len(fileIDs) > 0 && isSubjectCaption(album.Caption) {
		if err := h.addPhotos(ctx, album.ChatID, fileIDs[:1], true); err != nil {
			h.logger.Error("album processing failed", "chat_id", album.ChatID, "err", err)
			return
		}
		fileIDs = fileIDs[1:]
	}
	if len(fileIDs) == 0 {
		return
	}
	if err := h.addPhotos(ctx, album.ChatID, fileIDs, false); err != nil {
		h.logger.Error("album processing failed", "chat_id", album.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *telegram.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)
	case "new":
		ctrl, err := h.controller(chatID)
		if err != nil {
			return err
		}
		ctrl.Reset()
		h.updateChat(chatID, func(cs *chatState) { *cs = chatState{} })
		return h.tg.SendText(chatID, "🆕 New session. Send the subject photo with the caption \"model\".")
	case "subject":
		h.updateChat(chatID, func(cs *chatState) { cs.awaitingSubject = true })
		return h.tg.SendText(chatID, "📷 Send the subject photo now.")
	case "render":
		return h.render(ctx, chatID)
	case "settings":
		return h.handleSettingsCommand(chatID, args)
	case "auto":
		return h.handleAuto(chatID, args)
	case "remove":
		return h.handleRemove(chatID, args)
	case "status":
		return h.sendStatus(chatID)
	case "download":
		return h.sendDownload(chatID)
	default:
		return h.tg.SendText(chatID, "❓ Unknown command. See /help.")
	}
}

func (h *Handler) handleText(chatID int64, text string) error {
	cs := h.chat(chatID)
	if !cs.awaitingCustomEnv {
		return h.tg.SendText(chatID, "Send photos to dress the subject, or /help for commands.")
	}

	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}
	desc := strings.TrimSpace(text)
	if _, err := ctrl.UpdateSettings(func(s *studio.Settings) error {
		s.Environment = studio.EnvCustom
		s.CustomEnvironment = desc
		return nil
	}); err != nil {
		return h.tg.SendText(chatID, userMessage(err))
	}
	h.updateChat(chatID, func(cs *chatState) {
		cs.awaitingCustomEnv = false
		cs.menu = menuMain
	})
	return h.showSettings(chatID, 0)
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *telegram.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.albums != nil {
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		if h.albums.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		}) {
			return nil
		}
	}

	asSubject := isSubjectCaption(msg.Caption)
	if !asSubject {
		asSubject = h.chat(chatID).awaitingSubject
	}
	return h.addPhotos(ctx, chatID, []string{fileID}, asSubject)
}

func (h *Handler) addPhotos(ctx context.Context, chatID int64, fileIDs []string, asSubject bool) error {
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}

	images := make([]media.ImageAsset, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			img, err := h.tg.DownloadImage(egCtx, fileID)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	if asSubject {
		if err := ctrl.SetSubject(images[0]); err != nil {
			return h.tg.SendText(chatID, userMessage(err))
		}
		h.updateChat(chatID, func(cs *chatState) { cs.awaitingSubject = false })
		return h.tg.SendText(chatID, "👤 Subject set. Now send garment photos (one by one or as an album).")
	}

	if err := ctrl.AddGarments(images...); err != nil {
		return h.tg.SendText(chatID, userMessage(err))
	}

	snap := ctrl.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "👕 Added %d garment(s). Wardrobe: %d.", len(images), len(snap.Garments))
	switch {
	case !snap.HasSubject():
		b.WriteString("\nSend the subject photo with the caption \"model\" next.")
	case snap.AutoRender:
		b.WriteString("\n⏱ Auto-render will start shortly.")
	default:
		b.WriteString("\nSend /render when ready.")
	}
	return h.tg.SendText(chatID, b.String())
}

func (h *Handler) render(ctx context.Context, chatID int64) error {
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}

	err = ctrl.Invoke(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, studio.ErrInvalidInput):
		return h.tg.SendText(chatID, missingInputMessage(ctrl.Snapshot()))
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrNotPermitted),
		errors.Is(err, workflow.ErrClosed):
		return h.tg.SendText(chatID, userMessage(err))
	default:
		// generation failures and stale results are reported by deliver
		return nil
	}
}

func (h *Handler) handleAuto(chatID int64, args string) error {
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}

	on := !ctrl.Snapshot().AutoRender
	switch strings.ToLower(args) {
	case "on", "true", "1":
		on = true
	case "off", "false", "0":
		on = false
	}
	ctrl.SetAutoRender(on)

	if on {
		return h.tg.SendText(chatID, "⏱ Auto-render ON: the look re-renders shortly after the wardrobe changes.")
	}
	return h.tg.SendText(chatID, "⏱ Auto-render OFF.")
}

func (h *Handler) handleRemove(chatID int64, args string) error {
	n, err := strconv.Atoi(args)
	if err != nil {
		return h.tg.SendText(chatID, "Usage: /remove <n> (garment number, starting at 1).")
	}
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}
	if err := ctrl.RemoveGarment(n - 1); err != nil {
		return h.tg.SendText(chatID, userMessage(err))
	}
	return h.tg.SendText(chatID, fmt.Sprintf("🗑 Garment %d removed. Wardrobe: %d.", n, len(ctrl.Snapshot().Garments)))
}

func (h *Handler) sendStatus(chatID int64) error {
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}
	return h.tg.SendText(chatID, statusText(ctrl.Snapshot()))
}

func (h *Handler) sendDownload(chatID int64) error {
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}
	snap := ctrl.Snapshot()
	if !snap.HasRender() {
		return h.tg.SendText(chatID, "Nothing to download yet. Send /render first.")
	}
	return h.tg.SendDocument(chatID, snap.Generated, studio.RenderFileName(snap.Generated.Extension(), time.Now()))
}

// deliver pushes finished renders (manual or automatic) to the chat.
func (h *Handler) deliver(chatID int64, snap workflow.Snapshot) {
	var err error
	switch snap.State {
	case workflow.StateGenerating:
		h.tg.SendUploading(chatID)
	case workflow.StateComplete:
		err = h.tg.SendPhoto(chatID, snap.Generated, renderCaption(snap))
		if err == nil && snap.Analysis != nil {
			err = h.tg.SendText(chatID, analysisText(*snap.Analysis))
		}
	case workflow.StateFailed:
		err = h.tg.SendText(chatID, "❌ Render failed: "+snap.ErrMessage()+"\nAdjust the inputs and try /render again.")
	}
	if err != nil {
		h.logger.Error("deliver render failed", "chat_id", chatID, "state", snap.State.String(), "err", err)
	}
}

func (h *Handler) controller(chatID int64) (*workflow.Controller, error) {
	return h.sessions.GetOrCreate(strconv.FormatInt(chatID, 10))
}

func (h *Handler) chat(chatID int64) chatState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cs, ok := h.chats[chatID]; ok {
		return *cs
	}
	return chatState{}
}

func (h *Handler) updateChat(chatID int64, fn func(*chatState)) chatState {
	h.mu.Lock()
	defer h.mu.Unlock()
	cs, ok := h.chats[chatID]
	if !ok {
		cs = &chatState{}
		h.chats[chatID] = cs
	}
	fn(cs)
	return *cs
}

func (h *Handler) forgetChat(key string) {
	chatID, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return
	}
	h.mu.Lock()
	delete(h.chats, chatID)
	h.mu.Unlock()
}

func isSubjectCaption(caption string) bool {
	switch strings.ToLower(strings.TrimSpace(caption)) {
	case "model", "subject", "me":
		return true
	}
	return false
}
