package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/telegram"
	"stylenow-studio/internal/workflow"
)

const (
	settingsCallbackPrefix = "st"
	menuMain               = "main"
)

func (h *Handler) handleSettingsCommand(chatID int64, args string) error {
	if args != "" {
		ctrl, err := h.controller(chatID)
		if err != nil {
			return err
		}
		if _, err := ctrl.UpdateSettings(func(s *studio.Settings) error { return s.Apply(args) }); err != nil {
			return h.tg.SendText(chatID, userMessage(err))
		}
	}
	h.updateChat(chatID, func(cs *chatState) {
		cs.menu = menuMain
		cs.awaitingCustomEnv = false
	})
	return h.showSettings(chatID, 0)
}

func (h *Handler) handleCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, settingsCallbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return nil
	}
	action, args := parts[1], parts[2:]
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID

	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}

	answer := "OK"
	switch action {
	case "menu":
		menu := menuMain
		if len(args) >= 1 && fieldOptions(args[0]) != nil {
			menu = args[0]
		}
		h.updateChat(chatID, func(cs *chatState) { cs.menu = menu })
	case "set":
		if len(args) < 2 {
			break
		}
		answer = h.applyChoice(chatID, ctrl, args[0], args[1])
	case "flag":
		if len(args) < 1 {
			break
		}
		if _, err := ctrl.UpdateSettings(func(s *studio.Settings) error { return s.Toggle(args[0]) }); err != nil {
			answer = "Unknown option"
		}
	case "auto":
		ctrl.SetAutoRender(!ctrl.Snapshot().AutoRender)
	case "render":
		h.tg.AnswerCallback(q.ID, "Rendering…")
		h.updateChat(chatID, func(cs *chatState) { cs.menu = menuMain })
		if err := h.showSettings(chatID, msgID); err != nil {
			return err
		}
		return h.render(ctx, chatID)
	case "close":
		h.updateChat(chatID, func(cs *chatState) {
			cs.menu = menuMain
			cs.awaitingCustomEnv = false
		})
		h.tg.AnswerCallback(q.ID, "Saved")
		return h.tg.EditTextWithKeyboard(chatID, msgID, settingsSummary(ctrl.Snapshot().Settings), tgbotapi.NewInlineKeyboardMarkup())
	}

	h.tg.AnswerCallback(q.ID, answer)
	return h.showSettings(chatID, msgID)
}

// applyChoice handles a tap on one option of a field menu. Picking the
// custom environment switches the chat into "waiting for a description".
func (h *Handler) applyChoice(chatID int64, ctrl *workflow.Controller, field, rawIdx string) string {
	opts := fieldOptions(field)
	idx, err := strconv.Atoi(rawIdx)
	if opts == nil || err != nil || idx < 0 || idx >= len(opts.Options) {
		return "Unknown option"
	}
	id := opts.Options[idx].ID

	if field == studio.FieldEnvironment && id == studio.EnvCustom.ID() {
		h.updateChat(chatID, func(cs *chatState) {
			cs.awaitingCustomEnv = true
			cs.menu = menuMain
		})
		_ = h.tg.SendText(chatID, "📍 Describe the location in one message (e.g. \"a rooftop at dusk\").")
		return "Waiting for a description"
	}

	if _, err := ctrl.UpdateSettings(func(s *studio.Settings) error { return s.Set(field, id) }); err != nil {
		return "Unknown option"
	}
	h.updateChat(chatID, func(cs *chatState) { cs.menu = menuMain })
	return opts.Options[idx].Label
}

func (h *Handler) showSettings(chatID int64, messageID int) error {
	ctrl, err := h.controller(chatID)
	if err != nil {
		return err
	}
	snap := ctrl.Snapshot()
	cs := h.chat(chatID)
	if messageID == 0 {
		messageID = cs.keyboardMsgID
	}

	text := settingsText(snap, cs)
	kb := settingsKeyboard(snap, cs)

	if messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, messageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.updateChat(chatID, func(cs *chatState) { cs.keyboardMsgID = msgID })
	return nil
}

func settingsText(snap workflow.Snapshot, cs chatState) string {
	var b strings.Builder
	b.WriteString("🎛 Studio settings\n\n")
	b.WriteString(settingsSummary(snap.Settings))
	b.WriteString(fmt.Sprintf("\nAuto-render: %s", onOff(snap.AutoRender)))

	if opts := fieldOptions(cs.menu); opts != nil {
		b.WriteString(fmt.Sprintf("\n\nChoose %s:", strings.ToLower(opts.Title)))
	}
	if cs.awaitingCustomEnv {
		b.WriteString("\n\n📍 Send the location description as a message.")
	}
	return b.String()
}

func settingsSummary(s studio.Settings) string {
	var b strings.Builder
	for _, f := range studio.Catalog() {
		label := ""
		if f.Field == studio.FieldEnvironment {
			label = s.EnvironmentDescription()
		} else if id, err := s.Selected(f.Field); err == nil {
			for _, v := range f.Options {
				if v.ID == id {
					label = v.Label
					break
				}
			}
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", f.Title, label))
	}
	for _, fl := range studio.Flags() {
		on, _ := s.Flag(fl.Flag)
		b.WriteString(fmt.Sprintf("%s: %s\n", fl.Title, onOff(on)))
	}
	return strings.TrimSpace(b.String())
}

func settingsKeyboard(snap workflow.Snapshot, cs chatState) telegram.InlineKeyboard {
	if opts := fieldOptions(cs.menu); opts != nil {
		return fieldKeyboard(snap.Settings, *opts)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, f := range studio.Catalog() {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(f.Title, cb("menu", f.Field)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	var flags []tgbotapi.InlineKeyboardButton
	for _, fl := range studio.Flags() {
		on, _ := snap.Settings.Flag(fl.Flag)
		flags = append(flags, tgbotapi.NewInlineKeyboardButtonData(checkbox(on)+" "+fl.Title, cb("flag", fl.Flag)))
	}
	rows = append(rows, flags,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Auto: "+onOff(snap.AutoRender), cb("auto")),
			tgbotapi.NewInlineKeyboardButtonData("🎨 Render", cb("render")),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Close", cb("close")),
		},
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func fieldKeyboard(s studio.Settings, opts studio.FieldOptions) telegram.InlineKeyboard {
	selected, _ := s.Selected(opts.Field)

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, v := range opts.Options {
		label := v.Label
		if v.ID == selected {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb("set", opts.Field, strconv.Itoa(i))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb("menu", menuMain)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func fieldOptions(field string) *studio.FieldOptions {
	for _, f := range studio.Catalog() {
		if f.Field == field {
			return &f
		}
	}
	return nil
}

// cb builds callback data. Option values travel as indexes because some
// IDs ("3:4") contain the separator.
func cb(parts ...string) string {
	return settingsCallbackPrefix + ":" + strings.Join(parts, ":")
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func checkbox(v bool) string {
	if v {
		return "✅"
	}
	return "⬜"
}
