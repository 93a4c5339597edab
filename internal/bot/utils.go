package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/micron-tracking/internal/dialog"
)

/*** HELPERS ***/

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	_, err := b.api.Request(resp)
	return err
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

// prompt показывает следующий шаг мастера и запоминает его сообщение,
// чтобы на следующем шаге убрать кнопки.
func (b *Bot) prompt(ctx context.Context, chatID int64, state dialog.State, payload dialog.Payload, text string, kb tgbotapi.InlineKeyboardMarkup) {
	b.clearPrevStep(ctx, chatID)
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = kb
	sent, err := b.api.Send(m)
	if err != nil {
		b.log.Error("send failed", "err", err)
		return
	}
	b.saveLastStep(ctx, chatID, state, payload, sent.MessageID)
}

// clearPrevStep убрать inline-кнопки у прошлого шага, если он был
func (b *Bot) clearPrevStep(ctx context.Context, chatID int64) {
	st, err := b.states.Get(ctx, chatID)
	if err != nil || st == nil {
		return
	}
	if mid, ok := st.Payload.Int("last_mid"); ok {
		rm := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, int(mid), rm))
	}
}

// saveLastStep сохранить id текущего бот-сообщения как «последний»
func (b *Bot) saveLastStep(ctx context.Context, chatID int64, nextState dialog.State, payload dialog.Payload, newMID int) {
	if payload == nil {
		payload = dialog.Payload{}
	}
	payload["last_mid"] = float64(newMID)
	if err := b.states.Set(ctx, chatID, nextState, payload); err != nil {
		b.log.Error("dialog state save failed", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) editTextAndClear(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		chatID, messageID, text,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	b.send(edit)
}

// finish завершает мастер: сбрасывает состояние и пишет итог.
func (b *Bot) finish(ctx context.Context, chatID int64, text string) {
	b.clearPrevStep(ctx, chatID)
	_ = b.states.Reset(ctx, chatID)
	b.send(tgbotapi.NewMessage(chatID, text))
}

// back возвращает мастер на шаг назад.
func (b *Bot) back(ctx context.Context, chatID int64, st *dialog.Item) {
	p := st.Payload
	switch st.State {
	case dialog.StateAllocQty:
		b.allocBin(ctx, chatID, p.String("bin"))
	case dialog.StateMoveTo:
		b.moveFrom(ctx, chatID, p.String("from"))
	case dialog.StateMoveSplit:
		b.prompt(ctx, chatID, dialog.StateMoveTo, p, "Отсканируйте ячейку-приёмник.", navKeyboard(true, true))
	case dialog.StateMoveConfirm:
		b.moveTo(ctx, chatID, p, p.String("to"))
	default:
		b.finish(ctx, chatID, "Отменено.")
	}
}
