package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/micron-tracking/internal/dialog"
	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/operators"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

type Engine interface {
	Allocate(ctx context.Context, req tracking.AllocateRequest) (*tracking.AllocateResult, error)
	Transfer(ctx context.Context, req tracking.TransferRequest) (*tracking.TransferResult, error)
}

type Queries interface {
	ScanBin(ctx context.Context, barcode string) (*bins.Scan, error)
	RemainingItems(ctx context.Context) ([]orders.Item, error)
	Movements(ctx context.Context, f inventory.MovementFilter) ([]inventory.MovementView, inventory.MovementStats, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	operators  *operators.Repo
	states     *dialog.Repo
	engine     Engine
	queries    Queries
	adminChat  int64
	defaultQty int
	loc        *time.Location
}

func New(api *tgbotapi.BotAPI, log *slog.Logger,
	operatorsRepo *operators.Repo, statesRepo *dialog.Repo,
	engine Engine, queries Queries,
	adminChatID int64, defaultQty int, loc *time.Location) *Bot {

	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		api: api, log: log, operators: operatorsRepo, states: statesRepo,
		engine: engine, queries: queries,
		adminChat: adminChatID, defaultQty: defaultQty, loc: loc,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				b.onMessage(ctx, upd.Message)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd.CallbackQuery)
			}
		}
	}
}

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	op := b.operator(ctx, msg.Chat.ID, msg.From.ID)
	if op == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	// Нижняя панель
	switch text {
	case btnAllocate:
		b.startAllocate(ctx, chatID)
		return
	case btnTransfer:
		b.startTransfer(ctx, chatID)
		return
	case btnScan:
		_ = b.states.Set(ctx, chatID, dialog.StateScanBin, dialog.Payload{})
		b.prompt(ctx, chatID, dialog.StateScanBin, dialog.Payload{}, "Отсканируйте штрихкод ячейки.", navKeyboard(false, true))
		return
	case btnRemaining:
		b.showRemaining(ctx, chatID)
		return
	case btnExport:
		if !op.CanAdmin() {
			b.send(tgbotapi.NewMessage(chatID, "Доступ запрещён."))
			return
		}
		b.exportMovements(ctx, chatID)
		return
	}

	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		b.log.Error("dialog state load failed", "chat_id", chatID, "err", err)
		return
	}
	switch st.State {
	case dialog.StateAllocBin:
		b.allocBin(ctx, chatID, text)
	case dialog.StateAllocQty:
		b.allocQty(ctx, chatID, op, st.Payload, text)
	case dialog.StateMoveFrom:
		b.moveFrom(ctx, chatID, text)
	case dialog.StateMoveTo:
		b.moveTo(ctx, chatID, st.Payload, text)
	case dialog.StateMoveSplit:
		b.moveSplit(ctx, chatID, st.Payload, text)
	case dialog.StateScanBin:
		b.scanBin(ctx, chatID, text)
	default:
		m := tgbotapi.NewMessage(chatID, "Выберите действие на панели снизу.")
		m.ReplyMarkup = operatorReplyKeyboard(op.CanAdmin())
		b.send(m)
	}
}

func (b *Bot) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	_ = b.answerCallback(cb, "", false)

	op := b.operator(ctx, chatID, cb.From.ID)
	if op == nil {
		return
	}
	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		b.log.Error("dialog state load failed", "chat_id", chatID, "err", err)
		return
	}

	data := cb.Data
	switch {
	case data == "nav:cancel":
		_ = b.states.Reset(ctx, chatID)
		b.editTextAndClear(chatID, cb.Message.MessageID, "Отменено.")
	case data == "nav:back":
		b.back(ctx, chatID, st)
	case strings.HasPrefix(data, "alloc:item:"):
		b.allocItem(ctx, chatID, st.Payload, strings.TrimPrefix(data, "alloc:item:"))
	case data == "alloc:qty:default":
		if st.State == dialog.StateAllocQty {
			b.allocQty(ctx, chatID, op, st.Payload, "")
		}
	case strings.HasPrefix(data, "move:item:"):
		b.moveItem(ctx, chatID, st.Payload, strings.TrimPrefix(data, "move:item:"))
	case data == "move:confirm":
		if st.State == dialog.StateMoveConfirm {
			b.moveConfirm(ctx, chatID, op, st.Payload)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		role := operators.RoleOperator
		if msg.From.ID == b.adminChat {
			role = operators.RoleSupervisor
		}
		op, err := b.operators.UpsertFromTelegram(ctx, operators.Telegram{
			ID:        msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		}, role)
		if err != nil {
			b.log.Error("operator upsert failed", "tg_id", msg.From.ID, "err", err)
			b.send(tgbotapi.NewMessage(chatID, "Ошибка: не удалось сохранить профиль"))
			return
		}
		_ = b.states.Reset(ctx, chatID)
		m := tgbotapi.NewMessage(chatID, "Готово! Сканируйте ячейки и выбирайте действие на панели снизу.")
		m.ReplyMarkup = operatorReplyKeyboard(op.CanAdmin())
		b.send(m)

	case "remaining":
		if b.operator(ctx, chatID, msg.From.ID) != nil {
			b.showRemaining(ctx, chatID)
		}

	case "cancel":
		_ = b.states.Reset(ctx, chatID)
		b.send(tgbotapi.NewMessage(chatID, "Отменено."))

	case "help":
		b.send(tgbotapi.NewMessage(chatID,
			"Команды:\n/start — начать работу\n/remaining — невыданные остатки\n/cancel — отменить текущее действие\n/help — помощь"))

	default:
		b.send(tgbotapi.NewMessage(chatID, "Не знаю такую команду. Наберите /help"))
	}
}

// operator возвращает активного оператора или nil, сообщив причину в чат.
func (b *Bot) operator(ctx context.Context, chatID, tgID int64) *operators.Operator {
	op, err := b.operators.GetByTelegramID(ctx, tgID)
	if err != nil {
		b.log.Error("operator lookup failed", "tg_id", tgID, "err", err)
		return nil
	}
	if op == nil {
		b.send(tgbotapi.NewMessage(chatID, "Сначала нажмите /start"))
		return nil
	}
	if !op.Active {
		b.send(tgbotapi.NewMessage(chatID, "Доступ запрещён."))
		return nil
	}
	return op
}

// notifyBinFull сообщает в админский чат, что ячейка заполнена.
func (b *Bot) notifyBinFull(barcode string) {
	if b.adminChat == 0 {
		return
	}
	b.send(tgbotapi.NewMessage(b.adminChat, fmt.Sprintf("⚠️ Ячейка %s заполнена.", barcode)))
}
