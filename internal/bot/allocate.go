package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/micron-tracking/internal/dialog"
	"github.com/Spok95/micron-tracking/internal/domain/operators"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

func (b *Bot) startAllocate(ctx context.Context, chatID int64) {
	b.prompt(ctx, chatID, dialog.StateAllocBin, dialog.Payload{},
		"Аллокация. Отсканируйте штрихкод ячейки.", navKeyboard(false, true))
}

// allocBin проверяет ячейку и предлагает позиции заказов с невыданным остатком.
func (b *Bot) allocBin(ctx context.Context, chatID int64, barcode string) {
	scan, err := b.queries.ScanBin(ctx, barcode)
	if err != nil {
		b.log.Error("scan bin failed", "bin", barcode, "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	if scan == nil || !scan.Bin.Active() {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Ячейка %q не найдена или неактивна. Отсканируйте другую.", barcode)))
		return
	}
	if scan.Usage.Available() <= 0 {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Ячейка %s заполнена. Отсканируйте другую.", scan.Bin.Barcode)))
		return
	}

	items, err := b.queries.RemainingItems(ctx)
	if err != nil {
		b.log.Error("remaining items failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	if len(items) == 0 {
		b.finish(ctx, chatID, "Все позиции заказов уже выданы.")
		return
	}
	text := fmt.Sprintf("Ячейка %s, свободно %d.\nВыберите позицию заказа:", scan.Bin.Barcode, scan.Usage.Available())
	b.prompt(ctx, chatID, dialog.StateAllocItem, dialog.Payload{"bin": scan.Bin.Barcode}, text, itemsKeyboard("alloc:item", items))
}

func (b *Bot) allocItem(ctx context.Context, chatID int64, p dialog.Payload, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || p.String("bin") == "" {
		return
	}
	p["item_id"] = float64(id)
	text := fmt.Sprintf("Сколько выдать? Введите число или выберите «по умолчанию» (%d).", b.defaultQty)
	b.prompt(ctx, chatID, dialog.StateAllocQty, p, text, qtyKeyboard(b.defaultQty))
}

func (b *Bot) allocQty(ctx context.Context, chatID int64, op *operators.Operator, p dialog.Payload, text string) {
	qty, err := parseQty(text)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, err.Error()))
		return
	}
	itemID, ok := p.Int("item_id")
	if !ok {
		b.finish(ctx, chatID, "Позиция не выбрана, начните заново.")
		return
	}

	res, err := b.engine.Allocate(ctx, tracking.AllocateRequest{
		BinBarcode: p.String("bin"),
		ItemID:     itemID,
		Quantity:   qty,
		Operator:   op.Name(),
	})
	if err != nil {
		b.finish(ctx, chatID, "❌ "+describeError(err))
		return
	}
	b.finish(ctx, chatID, formatAllocate(res))
	if res.BinAvailable == 0 {
		b.notifyBinFull(res.BinBarcode)
	}
}
