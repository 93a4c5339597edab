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

func (b *Bot) startTransfer(ctx context.Context, chatID int64) {
	b.prompt(ctx, chatID, dialog.StateMoveFrom, dialog.Payload{},
		"Перемещение. Отсканируйте ячейку-источник.", navKeyboard(false, true))
}

// moveFrom показывает содержимое источника для выбора партии.
func (b *Bot) moveFrom(ctx context.Context, chatID int64, barcode string) {
	scan, err := b.queries.ScanBin(ctx, barcode)
	if err != nil {
		b.log.Error("scan bin failed", "bin", barcode, "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	if scan == nil {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Ячейка %q не найдена. Отсканируйте другую.", barcode)))
		return
	}
	if len(scan.Contents) == 0 {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Ячейка %s пуста. Отсканируйте другую.", scan.Bin.Barcode)))
		return
	}
	b.prompt(ctx, chatID, dialog.StateMoveItem, dialog.Payload{"from": scan.Bin.Barcode},
		formatScan(scan)+"\n\nВыберите партию:", contentsKeyboard("move:item", scan.Contents))
}

func (b *Bot) moveItem(ctx context.Context, chatID int64, p dialog.Payload, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || p.String("from") == "" {
		return
	}
	p["item_id"] = float64(id)
	b.prompt(ctx, chatID, dialog.StateMoveTo, p, "Отсканируйте ячейку-приёмник.", navKeyboard(true, true))
}

func (b *Bot) moveTo(ctx context.Context, chatID int64, p dialog.Payload, barcode string) {
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
	p["to"] = scan.Bin.Barcode
	text := fmt.Sprintf("Приёмник %s, свободно %d.\nВведите брак и доработку через пробел (например «5 3»), либо 0.",
		scan.Bin.Barcode, scan.Usage.Available())
	b.prompt(ctx, chatID, dialog.StateMoveSplit, p, text, navKeyboard(true, true))
}

func (b *Bot) moveSplit(ctx context.Context, chatID int64, p dialog.Payload, text string) {
	rejected, rework, err := parseSplit(text)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, err.Error()))
		return
	}
	p["rejected"] = float64(rejected)
	p["rework"] = float64(rework)
	summary := fmt.Sprintf("Перенести %s → %s\nБрак: %d, доработка: %d\nПодтвердить?",
		p.String("from"), p.String("to"), rejected, rework)
	b.prompt(ctx, chatID, dialog.StateMoveConfirm, p, summary, confirmKeyboard("move:confirm"))
}

func (b *Bot) moveConfirm(ctx context.Context, chatID int64, op *operators.Operator, p dialog.Payload) {
	itemID, ok := p.Int("item_id")
	if !ok {
		b.finish(ctx, chatID, "Партия не выбрана, начните заново.")
		return
	}
	rejected, _ := p.Int("rejected")
	rework, _ := p.Int("rework")

	res, err := b.engine.Transfer(ctx, tracking.TransferRequest{
		FromBarcode: p.String("from"),
		ToBarcode:   p.String("to"),
		ItemID:      itemID,
		Rejected:    int(rejected),
		Rework:      int(rework),
		Operator:    op.Name(),
	})
	if err != nil {
		b.finish(ctx, chatID, "❌ "+describeError(err))
		return
	}
	b.finish(ctx, chatID, formatTransfer(res))
	if res.ToAvailable == 0 && res.Transferred > 0 {
		b.notifyBinFull(res.ToBin)
	}
}
