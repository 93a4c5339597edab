package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/export"
)

// exportPeriod — за сколько дней выгружаем журнал движений из бота.
const exportPeriod = 30 * 24 * time.Hour

func (b *Bot) scanBin(ctx context.Context, chatID int64, barcode string) {
	scan, err := b.queries.ScanBin(ctx, barcode)
	if err != nil {
		b.log.Error("scan bin failed", "bin", barcode, "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	if scan == nil {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Ячейка %q не найдена.", barcode)))
		return
	}
	b.finish(ctx, chatID, formatScan(scan))
}

func (b *Bot) showRemaining(ctx context.Context, chatID int64) {
	items, err := b.queries.RemainingItems(ctx)
	if err != nil {
		b.log.Error("remaining items failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, formatRemaining(items)))
}

func (b *Bot) exportMovements(ctx context.Context, chatID int64) {
	now := time.Now().In(b.loc)
	from := now.Add(-exportPeriod)
	list, stats, err := b.queries.Movements(ctx, inventory.MovementFilter{From: &from, Limit: inventory.MaxMovementLimit})
	if err != nil {
		b.log.Error("movements query failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	data, err := export.Movements(list, stats, b.loc)
	if err != nil {
		b.log.Error("movements export failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: export.MovementsFileName(now), Bytes: data})
	doc.Caption = fmt.Sprintf("Движения за 30 дней: %d записей, %d шт.", stats.Total, stats.Units)
	b.send(doc)
}
