package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
)

const (
	btnAllocate  = "Аллокация"
	btnTransfer  = "Перемещение"
	btnScan      = "Ячейка"
	btnRemaining = "Остатки по заказам"
	btnExport    = "Выгрузка движений"
)

// maxButtons — сколько позиций показываем списком; остальное через /remaining.
const maxButtons = 20

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// operatorReplyKeyboard Нижняя панель оператора
func operatorReplyKeyboard(supervisor bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton(btnAllocate), tgbotapi.NewKeyboardButton(btnTransfer)},
		{tgbotapi.NewKeyboardButton(btnScan), tgbotapi.NewKeyboardButton(btnRemaining)},
	}
	if supervisor {
		rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(btnExport)})
	}
	return tgbotapi.ReplyKeyboardMarkup{ResizeKeyboard: true, Keyboard: rows}
}

func itemsKeyboard(prefix string, items []orders.Item) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, it := range items {
		if i == maxButtons {
			break
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(itemLabel(it), fmt.Sprintf("%s:%d", prefix, it.ID)),
		))
	}
	rows = append(rows, navKeyboard(false, true).InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func contentsKeyboard(prefix string, contents []bins.Content) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	seen := map[int64]bool{}
	for _, c := range contents {
		if c.Quantity <= 0 || seen[c.ItemID] {
			continue
		}
		seen[c.ItemID] = true
		label := fmt.Sprintf("%s / %s — %s (%d)", c.OrderNumber, c.PartNumber, c.StageName, c.Quantity)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s:%d", prefix, c.ItemID)),
		))
	}
	rows = append(rows, navKeyboard(false, true).InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func qtyKeyboard(defaultQty int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("По умолчанию (%d)", defaultQty), "alloc:qty:default"),
		),
		navKeyboard(true, true).InlineKeyboard[0],
	)
}

func confirmKeyboard(data string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", data),
		),
		navKeyboard(true, true).InlineKeyboard[0],
	)
}
