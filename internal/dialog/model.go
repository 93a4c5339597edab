package dialog

type State string

const (
	StateIdle State = "idle"

	// Выдача в ячейку
	StateAllocBin  State = "alloc_bin"  // ждём штрихкод ячейки
	StateAllocItem State = "alloc_item" // выбор позиции заказа
	StateAllocQty  State = "alloc_qty"  // количество или «по умолчанию»

	// Перемещение между этапами
	StateMoveFrom    State = "move_from"
	StateMoveItem    State = "move_item"
	StateMoveTo      State = "move_to"
	StateMoveSplit   State = "move_split" // брак и доработка: «5 3»
	StateMoveConfirm State = "move_confirm"

	StateScanBin State = "scan_bin"
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}

// Int читает число из payload; после JSON все числа приходят как float64.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}
