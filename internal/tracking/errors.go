package tracking

import "errors"

var (
	ErrNotFound       = errors.New("tracking: not found")
	ErrExhaustedOrder = errors.New("tracking: no remaining order quantity")
	ErrBinFull        = errors.New("tracking: bin is full")
	ErrNoCapacity     = errors.New("tracking: nothing to allocate")
	ErrNoMaterial     = errors.New("tracking: no material for batch in bin")
	ErrInvalidSplit   = errors.New("tracking: rejected + rework exceed current quantity")

	// ErrConcurrencyConflict — блокировка или сериализация не удалась.
	// Движок повторяет операцию ограниченное число раз.
	ErrConcurrencyConflict = errors.New("tracking: concurrent update conflict")
)

// Reason — короткая метка ошибки для метрик и логов.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExhaustedOrder):
		return "exhausted_order"
	case errors.Is(err, ErrBinFull):
		return "bin_full"
	case errors.Is(err, ErrNoCapacity):
		return "no_capacity"
	case errors.Is(err, ErrNoMaterial):
		return "no_material"
	case errors.Is(err, ErrInvalidSplit):
		return "invalid_split"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

// IsBusiness — ошибка вызвана входными данными или состоянием, а не инфраструктурой.
func IsBusiness(err error) bool {
	switch Reason(err) {
	case "ok", "conflict", "error":
		return false
	}
	return true
}
