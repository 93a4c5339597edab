package operators

import (
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
)

type Operator struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Role       Role
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Telegram struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Name — как оператор попадает в movements.scanned_by.
func (o Operator) Name() string {
	full := strings.TrimSpace(o.FirstName + " " + o.LastName)
	switch {
	case o.Username != "" && full != "":
		return full + " (@" + o.Username + ")"
	case o.Username != "":
		return "@" + o.Username
	case full != "":
		return full
	}
	return "tg:" + strconv.FormatInt(o.TelegramID, 10)
}

func (o Operator) CanAdmin() bool { return o.Active && o.Role == RoleSupervisor }
