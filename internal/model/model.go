// Package model содержит доменные сущности менеджера бонусов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Organization представляет организацию, владеющую клиентами и пользователями.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User представляет сотрудника организации или администратора системы.
type User struct {
	ID             int64
	Username       string
	PasswordHash   []byte
	OrganizationID *int64
	IsPrivileged   bool
	CreatedAt      time.Time
}

// Client описывает клиента организации и его текущий бонусный баланс.
type Client struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"-"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HistoryDescription описывает тип операции в журнале бонусов.
type HistoryDescription string

const (
	DescriptionAccrual   HistoryDescription = "accrual"
	DescriptionDeduction HistoryDescription = "deduction"
	DescriptionReset     HistoryDescription = "reset"
)

// BonusHistory описывает неизменяемую запись журнала изменения баланса клиента.
type BonusHistory struct {
	ID           int64              `json:"id"`
	ClientID     int64              `json:"client_id"`
	CreatedAt    time.Time          `json:"date"`
	Amount       decimal.Decimal    `json:"amount"`
	Description  HistoryDescription `json:"description"`
	BalanceAfter decimal.Decimal    `json:"balance_after"`
}

// BonusType определяет направление операции, выбранное пользователем.
type BonusType string

const (
	BonusTypeAccrual   BonusType = "accrual"
	BonusTypeDeduction BonusType = "deduction"
)

// Тексты шаблонов сообщений по умолчанию.
const (
	DefaultAccrualTemplate   = "Здравствуйте, [имя]! Вам начислено [сумма] бонусов. Текущий баланс: [баланс]."
	DefaultDeductionTemplate = "Здравствуйте, [имя]! С вашего счета списано [сумма] бонусов. Текущий баланс: [баланс]."
	DefaultResetTemplate     = "Здравствуйте, [имя]! Ваш баланс обнулён. Текущий баланс: 0."
)

// MessageTemplate содержит шаблоны уведомлений пользователя.
type MessageTemplate struct {
	ID                int64  `json:"-"`
	UserID            int64  `json:"-"`
	AccrualTemplate   string `json:"accrual_template"`
	DeductionTemplate string `json:"deduction_template"`
	ResetTemplate     string `json:"reset_template"`
}

// DefaultMessageTemplate возвращает шаблоны по умолчанию для указанного пользователя.
func DefaultMessageTemplate(userID int64) MessageTemplate {
	return MessageTemplate{
		UserID:            userID,
		AccrualTemplate:   DefaultAccrualTemplate,
		DeductionTemplate: DefaultDeductionTemplate,
		ResetTemplate:     DefaultResetTemplate,
	}
}

// Notice содержит готовое сообщение клиенту и ссылку для его отправки.
type Notice struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Dashboard агрегирует данные главной страницы организации.
type Dashboard struct {
	BusinessName string          `json:"business_name"`
	Search       string          `json:"search,omitempty"`
	Clients      []Client        `json:"clients"`
	Spent        decimal.Decimal `json:"spent"`
	Templates    MessageTemplate `json:"templates"`
	Notice       *Notice         `json:"notice,omitempty"`
}
