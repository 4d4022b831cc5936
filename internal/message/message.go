// Package message формирует тексты уведомлений клиентам и ссылки для их отправки.
package message

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Плейсхолдеры, поддерживаемые шаблонами.
const (
	PlaceholderName    = "[имя]"
	PlaceholderAmount  = "[сумма]"
	PlaceholderBalance = "[баланс]"
)

// DefaultBaseURI задаёт адрес сервиса коротких ссылок WhatsApp.
const DefaultBaseURI = "https://wa.me"

// Render подставляет имя, сумму и баланс в шаблон.
// Если amount равен nil, плейсхолдер суммы остаётся в тексте без изменений.
func Render(template, name string, amount *decimal.Decimal, balance decimal.Decimal) string {
	pairs := []string{
		PlaceholderName, name,
		PlaceholderBalance, FormatAmount(balance),
	}
	if amount != nil {
		pairs = append(pairs, PlaceholderAmount, FormatAmount(*amount))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// FormatAmount возвращает сумму с двумя знаками после запятой.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// BuildShareableLink собирает ссылку вида baseURI/phone?text=<message>.
func BuildShareableLink(baseURI, phone, text string) string {
	// пробел кодируется как %20: литеральный "+" к этому моменту уже экранирован как %2B
	encoded := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return strings.TrimRight(baseURI, "/") + "/" + url.PathEscape(phone) + "?text=" + encoded
}
