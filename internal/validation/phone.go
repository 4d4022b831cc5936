// Package validation содержит функции проверки и нормализации входных данных.
package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidPhoneFormat возвращается, если номер после нормализации не соответствует формату +7XXXXXXXXXX.
var ErrInvalidPhoneFormat = errors.New("phone must match +7XXXXXXXXXX")

const (
	phonePrefix = "+7"
	phoneLength = 12
	// длина номера без плюса в национальном (8XXXXXXXXXX) или международном (7XXXXXXXXXX) виде
	trunkLength = 11
)

var phoneReplacer = strings.NewReplacer(" ", "", "(", "", ")", "", "-", "")

// NormalizePhone приводит номер телефона к виду +7XXXXXXXXXX.
// Длина считается в символах, а не в байтах; символы после префикса на принадлежность к цифрам не проверяются.
func NormalizePhone(raw string) (string, error) {
	phone := phoneReplacer.Replace(raw)
	if utf8.RuneCountInString(phone) == trunkLength && (phone[0] == '8' || phone[0] == '7') {
		phone = phonePrefix + phone[1:]
	}
	if !strings.HasPrefix(phone, phonePrefix) {
		phone = phonePrefix + phone
	}

	if utf8.RuneCountInString(phone) != phoneLength {
		return "", ErrInvalidPhoneFormat
	}

	return phone, nil
}
