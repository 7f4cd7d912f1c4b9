package services

import (
	"errors"
	"strings"
)

// Ошибки валидации
var (
	ErrInvalidAmount = errors.New("сумма должна быть положительной, не более 1 000 000 000.00 и с точностью до двух знаков")
	ErrValidation    = errors.New("неверные данные запроса")
)

// Ошибки авторизации
var (
	ErrUnauthenticated = errors.New("требуется аутентификация")
	ErrForbidden       = errors.New("недостаточно прав для выполнения операции")
)

// Ошибки поиска
var (
	ErrAccountNotFound      = errors.New("счет не найден")
	ErrOriginAccountMissing = errors.New("у пользователя нет счета")
	ErrDestinationNotFound  = errors.New("счет получателя не найден")
	ErrUserNotFound         = errors.New("пользователь не найден")
	ErrFriendshipNotFound   = errors.New("заявка в друзья не найдена")
)

// Нарушения бизнес-правил
var (
	ErrInsufficientFunds = errors.New("недостаточно средств на счете")
	ErrSelfTransfer      = errors.New("нельзя перевести средства на тот же счет")
	ErrSelfFriendship    = errors.New("нельзя добавить в друзья самого себя")
)

// Конфликты
var (
	ErrDuplicateEmail   = errors.New("пользователь с таким email уже существует")
	ErrFriendshipExists = errors.New("заявка в друзья уже существует")
)

// ErrOperationFailed ошибка инфраструктуры: изменения не применены, операцию можно повторить
var ErrOperationFailed = errors.New("операция не выполнена, повторите попытку")

// ValidationError содержит сообщения по каждому неверному полю
type ValidationError struct {
	Messages []string
	amount   bool
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrValidation).
// Неверная сумма дополнительно распознается как ErrInvalidAmount.
func (e *ValidationError) Unwrap() []error {
	if e.amount {
		return []error{ErrValidation, ErrInvalidAmount}
	}
	return []error{ErrValidation}
}
