package services

import (
	"errors"
	"reflect"
	"strings"

	"bancomunay/models"
	"bancomunay/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxAmount максимальная сумма одной операции
var MaxAmount = decimal.RequireFromString("1000000000.00")

// Границы представления суммы. Проверяются до любых вычислений,
// так как String, Cmp и Round разворачивают экспоненту в big.Int.
const (
	maxAmountExponent  = 9
	minAmountExponent  = -18
	maxCoefficientBits = 100
)

// NewValidator создает валидатор с правилами для денежных сумм и номеров счетов
func NewValidator() *validator.Validate {
	v := validator.New()

	// В сообщениях используем имена полей из JSON
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// decimal.Decimal проверяется как строка, слишком большая экспонента дает пустую строку
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			if !withinBounds(d) {
				return ""
			}
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ValidateAmount(d) == nil
	})
	_ = v.RegisterValidation("balance", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && validateBalance(d)
	})
	_ = v.RegisterValidation("account_number", func(fl validator.FieldLevel) bool {
		return utils.IsNumericCode(fl.Field().String(), models.AccountNumberLength)
	})

	return v
}

// ValidateAmount проверяет сумму операции
func ValidateAmount(amount decimal.Decimal) error {
	if !withinBounds(amount) || !amount.IsPositive() || amount.GreaterThan(MaxAmount) || !hasCents(amount) {
		return ErrInvalidAmount
	}
	return nil
}

// validateBalance проверяет начальный баланс: неотрицательный, с точностью до копеек
func validateBalance(balance decimal.Decimal) bool {
	return withinBounds(balance) && !balance.IsNegative() && !balance.GreaterThan(MaxAmount) && hasCents(balance)
}

// withinBounds отсекает значения вроде 1e1000000000 без разворачивания экспоненты
func withinBounds(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > maxAmountExponent || exp < minAmountExponent {
		return false
	}
	return d.Coefficient().BitLen() <= maxCoefficientBits
}

func hasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// validateStruct проверяет запрос и собирает сообщения по полям
func validateStruct(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{Messages: []string{err.Error()}}
	}

	result := &ValidationError{}
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			result.Messages = append(result.Messages, "поле "+e.Field()+" обязательно")
		case "min":
			result.Messages = append(result.Messages, "поле "+e.Field()+" должно содержать минимум "+e.Param()+" символов")
		case "max":
			result.Messages = append(result.Messages, "поле "+e.Field()+" должно содержать максимум "+e.Param()+" символов")
		case "email":
			result.Messages = append(result.Messages, "поле "+e.Field()+" должно быть корректным email")
		case "oneof":
			result.Messages = append(result.Messages, "поле "+e.Field()+" должно быть одним из: "+e.Param())
		case "amount":
			result.amount = true
			result.Messages = append(result.Messages, "поле "+e.Field()+": "+ErrInvalidAmount.Error())
		case "balance":
			result.Messages = append(result.Messages, "поле "+e.Field()+" должно быть неотрицательным и с точностью до двух знаков")
		case "account_number":
			result.Messages = append(result.Messages, "поле "+e.Field()+" должно содержать 10 цифр")
		default:
			result.Messages = append(result.Messages, "поле "+e.Field()+" заполнено неверно")
		}
	}
	return result
}
