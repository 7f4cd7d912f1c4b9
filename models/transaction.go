package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionKind тип движения средств
type TransactionKind string

const (
	TransactionKindDeposit    TransactionKind = "deposito"
	TransactionKindWithdrawal TransactionKind = "retiro"
	TransactionKindTransfer   TransactionKind = "transferencia"
)

// Transaction неизменяемая запись журнала о движении средств.
// deposito: только DestinationAccountID, retiro: только OriginAccountID,
// transferencia: оба и они различны.
type Transaction struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	OriginAccountID      *string         `gorm:"column:origin_account_id;size:36;index" json:"origin_account_id,omitempty"`
	DestinationAccountID *string         `gorm:"column:destination_account_id;size:36;index" json:"destination_account_id,omitempty"`
	Amount               decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null;check:amount > 0" json:"amount"`
	Kind                 TransactionKind `gorm:"column:kind;not null;size:20" json:"kind"`
	Description          string          `gorm:"column:description;size:255" json:"description"`
	CreatedAt            time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// MarshalJSON выводит сумму с двумя знаками после запятой
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(t), t.Amount.StringFixed(2)})
}

// BeforeCreate проверяет согласованность типа и ссылок на счета
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if !t.Amount.IsPositive() {
		return errors.New("transaction amount must be positive")
	}

	hasOrigin := t.OriginAccountID != nil
	hasDestination := t.DestinationAccountID != nil
	switch t.Kind {
	case TransactionKindDeposit:
		if hasOrigin || !hasDestination {
			return errors.New("deposito requires only a destination account")
		}
	case TransactionKindWithdrawal:
		if !hasOrigin || hasDestination {
			return errors.New("retiro requires only an origin account")
		}
	case TransactionKindTransfer:
		if !hasOrigin || !hasDestination {
			return errors.New("transferencia requires both accounts")
		}
		if *t.OriginAccountID == *t.DestinationAccountID {
			return errors.New("transferencia requires different accounts")
		}
	default:
		return errors.New("unknown transaction kind")
	}
	return nil
}
