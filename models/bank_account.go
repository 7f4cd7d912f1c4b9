package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountNumberLength длина публичного номера счета
const AccountNumberLength = 10

// Account представляет счет ученика. У каждого пользователя ровно один счет.
type Account struct {
	ID        string          `gorm:"primaryKey;size:36"`
	UserID    string          `gorm:"column:user_id;unique;not null;size:36"`
	Number    string          `gorm:"column:number;unique;not null;size:10"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null;default:0;check:balance >= 0"`
	Holder    *Profile        `gorm:"foreignKey:UserID;references:ID"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate назначает идентификатор счета
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
