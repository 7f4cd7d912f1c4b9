package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Роли профиля
const (
	RoleClient = "cliente"
	RoleStaff  = "personal"
	RoleAdmin  = "admin"
)

// Типы клиентов
const (
	KindStudent = "alumno"
	KindParent  = "padre"
	KindStaff   = "personal"
)

// Identity представляет учетные данные для входа.
// Принадлежит подсистеме идентификации и не связана внешними ключами с банковскими таблицами.
type Identity struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"column:email;unique;not null;size:100"`
	PasswordHash string    `gorm:"column:password_hash;not null;size:100"`
	FullName     string    `gorm:"column:full_name;not null;size:100"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (Identity) TableName() string {
	return "identities"
}

// BeforeCreate хук для нормализации и валидации перед созданием
func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.Email = strings.ToLower(strings.TrimSpace(i.Email))
	if len(i.Email) < 3 || len(i.Email) > 100 {
		return errors.New("email must be between 3 and 100 characters")
	}
	return nil
}

// Profile представляет профиль пользователя банка
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36"` // совпадает с Identity.ID
	FullName  string    `gorm:"column:full_name;not null;size:100"`
	Role      string    `gorm:"column:role;not null;size:20;index"`
	Kind      string    `gorm:"column:kind;not null;size:20"`
	Account   *Account  `gorm:"foreignKey:UserID;references:ID"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// BeforeCreate хук для валидации перед созданием
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	if len(p.FullName) < 2 || len(p.FullName) > 100 {
		return errors.New("full name must be between 2 and 100 characters")
	}
	return nil
}

// IsStaff сообщает, может ли профиль выполнять административные операции
func (p *Profile) IsStaff() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}
