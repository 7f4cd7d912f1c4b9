package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FriendshipStatus статус заявки в друзья.
// Отклонение и удаление не хранятся: запись просто удаляется.
type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pendiente"
	FriendshipStatusAccepted FriendshipStatus = "aceptada"
)

// Friendship связь между двумя пользователями для списка контактов при переводах
type Friendship struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	RequesterID string           `gorm:"column:requester_id;not null;size:36;uniqueIndex:idx_friendships_pair" json:"requester_id"`
	ReceiverID  string           `gorm:"column:receiver_id;not null;size:36;uniqueIndex:idx_friendships_pair;index" json:"receiver_id"`
	Status      FriendshipStatus `gorm:"column:status;not null;size:20" json:"status"`
	Requester   *Profile         `gorm:"foreignKey:RequesterID;references:ID" json:"-"`
	Receiver    *Profile         `gorm:"foreignKey:ReceiverID;references:ID" json:"-"`
	CreatedAt   time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (Friendship) TableName() string {
	return "friendships"
}

// BeforeCreate назначает идентификатор заявки
func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Counterpart возвращает идентификатор второго участника
func (f *Friendship) Counterpart(userID string) string {
	if f.RequesterID == userID {
		return f.ReceiverID
	}
	return f.RequesterID
}
