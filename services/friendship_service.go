package services

import (
	"context"
	"errors"
	"fmt"

	"bancomunay/database"
	"bancomunay/models"
	"bancomunay/utils"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Действия над заявкой в друзья
const (
	FriendActionAccept = "aceptar"
	FriendActionReject = "rechazar"
	FriendActionRemove = "eliminar"
)

// FriendRequest заявка по номеру счета будущего друга
type FriendRequest struct {
	AccountNumber string `json:"account_number" validate:"required,account_number"`
}

// FriendResponse ответ на заявку
type FriendResponse struct {
	Action string `json:"action" validate:"required,oneof=aceptar rechazar eliminar"`
}

// FriendView контакт для списка друзей и заявок
type FriendView struct {
	FriendshipID  string                  `json:"friendship_id"`
	UserID        string                  `json:"user_id"`
	FullName      string                  `json:"full_name"`
	AccountNumber string                  `json:"account_number"`
	Status        models.FriendshipStatus `json:"status"`
}

// FriendshipService управляет контактами для переводов
type FriendshipService struct {
	db        *gorm.DB
	validator *validator.Validate
}

// NewFriendshipService создает новый экземпляр FriendshipService
func NewFriendshipService(db *gorm.DB) *FriendshipService {
	return &FriendshipService{
		db:        db,
		validator: NewValidator(),
	}
}

// Request отправляет заявку владельцу счета с указанным номером
func (s *FriendshipService) Request(ctx context.Context, callerID string, req FriendRequest) (*models.Friendship, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	friendship := &models.Friendship{
		RequesterID: callerID,
		Status:      models.FriendshipStatusPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("number = ?", req.AccountNumber).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDestinationNotFound
			}
			return err
		}
		if account.UserID == callerID {
			return ErrSelfFriendship
		}
		friendship.ReceiverID = account.UserID

		// Связь в любом направлении считается существующей
		var count int64
		err := tx.Model(&models.Friendship{}).
			Where("(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)",
				callerID, account.UserID, account.UserID, callerID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrFriendshipExists
		}

		if err := tx.Create(friendship).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrFriendshipExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.classify("request", err)
	}

	return friendship, nil
}

// Respond принимает, отклоняет или удаляет связь.
// Принять может только получатель, отклонить или удалить любой из участников.
// Возвращает nil, если связь удалена.
func (s *FriendshipService) Respond(ctx context.Context, callerID, friendshipID string, req FriendResponse) (*models.Friendship, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	var friendship models.Friendship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", friendshipID).First(&friendship).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFriendshipNotFound
			}
			return err
		}
		if friendship.RequesterID != callerID && friendship.ReceiverID != callerID {
			return ErrForbidden
		}

		switch req.Action {
		case FriendActionAccept:
			if friendship.ReceiverID != callerID {
				return ErrForbidden
			}
			friendship.Status = models.FriendshipStatusAccepted
			return tx.Model(&friendship).Update("status", models.FriendshipStatusAccepted).Error
		case FriendActionReject, FriendActionRemove:
			return tx.Where("id = ?", friendship.ID).Delete(&models.Friendship{}).Error
		default:
			return ErrValidation
		}
	})
	if err != nil {
		return nil, s.classify("respond", err)
	}

	if req.Action != FriendActionAccept {
		utils.LogInfo("Friendship %s removed by %s (%s)", friendshipID, callerID, req.Action)
		return nil, nil
	}
	return &friendship, nil
}

// ListFriends возвращает принятые связи с номерами счетов друзей
func (s *FriendshipService) ListFriends(ctx context.Context, callerID string) ([]FriendView, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}

	var friendships []models.Friendship
	err := s.db.WithContext(ctx).
		Preload("Requester.Account").
		Preload("Receiver.Account").
		Where("status = ? AND (requester_id = ? OR receiver_id = ?)", models.FriendshipStatusAccepted, callerID, callerID).
		Order("created_at").
		Find(&friendships).Error
	if err != nil {
		return nil, s.classify("list friends", err)
	}

	friends := make([]FriendView, 0, len(friendships))
	for i := range friendships {
		f := &friendships[i]
		counterpart := f.Receiver
		if f.Counterpart(callerID) == f.RequesterID {
			counterpart = f.Requester
		}
		friends = append(friends, newFriendView(f, callerID, counterpart))
	}
	return friends, nil
}

// ListPending возвращает входящие заявки, ожидающие ответа
func (s *FriendshipService) ListPending(ctx context.Context, callerID string) ([]FriendView, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}

	var friendships []models.Friendship
	err := s.db.WithContext(ctx).
		Preload("Requester.Account").
		Where("status = ? AND receiver_id = ?", models.FriendshipStatusPending, callerID).
		Order("created_at").
		Find(&friendships).Error
	if err != nil {
		return nil, s.classify("list pending", err)
	}

	requests := make([]FriendView, 0, len(friendships))
	for i := range friendships {
		requests = append(requests, newFriendView(&friendships[i], callerID, friendships[i].Requester))
	}
	return requests, nil
}

func newFriendView(f *models.Friendship, callerID string, counterpart *models.Profile) FriendView {
	view := FriendView{
		FriendshipID: f.ID,
		UserID:       f.Counterpart(callerID),
		Status:       f.Status,
	}
	if counterpart != nil {
		view.FullName = counterpart.FullName
		if counterpart.Account != nil {
			view.AccountNumber = counterpart.Account.Number
		}
	}
	return view
}

func (s *FriendshipService) classify(operation string, err error) error {
	if isDomainError(err) {
		return err
	}
	utils.LogError("Friendship %s failed: %v", operation, err)
	return fmt.Errorf("%w: %s", ErrOperationFailed, operation)
}
