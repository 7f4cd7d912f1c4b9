package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bancomunay/database"
	"bancomunay/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// IdentityProvider подсистема учетных данных. Она живет вне банковской транзакции,
// поэтому созданную личность при сбое нужно удалять компенсирующим вызовом.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password, fullName string) (*models.Identity, error)
	// DeleteIdentity идемпотентен: удаление отсутствующей личности не ошибка
	DeleteIdentity(ctx context.Context, id string) error
	Authenticate(ctx context.Context, email, password string) (*models.Identity, error)
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)
}

// LocalIdentityProvider хранит личности в таблице identities с bcrypt хешами паролей
type LocalIdentityProvider struct {
	db   *gorm.DB
	cost int
}

// NewLocalIdentityProvider создает провайдер. cost <= 0 означает bcrypt.DefaultCost.
func NewLocalIdentityProvider(db *gorm.DB, cost int) *LocalIdentityProvider {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalIdentityProvider{db: db, cost: cost}
}

// CreateIdentity создает учетные данные
func (p *LocalIdentityProvider) CreateIdentity(ctx context.Context, email, password, fullName string) (*models.Identity, error) {
	// Хешируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	identity := &models.Identity{
		Email:        email,
		PasswordHash: string(hashedPassword),
		FullName:     fullName,
	}

	if err := p.db.WithContext(ctx).Create(identity).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	return identity, nil
}

// DeleteIdentity удаляет учетные данные
func (p *LocalIdentityProvider) DeleteIdentity(ctx context.Context, id string) error {
	if err := p.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Identity{}).Error; err != nil {
		return fmt.Errorf("ошибка удаления учетных данных %s: %w", id, err)
	}
	return nil
}

// Authenticate проверяет email и пароль
func (p *LocalIdentityProvider) Authenticate(ctx context.Context, email, password string) (*models.Identity, error) {
	var identity models.Identity
	err := p.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthenticated
	}

	return &identity, nil
}

// GetIdentity возвращает учетные данные по ID
func (p *LocalIdentityProvider) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	var identity models.Identity
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return &identity, nil
}
