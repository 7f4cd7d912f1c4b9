package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bancomunay/database"
	"bancomunay/models"
	"bancomunay/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// maxNumberAttempts сколько раз подбираем новый номер при коллизии
	maxNumberAttempts = 10
	// OpeningDepositDescription описание первого пополнения нового счета
	OpeningDepositDescription = "Depósito inicial de cuenta"
)

// CreateUserRequest представляет данные для создания пользователя со счетом
type CreateUserRequest struct {
	Email          string          `json:"email" validate:"required,email,max=100"`
	Password       string          `json:"password" validate:"required,min=6,max=72"`
	FullName       string          `json:"full_name" validate:"required,min=2,max=100"`
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"balance"`
	Role           string          `json:"role" validate:"omitempty,oneof=cliente personal admin"`
	Kind           string          `json:"kind" validate:"omitempty,oneof=alumno padre personal"`
}

// UpdateProfileRequest представляет данные для изменения профиля
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
}

// ProvisionResult результат создания пользователя
type ProvisionResult struct {
	UserID        string          `json:"user_id"`
	AccountID     string          `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// ClientSummary строка списка клиентов для персонала
type ClientSummary struct {
	UserID        string          `json:"user_id"`
	FullName      string          `json:"full_name"`
	Kind          string          `json:"kind"`
	AccountID     string          `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// ClientList список клиентов с итогами
type ClientList struct {
	Clients        []ClientSummary `json:"clients"`
	Count          int             `json:"count"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
	AverageBalance decimal.Decimal `json:"average_balance"`
}

// Overview профиль и счет пользователя для главной страницы
type Overview struct {
	UserID        string          `json:"user_id"`
	FullName      string          `json:"full_name"`
	Role          string          `json:"role"`
	Kind          string          `json:"kind"`
	AccountID     string          `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// ProvisioningService создает и удаляет пользователей вместе с их счетами
type ProvisioningService struct {
	db         *gorm.DB
	identities IdentityProvider
	ledger     *LedgerService
	validator  *validator.Validate
	numbers    func() (string, error)
}

// NewProvisioningService создает новый экземпляр ProvisioningService
func NewProvisioningService(db *gorm.DB, identities IdentityProvider, ledger *LedgerService) *ProvisioningService {
	return &ProvisioningService{
		db:         db,
		identities: identities,
		ledger:     ledger,
		validator:  NewValidator(),
		numbers:    generateAccountNumber,
	}
}

// Register самостоятельная регистрация: всегда клиент-ученик с нулевым балансом
func (s *ProvisioningService) Register(ctx context.Context, req CreateUserRequest) (*ProvisionResult, error) {
	req.InitialBalance = decimal.Zero
	req.Role = models.RoleClient
	req.Kind = models.KindStudent
	return s.createAccountAndProfile(ctx, req)
}

// CreateByAdmin создание пользователя персоналом с произвольным балансом и ролью
func (s *ProvisioningService) CreateByAdmin(ctx context.Context, callerID string, req CreateUserRequest) (*ProvisionResult, error) {
	if _, err := s.requireStaff(ctx, callerID); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = models.RoleClient
	}
	if req.Kind == "" {
		req.Kind = models.KindStudent
	}
	return s.createAccountAndProfile(ctx, req)
}

// createAccountAndProfile создает личность, затем профиль и счет в одной транзакции.
// Если после создания личности что-то пошло не так, личность удаляется.
func (s *ProvisioningService) createAccountAndProfile(ctx context.Context, req CreateUserRequest) (result *ProvisionResult, err error) {
	startTime := time.Now()
	defer func() {
		utils.LogOperation("CreateAccountAndProfile", startTime, err)
	}()

	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	identity, err := s.identities.CreateIdentity(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		return nil, err
	}

	result, err = s.provision(ctx, identity.ID, req)
	if err != nil {
		s.compensate(ctx, identity.ID, err)
		return nil, s.classify("provision", err)
	}

	return result, nil
}

// provision пишет профиль, счет и начальное пополнение
func (s *ProvisioningService) provision(ctx context.Context, userID string, req CreateUserRequest) (*ProvisionResult, error) {
	var account *models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile := &models.Profile{
			ID:       userID,
			FullName: req.FullName,
			Role:     req.Role,
			Kind:     req.Kind,
		}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}

		var err error
		account, err = s.createAccount(tx, userID)
		if err != nil {
			return err
		}

		if req.InitialBalance.IsPositive() {
			if _, err := s.ledger.depositTx(tx, account.ID, req.InitialBalance, OpeningDepositDescription); err != nil {
				return err
			}
		}

		return tx.Where("id = ?", account.ID).First(account).Error
	})
	if err != nil {
		return nil, err
	}

	return &ProvisionResult{
		UserID:        userID,
		AccountID:     account.ID,
		AccountNumber: account.Number,
		Balance:       account.Balance,
	}, nil
}

// createAccount вставляет счет, подбирая новый номер при коллизии.
// Каждая попытка идет в точке сохранения, чтобы ошибка не прерывала внешнюю транзакцию.
func (s *ProvisioningService) createAccount(tx *gorm.DB, userID string) (*models.Account, error) {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := s.numbers()
		if err != nil {
			return nil, err
		}

		account := &models.Account{UserID: userID, Number: number, Balance: decimal.Zero}
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(account).Error
		})
		if err == nil {
			return account, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		utils.LogDebug("Account number collision on attempt %d, retrying", attempt)
	}
	return nil, fmt.Errorf("не удалось подобрать уникальный номер счета за %d попыток", maxNumberAttempts)
}

// compensate удаляет личность, оставшуюся без профиля.
// Ошибка только логируется для ручной сверки.
func (s *ProvisioningService) compensate(ctx context.Context, identityID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.identities.DeleteIdentity(ctx, identityID); err != nil {
		utils.RecordReconcileFailure()
		utils.LogError("[RECONCILE] identity %s has no profile (cause: %v), delete failed: %v", identityID, cause, err)
		return
	}
	utils.LogInfo("Identity %s removed after failed provisioning: %v", identityID, cause)
}

// ListClients возвращает клиентов с их счетами и итоги по балансам
func (s *ProvisioningService) ListClients(ctx context.Context, callerID string) (*ClientList, error) {
	if _, err := s.requireStaff(ctx, callerID); err != nil {
		return nil, err
	}

	var profiles []models.Profile
	err := s.db.WithContext(ctx).
		Preload("Account").
		Where("role = ?", models.RoleClient).
		Order("full_name").
		Find(&profiles).Error
	if err != nil {
		return nil, s.classify("list clients", err)
	}

	list := &ClientList{
		Clients:        make([]ClientSummary, 0, len(profiles)),
		TotalBalance:   decimal.Zero,
		AverageBalance: decimal.Zero,
	}
	for _, p := range profiles {
		summary := ClientSummary{
			UserID:   p.ID,
			FullName: p.FullName,
			Kind:     p.Kind,
			Balance:  decimal.Zero,
		}
		if p.Account != nil {
			summary.AccountID = p.Account.ID
			summary.AccountNumber = p.Account.Number
			summary.Balance = p.Account.Balance
		}
		list.TotalBalance = list.TotalBalance.Add(summary.Balance)
		list.Clients = append(list.Clients, summary)
	}

	list.Count = len(list.Clients)
	if list.Count > 0 {
		list.AverageBalance = list.TotalBalance.Div(decimal.NewFromInt(int64(list.Count))).Round(2)
	}

	return list, nil
}

// UpdateProfileName меняет имя пользователя
func (s *ProvisioningService) UpdateProfileName(ctx context.Context, callerID, userID string, req UpdateProfileRequest) error {
	if _, err := s.requireStaff(ctx, callerID); err != nil {
		return err
	}
	if err := validateStruct(s.validator, req); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userID).
		Update("full_name", req.FullName)
	if res.Error != nil {
		return s.classify("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser удаляет пользователя: операции по его счету, дружбы, счет, профиль, затем личность
func (s *ProvisioningService) DeleteUser(ctx context.Context, callerID, userID string) (err error) {
	startTime := time.Now()
	defer func() {
		utils.LogOperation("DeleteUser", startTime, err)
	}()

	if _, err := s.requireStaff(ctx, callerID); err != nil {
		return err
	}
	if callerID == userID {
		return ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.Where("id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		var accounts []models.Account
		if err := tx.Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
			return err
		}
		for _, account := range accounts {
			err := tx.Where("origin_account_id = ? OR destination_account_id = ?", account.ID, account.ID).
				Delete(&models.Transaction{}).Error
			if err != nil {
				return err
			}
		}

		if err := tx.Where("requester_id = ? OR receiver_id = ?", userID, userID).Delete(&models.Friendship{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Account{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", userID).Delete(&models.Profile{}).Error
	})
	if err != nil {
		return s.classify("delete user", err)
	}

	// Банковские данные удалены, остаток в подсистеме личностей сверяется вручную
	if err := s.identities.DeleteIdentity(ctx, userID); err != nil {
		utils.RecordReconcileFailure()
		utils.LogError("[RECONCILE] identity %s survived user deletion: %v", userID, err)
	}
	return nil
}

// GetOverview возвращает профиль и счет пользователя
func (s *ProvisioningService) GetOverview(ctx context.Context, userID string) (*Overview, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	var profile models.Profile
	if err := s.db.WithContext(ctx).Preload("Account").Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.classify("overview", err)
	}
	if profile.Account == nil {
		return nil, ErrOriginAccountMissing
	}

	return &Overview{
		UserID:        profile.ID,
		FullName:      profile.FullName,
		Role:          profile.Role,
		Kind:          profile.Kind,
		AccountID:     profile.Account.ID,
		AccountNumber: profile.Account.Number,
		Balance:       profile.Account.Balance,
	}, nil
}

// AuthorizeStaff проверяет, что вызывающий относится к персоналу или администрации
func (s *ProvisioningService) AuthorizeStaff(ctx context.Context, callerID string) error {
	_, err := s.requireStaff(ctx, callerID)
	return err
}

// requireStaff проверяет роль вызывающего по сохраненному профилю
func (s *ProvisioningService) requireStaff(ctx context.Context, callerID string) (*models.Profile, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}

	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", callerID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForbidden
		}
		return nil, s.classify("load caller", err)
	}
	if !profile.IsStaff() {
		return nil, ErrForbidden
	}
	return &profile, nil
}

func (s *ProvisioningService) classify(operation string, err error) error {
	if isDomainError(err) {
		return err
	}
	utils.LogError("Provisioning %s failed: %v", operation, err)
	return fmt.Errorf("%w: %s", ErrOperationFailed, operation)
}

// generateAccountNumber генерирует номер счета из 10 цифр
func generateAccountNumber() (string, error) {
	return utils.GenerateNumericCode(models.AccountNumberLength)
}
