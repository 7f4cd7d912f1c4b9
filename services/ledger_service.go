package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bancomunay/models"
	"bancomunay/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Лимиты выдачи истории операций
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// DepositRequest представляет данные для пополнения счета
type DepositRequest struct {
	AccountID   string          `json:"account_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// WithdrawRequest представляет данные для списания со счета
type WithdrawRequest struct {
	AccountID   string          `json:"account_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// TransferRequest представляет данные для перевода средств.
// Счет отправителя определяется по CallerID, а не передается клиентом.
type TransferRequest struct {
	CallerID          string          `json:"-"`
	DestinationNumber string          `json:"destination_account_number" validate:"required,account_number"`
	Amount            decimal.Decimal `json:"amount" validate:"amount"`
	Description       string          `json:"description" validate:"max=255"`
}

// OperationResult результат пополнения или списания
type OperationResult struct {
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id"`
	Balance       decimal.Decimal `json:"balance"`
}

// TransferResult подтверждение перевода
type TransferResult struct {
	TransactionID     string          `json:"transaction_id"`
	OriginAccountID   string          `json:"origin_account_id"`
	DestinationNumber string          `json:"destination_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Balance           decimal.Decimal `json:"balance"`
	CreatedAt         time.Time       `json:"created_at"`
}

// LedgerService единственный путь изменения баланса счетов.
// Каждое изменение выполняется вместе с записью в журнал в одной транзакции БД.
type LedgerService struct {
	db        *gorm.DB
	validator *validator.Validate
	notifier  Notifier
}

// NewLedgerService создает новый экземпляр LedgerService
func NewLedgerService(db *gorm.DB, notifier Notifier) *LedgerService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LedgerService{
		db:        db,
		validator: NewValidator(),
		notifier:  notifier,
	}
}

// Deposit пополняет счет
func (s *LedgerService) Deposit(ctx context.Context, req DepositRequest) (result *OperationResult, err error) {
	startTime := time.Now()
	defer func() {
		utils.LogOperation("Deposit", startTime, err)
		utils.RecordLedgerOperation("deposit", resultLabel(err), startTime)
	}()

	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	var account models.Account
	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = s.depositTx(tx, req.AccountID, req.Amount, req.Description)
		if err != nil {
			return err
		}
		return tx.Where("id = ?", req.AccountID).First(&account).Error
	})
	if err != nil {
		return nil, s.classify("deposit", err)
	}

	s.notifier.NotifyMovement(Movement{
		UserID:        account.UserID,
		AccountNumber: account.Number,
		Kind:          models.TransactionKindDeposit,
		Amount:        req.Amount,
		Balance:       account.Balance,
		Incoming:      true,
	})

	return &OperationResult{
		AccountID:     account.ID,
		TransactionID: record.ID,
		Balance:       account.Balance,
	}, nil
}

// Withdraw списывает средства со счета
func (s *LedgerService) Withdraw(ctx context.Context, req WithdrawRequest) (result *OperationResult, err error) {
	startTime := time.Now()
	defer func() {
		utils.LogOperation("Withdraw", startTime, err)
		utils.RecordLedgerOperation("withdraw", resultLabel(err), startTime)
	}()

	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	var account models.Account
	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Проверка баланса и списание выполняются одним условным UPDATE
		if err := s.debitTx(tx, req.AccountID, req.Amount); err != nil {
			return err
		}

		record = &models.Transaction{
			OriginAccountID: &req.AccountID,
			Amount:          req.Amount,
			Kind:            models.TransactionKindWithdrawal,
			Description:     req.Description,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", req.AccountID).First(&account).Error
	})
	if err != nil {
		return nil, s.classify("withdraw", err)
	}

	s.notifier.NotifyMovement(Movement{
		UserID:        account.UserID,
		AccountNumber: account.Number,
		Kind:          models.TransactionKindWithdrawal,
		Amount:        req.Amount,
		Balance:       account.Balance,
	})

	return &OperationResult{
		AccountID:     account.ID,
		TransactionID: record.ID,
		Balance:       account.Balance,
	}, nil
}

// Transfer переводит средства со счета вызывающего пользователя на счет с указанным номером
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (result *TransferResult, err error) {
	startTime := time.Now()
	defer func() {
		utils.LogOperation("Transfer", startTime, err)
		utils.RecordLedgerOperation("transfer", resultLabel(err), startTime)
	}()

	if req.CallerID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	var origin, destination models.Account
	var record *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Определяем счета участников
		if err := tx.Where("user_id = ?", req.CallerID).First(&origin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOriginAccountMissing
			}
			return err
		}
		if err := tx.Where("number = ?", req.DestinationNumber).First(&destination).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDestinationNotFound
			}
			return err
		}
		if origin.ID == destination.ID {
			return ErrSelfTransfer
		}

		// Блокируем строки в порядке возрастания id, чтобы встречные переводы не взаимоблокировались
		if err := lockAccounts(tx, origin.ID, destination.ID); err != nil {
			return err
		}

		if err := s.debitTx(tx, origin.ID, req.Amount); err != nil {
			return err
		}
		if err := s.creditTx(tx, destination.ID, req.Amount); err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrDestinationNotFound
			}
			return err
		}

		record = &models.Transaction{
			OriginAccountID:      &origin.ID,
			DestinationAccountID: &destination.ID,
			Amount:               req.Amount,
			Kind:                 models.TransactionKindTransfer,
			Description:          req.Description,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		// Перечитываем балансы после изменения
		if err := tx.Where("id = ?", origin.ID).First(&origin).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", destination.ID).First(&destination).Error
	})
	if err != nil {
		return nil, s.classify("transfer", err)
	}

	s.notifier.NotifyMovement(Movement{
		UserID:        origin.UserID,
		AccountNumber: origin.Number,
		Kind:          models.TransactionKindTransfer,
		Amount:        req.Amount,
		Balance:       origin.Balance,
	})
	s.notifier.NotifyMovement(Movement{
		UserID:        destination.UserID,
		AccountNumber: destination.Number,
		Kind:          models.TransactionKindTransfer,
		Amount:        req.Amount,
		Balance:       destination.Balance,
		Incoming:      true,
	})

	return &TransferResult{
		TransactionID:     record.ID,
		OriginAccountID:   origin.ID,
		DestinationNumber: destination.Number,
		Amount:            req.Amount,
		Balance:           origin.Balance,
		CreatedAt:         record.CreatedAt,
	}, nil
}

// GetAccount возвращает счет по ID
func (s *LedgerService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.findAccount(ctx, "id = ?", id)
}

// GetAccountByUser возвращает счет пользователя
func (s *LedgerService) GetAccountByUser(ctx context.Context, userID string) (*models.Account, error) {
	return s.findAccount(ctx, "user_id = ?", userID)
}

// GetAccountByNumber возвращает счет по публичному номеру
func (s *LedgerService) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return s.findAccount(ctx, "number = ?", number)
}

// ListTransactions возвращает последние операции по счету, новые первыми
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	transactions := []models.Transaction{}
	err := s.db.WithContext(ctx).
		Where("origin_account_id = ? OR destination_account_id = ?", accountID, accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, s.classify("list transactions", err)
	}

	return transactions, nil
}

func (s *LedgerService) findAccount(ctx context.Context, query string, arg string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where(query, arg).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, s.classify("find account", err)
	}
	return &account, nil
}

// depositTx зачисляет сумму и пишет запись deposito внутри переданной транзакции.
// Используется также при открытии счета.
func (s *LedgerService) depositTx(tx *gorm.DB, accountID string, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := s.creditTx(tx, accountID, amount); err != nil {
		return nil, err
	}

	record := &models.Transaction{
		DestinationAccountID: &accountID,
		Amount:               amount,
		Kind:                 models.TransactionKindDeposit,
		Description:          description,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// creditTx увеличивает баланс
func (s *LedgerService) creditTx(tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	res := tx.Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// debitTx уменьшает баланс, только если средств достаточно
func (s *LedgerService) debitTx(tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	res := tx.Model(&models.Account{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Ни одна строка не изменена: счета нет или не хватает средств
	var count int64
	if err := tx.Model(&models.Account{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrAccountNotFound
	}
	return ErrInsufficientFunds
}

// lockAccounts берет блокировки строк FOR UPDATE по возрастанию id
func lockAccounts(tx *gorm.DB, first, second string) error {
	ids := []string{first, second}
	if second < first {
		ids = []string{second, first}
	}
	for _, id := range ids {
		var account models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", id).
			First(&account).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// classify пропускает доменные ошибки и скрывает детали инфраструктурных
func (s *LedgerService) classify(operation string, err error) error {
	if isDomainError(err) {
		return err
	}
	utils.LogError("Ledger %s failed: %v", operation, err)
	return fmt.Errorf("%w: %s", ErrOperationFailed, operation)
}

// isDomainError сообщает, является ли ошибка ожидаемым отказом, а не сбоем
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrValidation,
		ErrInvalidAmount,
		ErrUnauthenticated,
		ErrForbidden,
		ErrAccountNotFound,
		ErrOriginAccountMissing,
		ErrDestinationNotFound,
		ErrUserNotFound,
		ErrFriendshipNotFound,
		ErrInsufficientFunds,
		ErrSelfTransfer,
		ErrSelfFriendship,
		ErrDuplicateEmail,
		ErrFriendshipExists,
		ErrOperationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// resultLabel короткий код исхода для метрик
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrDestinationNotFound), errors.Is(err, ErrOriginAccountMissing):
		return "not_found"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}
