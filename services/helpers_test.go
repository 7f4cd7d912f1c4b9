package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"bancomunay/database/dbtest"
	"bancomunay/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testEnv struct {
	db          *gorm.DB
	identities  *LocalIdentityProvider
	ledger      *LedgerService
	provisioner *ProvisioningService
	friends     *FriendshipService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDB(dbtest.New(t))
}

func newTestEnvWithDB(db *gorm.DB) *testEnv {
	identities := NewLocalIdentityProvider(db, bcrypt.MinCost)
	ledger := NewLedgerService(db, NopNotifier{})
	return &testEnv{
		db:          db,
		identities:  identities,
		ledger:      ledger,
		provisioner: NewProvisioningService(db, identities, ledger),
		friends:     NewFriendshipService(db),
	}
}

var emailSeq int64

// createUser создает пользователя с начальным балансом в обход проверки роли
func (e *testEnv) createUser(t *testing.T, name, balance, role string) *ProvisionResult {
	t.Helper()

	result, err := e.provisioner.createAccountAndProfile(context.Background(), CreateUserRequest{
		Email:          fmt.Sprintf("user%d@colegio.test", atomic.AddInt64(&emailSeq, 1)),
		Password:       "secret123",
		FullName:       name,
		InitialBalance: decimal.RequireFromString(balance),
		Role:           role,
		Kind:           models.KindStudent,
	})
	if err != nil {
		t.Fatalf("createUser(%s): %v", name, err)
	}
	return result
}

func (e *testEnv) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()

	var account models.Account
	if err := e.db.Where("id = ?", accountID).First(&account).Error; err != nil {
		t.Fatalf("load account %s: %v", accountID, err)
	}
	return account.Balance
}

func (e *testEnv) countTransactions(t *testing.T, kind models.TransactionKind) int64 {
	t.Helper()

	var count int64
	if err := e.db.Model(&models.Transaction{}).Where("kind = ?", kind).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalance(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("balance = %s, want %s", got, want)
	}
}
