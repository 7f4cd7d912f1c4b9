package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"bancomunay/models"
	"bancomunay/utils"

	"gorm.io/gorm"
)

func TestRegisterForcesZeroBalance(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.provisioner.Register(context.Background(), CreateUserRequest{
		Email:          "nina@colegio.test",
		Password:       "secret123",
		FullName:       "Nina Condori",
		InitialBalance: dec("500.00"),
		Role:           models.RoleAdmin,
		Kind:           models.KindParent,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	assertBalance(t, result.Balance, "0")
	assertBalance(t, env.balance(t, result.AccountID), "0")
	if !utils.IsNumericCode(result.AccountNumber, models.AccountNumberLength) {
		t.Errorf("account number %q is not 10 digits", result.AccountNumber)
	}

	var profile models.Profile
	if err := env.db.Where("id = ?", result.UserID).First(&profile).Error; err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.Role != models.RoleClient || profile.Kind != models.KindStudent {
		t.Errorf("profile = %s/%s, want cliente/alumno", profile.Role, profile.Kind)
	}
	if got := env.countTransactions(t, models.TransactionKindDeposit); got != 0 {
		t.Errorf("deposito records = %d, want 0", got)
	}
}

func TestCreateByAdminWithOpeningDeposit(t *testing.T) {
	env := newTestEnv(t)
	staff := env.createUser(t, "Profesora Rosa", "0", models.RoleStaff)

	result, err := env.provisioner.CreateByAdmin(context.Background(), staff.UserID, CreateUserRequest{
		Email:          "pedro@colegio.test",
		Password:       "secret123",
		FullName:       "Pedro Huaman",
		InitialBalance: dec("100.00"),
	})
	if err != nil {
		t.Fatalf("CreateByAdmin() error = %v", err)
	}

	assertBalance(t, env.balance(t, result.AccountID), "100.00")

	var records []models.Transaction
	if err := env.db.Where("destination_account_id = ?", result.AccountID).Find(&records).Error; err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Kind != models.TransactionKindDeposit || records[0].Description != OpeningDepositDescription {
		t.Errorf("opening record = %s %q", records[0].Kind, records[0].Description)
	}

	var profile models.Profile
	if err := env.db.Where("id = ?", result.UserID).First(&profile).Error; err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.Role != models.RoleClient || profile.Kind != models.KindStudent {
		t.Errorf("profile defaults = %s/%s, want cliente/alumno", profile.Role, profile.Kind)
	}
}

func TestCreateByAdminRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	client := env.createUser(t, "Ana Quispe", "0", models.RoleClient)

	req := CreateUserRequest{
		Email:          "intruso@colegio.test",
		Password:       "secret123",
		FullName:       "Intruso",
		InitialBalance: dec("1000"),
	}

	if _, err := env.provisioner.CreateByAdmin(context.Background(), client.UserID, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("CreateByAdmin(client) error = %v, want ErrForbidden", err)
	}
	if _, err := env.provisioner.CreateByAdmin(context.Background(), "", req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("CreateByAdmin(anonymous) error = %v, want ErrUnauthenticated", err)
	}

	var count int64
	env.db.Model(&models.Identity{}).Where("email = ?", req.Email).Count(&count)
	if count != 0 {
		t.Errorf("identity created for forbidden request")
	}
}

func TestCreateRejectsNegativeInitialBalance(t *testing.T) {
	env := newTestEnv(t)
	staff := env.createUser(t, "Profesora Rosa", "0", models.RoleAdmin)

	_, err := env.provisioner.CreateByAdmin(context.Background(), staff.UserID, CreateUserRequest{
		Email:          "pedro@colegio.test",
		Password:       "secret123",
		FullName:       "Pedro Huaman",
		InitialBalance: dec("-1"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("CreateByAdmin() error = %v, want ErrValidation", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	req := CreateUserRequest{Email: "nina@colegio.test", Password: "secret123", FullName: "Nina Condori"}

	if _, err := env.provisioner.Register(context.Background(), req); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	req.Email = "NINA@colegio.test"
	if _, err := env.provisioner.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateEmail", err)
	}

	var profiles int64
	env.db.Model(&models.Profile{}).Count(&profiles)
	if profiles != 1 {
		t.Errorf("profiles = %d, want 1", profiles)
	}
}

func TestProvisioningFailureRemovesIdentity(t *testing.T) {
	env := newTestEnv(t)

	err := env.db.Callback().Create().Before("gorm:create").Register("test:fail_profile", func(tx *gorm.DB) {
		if tx.Statement.Table == "profiles" {
			_ = tx.AddError(errors.New("profiles table unavailable"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = env.provisioner.Register(context.Background(), CreateUserRequest{
		Email:    "nina@colegio.test",
		Password: "secret123",
		FullName: "Nina Condori",
	})
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("Register() error = %v, want ErrOperationFailed", err)
	}

	var identities, accounts int64
	env.db.Model(&models.Identity{}).Count(&identities)
	env.db.Model(&models.Account{}).Count(&accounts)
	if identities != 0 || accounts != 0 {
		t.Errorf("leftovers: identities=%d accounts=%d", identities, accounts)
	}
}

// failingDeleteProvider не может удалить личность
type failingDeleteProvider struct {
	IdentityProvider
}

func (failingDeleteProvider) DeleteIdentity(context.Context, string) error {
	return errors.New("identity service unreachable")
}

func TestCompensationFailureIsLoggedForReconcile(t *testing.T) {
	env := newTestEnv(t)
	env.provisioner.identities = failingDeleteProvider{IdentityProvider: env.identities}

	var buf bytes.Buffer
	utils.ErrorLogger.SetOutput(&buf)
	t.Cleanup(func() { utils.ErrorLogger.SetOutput(os.Stderr) })

	env.provisioner.numbers = func() (string, error) { return "", errors.New("entropy exhausted") }

	_, err := env.provisioner.Register(context.Background(), CreateUserRequest{
		Email:    "nina@colegio.test",
		Password: "secret123",
		FullName: "Nina Condori",
	})
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("Register() error = %v, want ErrOperationFailed", err)
	}

	if !strings.Contains(buf.String(), "[RECONCILE]") {
		t.Errorf("reconcile marker not logged, got %q", buf.String())
	}
}

func TestAccountNumberCollisionIsRetried(t *testing.T) {
	env := newTestEnv(t)

	numbers := []string{"1111111111", "1111111111", "2222222222"}
	env.provisioner.numbers = func() (string, error) {
		n := numbers[0]
		numbers = numbers[1:]
		return n, nil
	}

	first := env.createUser(t, "Ana Quispe", "0", models.RoleClient)
	second := env.createUser(t, "Luis Mamani", "25", models.RoleClient)

	if first.AccountNumber != "1111111111" {
		t.Errorf("first number = %s", first.AccountNumber)
	}
	if second.AccountNumber != "2222222222" {
		t.Errorf("second number = %s, want retried 2222222222", second.AccountNumber)
	}
	assertBalance(t, env.balance(t, second.AccountID), "25")
}

func TestAccountNumberCollisionGivesUp(t *testing.T) {
	env := newTestEnv(t)
	env.provisioner.numbers = func() (string, error) { return "1111111111", nil }
	env.createUser(t, "Ana Quispe", "0", models.RoleClient)

	_, err := env.provisioner.Register(context.Background(), CreateUserRequest{
		Email:    "luis@colegio.test",
		Password: "secret123",
		FullName: "Luis Mamani",
	})
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("Register() error = %v, want ErrOperationFailed", err)
	}

	var count int64
	env.db.Model(&models.Identity{}).Where("email = ?", "luis@colegio.test").Count(&count)
	if count != 0 {
		t.Errorf("identity was not compensated")
	}
}

func TestDeleteUserCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "Director", "0", models.RoleAdmin)
	x := env.createUser(t, "Ana Quispe", "100", models.RoleClient)
	y := env.createUser(t, "Luis Mamani", "0", models.RoleClient)

	if _, err := env.ledger.Transfer(ctx, TransferRequest{CallerID: x.UserID, DestinationNumber: y.AccountNumber, Amount: dec("40")}); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if _, err := env.friends.Request(ctx, x.UserID, FriendRequest{AccountNumber: y.AccountNumber}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if err := env.provisioner.DeleteUser(ctx, y.UserID, x.UserID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("DeleteUser(by client) error = %v, want ErrForbidden", err)
	}
	if err := env.provisioner.DeleteUser(ctx, admin.UserID, x.UserID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	for _, check := range []struct {
		model interface{}
		query string
		arg   string
	}{
		{&models.Profile{}, "id = ?", x.UserID},
		{&models.Identity{}, "id = ?", x.UserID},
		{&models.Account{}, "id = ?", x.AccountID},
		{&models.Friendship{}, "requester_id = ?", x.UserID},
		{&models.Transaction{}, "origin_account_id = ? OR destination_account_id = ?", x.AccountID},
	} {
		var count int64
		args := []interface{}{check.arg}
		if strings.Count(check.query, "?") == 2 {
			args = append(args, check.arg)
		}
		env.db.Model(check.model).Where(check.query, args...).Count(&count)
		if count != 0 {
			t.Errorf("%T rows left for deleted user: %d", check.model, count)
		}
	}

	assertBalance(t, env.balance(t, y.AccountID), "40")

	if err := env.provisioner.DeleteUser(ctx, admin.UserID, x.UserID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second DeleteUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestListClientsTotals(t *testing.T) {
	env := newTestEnv(t)
	staff := env.createUser(t, "Profesora Rosa", "999", models.RoleStaff)
	env.createUser(t, "Ana Quispe", "100", models.RoleClient)
	env.createUser(t, "Luis Mamani", "50", models.RoleClient)

	list, err := env.provisioner.ListClients(context.Background(), staff.UserID)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}

	if list.Count != 2 {
		t.Fatalf("count = %d, want 2 (staff excluded)", list.Count)
	}
	assertBalance(t, list.TotalBalance, "150")
	assertBalance(t, list.AverageBalance, "75")
	if list.Clients[0].FullName != "Ana Quispe" || list.Clients[0].AccountNumber == "" {
		t.Errorf("first client = %+v", list.Clients[0])
	}

	client := env.createUser(t, "Eva Flores", "0", models.RoleClient)
	if _, err := env.provisioner.ListClients(context.Background(), client.UserID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ListClients(client) error = %v, want ErrForbidden", err)
	}
}

func TestUpdateProfileName(t *testing.T) {
	env := newTestEnv(t)
	staff := env.createUser(t, "Profesora Rosa", "0", models.RoleStaff)
	user := env.createUser(t, "Ana Quispe", "0", models.RoleClient)
	ctx := context.Background()

	if err := env.provisioner.UpdateProfileName(ctx, staff.UserID, user.UserID, UpdateProfileRequest{FullName: "Ana Quispe Rojas"}); err != nil {
		t.Fatalf("UpdateProfileName() error = %v", err)
	}

	overview, err := env.provisioner.GetOverview(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetOverview() error = %v", err)
	}
	if overview.FullName != "Ana Quispe Rojas" {
		t.Errorf("full name = %q", overview.FullName)
	}

	if err := env.provisioner.UpdateProfileName(ctx, staff.UserID, "missing", UpdateProfileRequest{FullName: "Nadie"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateProfileName(missing) error = %v, want ErrUserNotFound", err)
	}
	if err := env.provisioner.UpdateProfileName(ctx, staff.UserID, user.UserID, UpdateProfileRequest{FullName: "A"}); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateProfileName(short) error = %v, want ErrValidation", err)
	}
}

func TestGetOverview(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Ana Quispe", "12.50", models.RoleClient)

	overview, err := env.provisioner.GetOverview(context.Background(), user.UserID)
	if err != nil {
		t.Fatalf("GetOverview() error = %v", err)
	}
	if overview.AccountNumber != user.AccountNumber || overview.Role != models.RoleClient {
		t.Errorf("overview = %+v", overview)
	}
	assertBalance(t, overview.Balance, "12.50")

	if _, err := env.provisioner.GetOverview(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetOverview(missing) error = %v, want ErrUserNotFound", err)
	}
}
