package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bancomunay/database/dbtest"
	"bancomunay/models"

	"github.com/shopspring/decimal"
)

// Гонки на sqlite проходят по очереди через единственное соединение.
// Те же сценарии на postgres выполняются с настоящим пулом, и порядок
// задают только условный UPDATE и FOR UPDATE.

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	checkConcurrentWithdrawals(t, newTestEnv(t), 10)
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	checkOpposingTransfers(t, newTestEnv(t), 10)
}

func TestPostgresConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	checkConcurrentWithdrawals(t, newTestEnvWithDB(dbtest.NewPostgres(t)), 50)
}

func TestPostgresConcurrentOpposingTransfers(t *testing.T) {
	checkOpposingTransfers(t, newTestEnvWithDB(dbtest.NewPostgres(t)), 25)
}

// checkConcurrentWithdrawals запускает workers списаний по 11 со счета со 100
func checkConcurrentWithdrawals(t *testing.T, env *testEnv, workers int) {
	t.Helper()
	user := env.createUser(t, "Ana Quispe", "100", models.RoleClient)

	amount := dec("11")
	wantSuccesses := 9 // floor(100 / 11)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.ledger.Withdraw(context.Background(), WithdrawRequest{AccountID: user.AccountID, Amount: amount})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientFunds):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != wantSuccesses {
		t.Errorf("successes = %d, want %d", successes, wantSuccesses)
	}

	balance := env.balance(t, user.AccountID)
	if balance.IsNegative() {
		t.Fatalf("balance went negative: %s", balance)
	}
	want := dec("100").Sub(amount.Mul(decimal.NewFromInt(int64(successes))))
	if !balance.Equal(want) {
		t.Errorf("balance = %s, want %s after %d withdrawals", balance, want, successes)
	}
	if got := env.countTransactions(t, models.TransactionKindWithdrawal); got != int64(successes) {
		t.Errorf("retiro records = %d, want %d", got, successes)
	}
}

type transferOutcome struct {
	fromX bool
	err   error
}

// checkOpposingTransfers гоняет встречные переводы X->Y по 7 и Y->X по 3
func checkOpposingTransfers(t *testing.T, env *testEnv, pairs int) {
	t.Helper()
	x := env.createUser(t, "Ana Quispe", "50", models.RoleClient)
	y := env.createUser(t, "Luis Mamani", "50", models.RoleClient)

	var wg sync.WaitGroup
	start := make(chan struct{})
	outcomes := make(chan transferOutcome, 2*pairs)
	send := func(fromX bool, req TransferRequest) {
		defer wg.Done()
		<-start
		_, err := env.ledger.Transfer(context.Background(), req)
		outcomes <- transferOutcome{fromX: fromX, err: err}
	}
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go send(true, TransferRequest{CallerID: x.UserID, DestinationNumber: y.AccountNumber, Amount: dec("7")})
		go send(false, TransferRequest{CallerID: y.UserID, DestinationNumber: x.AccountNumber, Amount: dec("3")})
	}
	close(start)
	wg.Wait()
	close(outcomes)

	var fromX, fromY int64
	for o := range outcomes {
		switch {
		case o.err == nil && o.fromX:
			fromX++
		case o.err == nil:
			fromY++
		case errors.Is(o.err, ErrInsufficientFunds):
		default:
			// Взаимная блокировка или другой сбой означает нарушенный порядок блокировок
			t.Errorf("transfer (fromX=%v) error = %v", o.fromX, o.err)
		}
	}

	if fromX+fromY == 0 {
		t.Fatal("no transfer succeeded")
	}

	moved := dec("7").Mul(decimal.NewFromInt(fromX)).Sub(dec("3").Mul(decimal.NewFromInt(fromY)))
	balanceX := env.balance(t, x.AccountID)
	balanceY := env.balance(t, y.AccountID)
	if !balanceX.Equal(dec("50").Sub(moved)) || !balanceY.Equal(dec("50").Add(moved)) {
		t.Errorf("balances = %s/%s after %d X->Y and %d Y->X", balanceX, balanceY, fromX, fromY)
	}
	if balanceX.IsNegative() || balanceY.IsNegative() {
		t.Fatalf("balance went negative: %s/%s", balanceX, balanceY)
	}
	if got := env.countTransactions(t, models.TransactionKindTransfer); got != fromX+fromY {
		t.Errorf("transferencia records = %d, want %d", got, fromX+fromY)
	}
}
