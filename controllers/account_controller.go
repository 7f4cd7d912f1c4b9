package controllers

import (
	"net/http"
	"strconv"

	"bancomunay/models"
	"bancomunay/services"
)

// AccountController операции клиента со своим счетом
type AccountController struct {
	ledger      *services.LedgerService
	provisioner *services.ProvisioningService
}

// TransactionsResponse последние операции по счету
type TransactionsResponse struct {
	AccountID    string               `json:"account_id"`
	Transactions []models.Transaction `json:"transactions"`
}

// NewAccountController создает новый экземпляр AccountController
func NewAccountController(ledger *services.LedgerService, provisioner *services.ProvisioningService) *AccountController {
	return &AccountController{
		ledger:      ledger,
		provisioner: provisioner,
	}
}

// GetMe возвращает профиль и счет текущего пользователя
func (c *AccountController) GetMe(w http.ResponseWriter, r *http.Request) {
	overview, err := c.provisioner.GetOverview(r.Context(), currentUser(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, overview)
}

// GetTransactions возвращает последние движения по счету текущего пользователя
func (c *AccountController) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	if userID == "" {
		respondWithError(w, services.ErrUnauthenticated)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, &services.ValidationError{Messages: []string{"параметр limit должен быть положительным числом"}})
			return
		}
		limit = parsed
	}

	account, err := c.ledger.GetAccountByUser(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	transactions, err := c.ledger.ListTransactions(r.Context(), account.ID, limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, TransactionsResponse{
		AccountID:    account.ID,
		Transactions: transactions,
	})
}

// Transfer переводит средства со счета текущего пользователя
func (c *AccountController) Transfer(w http.ResponseWriter, r *http.Request) {
	var req services.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	// Отправитель всегда берется из токена
	req.CallerID = currentUser(r)

	result, err := c.ledger.Transfer(r.Context(), req)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}
