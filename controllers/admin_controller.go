package controllers

import (
	"net/http"

	"bancomunay/services"

	"github.com/gorilla/mux"
)

// AdminController операции персонала: пользователи и ручные движения по счетам
type AdminController struct {
	ledger      *services.LedgerService
	provisioner *services.ProvisioningService
}

// NewAdminController создает новый экземпляр AdminController
func NewAdminController(ledger *services.LedgerService, provisioner *services.ProvisioningService) *AdminController {
	return &AdminController{
		ledger:      ledger,
		provisioner: provisioner,
	}
}

// StaffOnly пропускает только персонал и администраторов. Роль берется из сохраненного профиля.
func (c *AdminController) StaffOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := c.provisioner.AuthorizeStaff(r.Context(), currentUser(r)); err != nil {
			respondWithError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateUser создает пользователя со счетом и начальным балансом
func (c *AdminController) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req services.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	result, err := c.provisioner.CreateByAdmin(r.Context(), currentUser(r), req)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// ListClients возвращает клиентов с балансами и итогами
func (c *AdminController) ListClients(w http.ResponseWriter, r *http.Request) {
	list, err := c.provisioner.ListClients(r.Context(), currentUser(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// UpdateUser меняет имя пользователя
func (c *AdminController) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	userID := mux.Vars(r)["id"]
	if err := c.provisioner.UpdateProfileName(r.Context(), currentUser(r), userID, req); err != nil {
		respondWithError(w, err)
		return
	}

	overview, err := c.provisioner.GetOverview(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, overview)
}

// DeleteUser удаляет пользователя вместе со счетом и историей
func (c *AdminController) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := c.provisioner.DeleteUser(r.Context(), currentUser(r), mux.Vars(r)["id"]); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deposit пополняет указанный счет
func (c *AdminController) Deposit(w http.ResponseWriter, r *http.Request) {
	var req services.DepositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	req.AccountID = mux.Vars(r)["id"]

	result, err := c.ledger.Deposit(r.Context(), req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Withdraw списывает средства с указанного счета
func (c *AdminController) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req services.WithdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	req.AccountID = mux.Vars(r)["id"]

	result, err := c.ledger.Withdraw(r.Context(), req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
