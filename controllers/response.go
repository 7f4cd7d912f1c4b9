package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"bancomunay/middleware"
	"bancomunay/services"
	"bancomunay/utils"
)

// maxBodyBytes предельный размер тела запроса
const maxBodyBytes = 1 << 20

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondWithJSON пишет ответ в формате JSON
func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		utils.LogError("Failed to encode response: %v", err)
	}
}

// respondWithError переводит ошибку сервиса в HTTP статус и код
func respondWithError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Детали инфраструктуры уже залогированы сервисом
		message = services.ErrOperationFailed.Error()
	}
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, services.ErrOriginAccountMissing):
		return http.StatusNotFound, "origin_account_missing"
	case errors.Is(err, services.ErrDestinationNotFound):
		return http.StatusNotFound, "destination_not_found"
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, services.ErrFriendshipNotFound):
		return http.StatusNotFound, "friendship_not_found"
	case errors.Is(err, services.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email"
	case errors.Is(err, services.ErrFriendshipExists):
		return http.StatusConflict, "friendship_exists"
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, services.ErrSelfTransfer):
		return http.StatusUnprocessableEntity, "self_transfer"
	case errors.Is(err, services.ErrSelfFriendship):
		return http.StatusUnprocessableEntity, "self_friendship"
	default:
		return http.StatusInternalServerError, "operation_failed"
	}
}

// decodeJSON строго разбирает тело запроса: неизвестные поля и лишние данные отклоняются
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return &services.ValidationError{Messages: []string{"некорректное тело запроса: " + err.Error()}}
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &services.ValidationError{Messages: []string{"тело запроса должно содержать один JSON объект"}}
	}
	return nil
}

// currentUser возвращает ID пользователя, установленный AuthMiddleware
func currentUser(r *http.Request) string {
	userID, _, err := middleware.GetUserFromContext(r)
	if err != nil {
		return ""
	}
	return userID
}
