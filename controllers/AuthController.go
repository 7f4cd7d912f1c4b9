package controllers

import (
	"net/http"
	"time"

	"bancomunay/config"
	"bancomunay/middleware"
	"bancomunay/services"

	"github.com/go-playground/validator/v10"
)

type AuthController struct {
	provisioner *services.ProvisioningService
	identities  services.IdentityProvider
	validate    *validator.Validate
	config      *config.Config
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignInResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
}

// SignUpResponse данные созданного счета вместе с токеном
type SignUpResponse struct {
	UserID        string `json:"user_id"`
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	Token         string `json:"token"`
}

func NewAuthController(provisioner *services.ProvisioningService, identities services.IdentityProvider, cfg *config.Config) *AuthController {
	return &AuthController{
		provisioner: provisioner,
		identities:  identities,
		validate:    services.NewValidator(),
		config:      cfg,
	}
}

// SignIn обрабатывает вход пользователя
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	// Валидация запроса
	if err := c.validate.Struct(req); err != nil {
		respondWithError(w, &services.ValidationError{Messages: []string{"email и пароль обязательны"}})
		return
	}

	// Проверяем учетные данные
	identity, err := c.identities.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(w, err)
		return
	}

	// Создаем JWT токен
	token, expiresAt, err := middleware.IssueToken(c.jwtKey(), identity.ID, identity.Email, c.config.TokenTTL())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SignInResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    identity.ID,
		Email:     identity.Email,
	})
}

// SignUp самостоятельная регистрация ученика. Начальный баланс, роль и тип из запроса игнорируются.
func (c *AuthController) SignUp(w http.ResponseWriter, r *http.Request) {
	var req services.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	result, err := c.provisioner.Register(r.Context(), req)
	if err != nil {
		respondWithError(w, err)
		return
	}

	// Генерация JWT токена
	token, _, err := middleware.IssueToken(c.jwtKey(), result.UserID, req.Email, c.config.TokenTTL())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, SignUpResponse{
		UserID:        result.UserID,
		AccountID:     result.AccountID,
		AccountNumber: result.AccountNumber,
		Balance:       result.Balance.StringFixed(2),
		Token:         token,
	})
}

// GetJWTKey возвращает ключ для JWT
func (c *AuthController) GetJWTKey() string {
	return c.config.JWT.SecretKey
}

func (c *AuthController) jwtKey() []byte {
	return []byte(c.config.JWT.SecretKey)
}
