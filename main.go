package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bancomunay/config"
	"bancomunay/controllers"
	"bancomunay/database"
	"bancomunay/middleware"
	"bancomunay/services"
	"bancomunay/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// newRouter собирает сервисы и маршруты поверх подключения к базе
func newRouter(cfg *config.Config, db *gorm.DB, identities services.IdentityProvider) http.Handler {
	// Инициализируем сервисы
	notifier := services.NewNotifier(cfg, identities)
	ledger := services.NewLedgerService(db, notifier)
	provisioner := services.NewProvisioningService(db, identities, ledger)
	friends := services.NewFriendshipService(db)

	// Инициализируем контроллеры
	authController := controllers.NewAuthController(provisioner, identities, cfg)
	accountController := controllers.NewAccountController(ledger, provisioner)
	adminController := controllers.NewAdminController(ledger, provisioner)
	friendshipController := controllers.NewFriendshipController(friends)

	// Создаем роутер
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)

	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Публичные маршруты для аутентификации
	auth := router.PathPrefix("/api/auth").Subrouter()
	auth.Use(middleware.RateLimit(utils.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)))
	auth.HandleFunc("/signUp", authController.SignUp).Methods("POST")
	auth.HandleFunc("/signIn", authController.SignIn).Methods("POST")

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(authController.GetJWTKey())))

	// Счет текущего пользователя
	protected.HandleFunc("/me", accountController.GetMe).Methods("GET")
	protected.HandleFunc("/me/transactions", accountController.GetTransactions).Methods("GET")
	protected.HandleFunc("/transfers", accountController.Transfer).Methods("POST")

	// Друзья
	protected.HandleFunc("/friends", friendshipController.ListFriends).Methods("GET")
	protected.HandleFunc("/friends", friendshipController.Request).Methods("POST")
	protected.HandleFunc("/friends/requests", friendshipController.ListRequests).Methods("GET")
	protected.HandleFunc("/friends/{id}", friendshipController.Respond).Methods("POST")

	// Маршруты персонала
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(adminController.StaffOnly)
	admin.HandleFunc("/users", adminController.CreateUser).Methods("POST")
	admin.HandleFunc("/users/{id}", adminController.UpdateUser).Methods("PATCH")
	admin.HandleFunc("/users/{id}", adminController.DeleteUser).Methods("DELETE")
	admin.HandleFunc("/clients", adminController.ListClients).Methods("GET")
	admin.HandleFunc("/accounts/{id}/deposit", adminController.Deposit).Methods("POST")
	admin.HandleFunc("/accounts/{id}/withdraw", adminController.Withdraw).Methods("POST")

	// CORS и восстановление после паники оборачивают весь роутер, чтобы покрыть preflight
	return middleware.Recovery(middleware.CORSMiddleware(cfg.CORS.AllowedOrigin)(router))
}

// healthHandler проверяет доступность базы данных
func healthHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			utils.LogError("Health check failed: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Log.Dir != "" {
		if err := utils.InitFileLoggers(cfg.Log.Dir); err != nil {
			log.Fatalf("Ошибка инициализации логов: %v", err)
		}
	}

	// Инициализируем подключение к базе данных
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	identities := services.NewLocalIdentityProvider(db.GetDB(), 0)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(cfg, db.GetDB(), identities),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Запускаем сервер
	go func() {
		utils.LogInfo("Сервер запущен на порту %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	// Ждем сигнал остановки
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		utils.LogError("Ошибка остановки сервера: %v", err)
	}
	utils.LogInfo("Сервер остановлен")
}
