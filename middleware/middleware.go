package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"bancomunay/utils"

	"github.com/gorilla/mux"
)

// LoggingResponseWriter запоминает статус и размер ответа
type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *LoggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware логирует запрос и записывает метрики
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Создаем обертку для ResponseWriter
		lrw := &LoggingResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Обрабатываем запрос
		next.ServeHTTP(lrw, r)

		duration := time.Since(startTime)
		utils.LogInfo("Request: %s %s - Status: %d - Size: %d - Duration: %v",
			r.Method,
			r.URL.Path,
			lrw.statusCode,
			lrw.size,
			duration,
		)
		utils.RecordRequest(r.Method, routeTemplate(r), lrw.statusCode, duration)
	})
}

// Recovery перехватывает панику обработчика
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// Логируем панику
				utils.LogError("Panic recovered: %v", err)

				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Internal server error",
					"code":  "operation_failed",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RateLimit ограничивает частоту запросов с одного IP
func RateLimit(limiter *utils.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := clientIP(r)

			// Проверяем лимит
			if !limiter.Allow(clientIP) {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(limiter.GetResetTime(clientIP)).Seconds())+1))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests",
					"code":  "rate_limited",
				})
				return
			}

			// Добавляем заголовки с информацией о лимитах
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(clientIP)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(limiter.GetResetTime(clientIP).Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware выставляет заголовки CORS для веб-клиента
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// routeTemplate возвращает шаблон маршрута mux, чтобы метки метрик не зависели от id
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
