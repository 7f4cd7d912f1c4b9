package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bancomunay/utils"
)

var testKey = []byte("test-secret")

func echoUser(w http.ResponseWriter, r *http.Request) {
	userID, _, err := GetUserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(userID))
}

func TestAuthMiddleware(t *testing.T) {
	valid, _, err := IssueToken(testKey, "user-1", "ana@colegio.test", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, _, _ := IssueToken(testKey, "user-1", "ana@colegio.test", -time.Minute)
	foreign, _, _ := IssueToken([]byte("other-secret"), "user-1", "ana@colegio.test", time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + valid, http.StatusOK},
		{"valid raw token", valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"foreign signature", "Bearer " + foreign, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
	}

	handler := AuthMiddleware(testKey)(http.HandlerFunc(echoUser))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus == http.StatusOK && rr.Body.String() != "user-1" {
				t.Errorf("user in context = %q, want user-1", rr.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := utils.NewRateLimiter(2, time.Minute)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signIn", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		statuses = append(statuses, rr.Code)
	}

	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}

	// Другой клиент не затронут
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signIn", nil)
	req.RemoteAddr = "10.0.0.8:5555"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("other client status = %d", rr.Code)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORSMiddleware("https://banco.colegio.test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/transfers", nil))

	if rr.Code != http.StatusNoContent || called {
		t.Errorf("preflight status = %d, handler called = %v", rr.Code, called)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://banco.colegio.test" {
		t.Errorf("allow origin = %q", got)
	}
}
