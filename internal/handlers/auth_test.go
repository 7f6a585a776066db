package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{
			name:       "Successful registration",
			method:     http.MethodPost,
			body:       `{"email":"new@example.com","password":"secret-pass"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Wrong method",
			method:     http.MethodGet,
			body:       "",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Bad JSON",
			method:     http.MethodPost,
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Invalid email",
			method:     http.MethodPost,
			body:       `{"email":"not-an-email","password":"secret-pass"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Short password",
			method:     http.MethodPost,
			body:       `{"email":"new@example.com","password":"short"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handler{Users: NewMockUserRepository(), RateLimiter: NewRateLimiter(100, time.Second)}

			req := httptest.NewRequest(tt.method, "/auth/register", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.Register(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestLogin(t *testing.T) {
	_ = os.Setenv("JWT_SECRET", strings.Repeat("a", 32))

	repo := SetupMockUser("user@example.com", "secret-pass")
	h := &Handler{Users: repo, RateLimiter: NewRateLimiter(100, time.Second)}

	body := `{"email":"user@example.com","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token in the response")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	_ = os.Setenv("JWT_SECRET", strings.Repeat("a", 32))

	repo := SetupMockUser("user@example.com", "secret-pass")
	h := &Handler{Users: repo, RateLimiter: NewRateLimiter(100, time.Second)}

	body := `{"email":"user@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	_ = os.Setenv("JWT_SECRET", strings.Repeat("a", 32))

	repo := SetupMockUser("user@example.com", "secret-pass")
	h := &Handler{Users: repo, RateLimiter: NewRateLimiter(1, time.Minute)}

	for i := 0; i < 2; i++ {
		body := `{"email":"user@example.com","password":"secret-pass"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.Login(rec, req)

		if i == 1 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("second attempt status = %d, want 429", rec.Code)
		}
	}
}
