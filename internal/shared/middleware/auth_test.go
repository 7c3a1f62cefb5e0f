package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, secret []byte, userID int64, expiresAt time.Time) string {
	t.Helper()
	claims := SessionClaims{
		UserID: userID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func TestAuth(t *testing.T) {
	secret := []byte("test-secret")
	validToken := signTestToken(t, secret, 1, time.Now().Add(time.Hour))
	expiredToken := signTestToken(t, secret, 1, time.Now().Add(-time.Hour))
	wrongKeyToken := signTestToken(t, []byte("other-secret"), 1, time.Now().Add(time.Hour))

	tests := []struct {
		name           string
		setupRequest   func(r *http.Request)
		expectedStatus int
		expectedUser   bool
	}{
		{
			name: "Valid Token in Cookie",
			setupRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "access_token", Value: validToken})
			},
			expectedStatus: http.StatusOK,
			expectedUser:   true,
		},
		{
			name: "Valid Token in Header",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+validToken)
			},
			expectedStatus: http.StatusOK,
			expectedUser:   true,
		},
		{
			name:           "No Token",
			setupRequest:   func(r *http.Request) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Malformed Header",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", validToken)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Garbage Token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer not-a-token")
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Expired Token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+expiredToken)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Wrong Signing Key",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+wrongKeyToken)
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID, _ = r.Context().Value(UserIDKey).(int64)
				w.WriteHeader(http.StatusOK)
			})

			handler := Auth(secret)(next)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setupRequest(req)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if tt.expectedUser && gotUserID != 1 {
				t.Errorf("user id in context = %d, want 1", gotUserID)
			}
		})
	}
}
