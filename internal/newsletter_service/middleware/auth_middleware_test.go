package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret"

func signedToken(t *testing.T, secret string, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func runAuthMiddleware(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *AuthenticatedUser) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var captured *AuthenticatedUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserFromContext(r.Context()); ok {
			captured = &user
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/newsletters", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	AuthMiddleware(testSecret, logger)(next).ServeHTTP(rec, req)
	return rec, captured
}

func TestAuthMiddleware_ValidTokenInjectsUser(t *testing.T) {
	userID := uuid.New()
	rec, user := runAuthMiddleware(t, "Bearer "+signedToken(t, testSecret, userID.String()))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, userID, user.ID)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	rec, user := runAuthMiddleware(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, user)
}

func TestAuthMiddleware_WrongScheme(t *testing.T) {
	rec, user := runAuthMiddleware(t, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, user)
}

func TestAuthMiddleware_BadSignature(t *testing.T) {
	rec, user := runAuthMiddleware(t, "Bearer "+signedToken(t, "some-other-secret", uuid.NewString()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, user)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, user := runAuthMiddleware(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, user)
}

func TestAuthMiddleware_NonUUIDSubject(t *testing.T) {
	rec, user := runAuthMiddleware(t, "Bearer "+signedToken(t, testSecret, "not-a-uuid"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, user)
}
