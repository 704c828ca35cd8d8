package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type fakeAuthService struct {
	req models.LoginRequest
	err error
}

func (f *fakeAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token", ExpiresIn: 3600}, nil
}

func TestLoginCapturesClientMetadata(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"sam@example.com","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "browser")
	c, rec := newContext(req, nil)
	h.Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sam@example.com", svc.req.Email)
	assert.Equal(t, "browser", svc.req.UserAgent)
	assert.Contains(t, rec.Body.String(), `"access_token":"token"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{err: appErrors.ErrInvalidCredentials})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"sam@example.com","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	c, rec := newContext(req, nil)
	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeReturnsClaims(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{})

	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), &models.JWTClaims{UserID: "user-1", Email: "sam@example.com", Role: models.RoleStudent})
	h.Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"sam@example.com"`)

	c, rec = newContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
