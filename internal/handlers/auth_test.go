package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chat-broker/internal/identity"
	"chat-broker/internal/mocks"
	"chat-broker/internal/models"
	"chat-broker/internal/repositories"
)

func setupAuthRouter(users *mocks.UserRepositoryMock) (*gin.Engine, *identity.Service) {
	gin.SetMode(gin.TestMode)
	ids := identity.NewService(users, "test-secret", time.Minute, time.Hour)
	handler := NewAuthHandler(ids, nil)

	r := gin.New()
	r.POST("/signup", handler.Signup)
	r.POST("/signin", handler.Signin)
	r.POST("/jwt_refresh", handler.Refresh)
	return r, ids
}

func TestSignupSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, _ := setupAuthRouter(users)

	users.On("CreateUser", mock.Anything, "alice", "alice@example.com", mock.AnythingOfType("string")).
		Return(models.User{ID: 1, Username: "alice"}, nil).Once()

	body := bytes.NewBufferString(`{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
	req := httptest.NewRequest(http.MethodPost, "/signup", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	users.AssertExpectations(t)
}

func TestSignupDuplicateUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, _ := setupAuthRouter(users)

	users.On("CreateUser", mock.Anything, "alice", "alice@example.com", mock.AnythingOfType("string")).
		Return(models.User{}, repositories.ErrUserExists).Once()

	body := bytes.NewBufferString(`{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
	req := httptest.NewRequest(http.MethodPost, "/signup", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignupRejectsBadEmail(t *testing.T) {
	router, _ := setupAuthRouter(new(mocks.UserRepositoryMock))

	body := bytes.NewBufferString(`{"username":"alice","email":"not-an-email","password":"hunter22"}`)
	req := httptest.NewRequest(http.MethodPost, "/signup", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSigninIssuesTokenPair(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, ids := setupAuthRouter(users)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetUserByUsername", mock.Anything, "alice").
		Return(models.User{ID: 1, Username: "alice", PasswordHash: string(hash)}, nil).Once()

	body := bytes.NewBufferString(`{"username":"alice","password":"hunter22"}`)
	req := httptest.NewRequest(http.MethodPost, "/signin", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tokens identity.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	claims, err := ids.ValidateAccess(resp.Tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
}

func TestSigninWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, _ := setupAuthRouter(users)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetUserByUsername", mock.Anything, "alice").
		Return(models.User{ID: 1, Username: "alice", PasswordHash: string(hash)}, nil).Once()

	body := bytes.NewBufferString(`{"username":"alice","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/signin", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshWithInvalidToken(t *testing.T) {
	router, _ := setupAuthRouter(new(mocks.UserRepositoryMock))

	req := httptest.NewRequest(http.MethodPost, "/jwt_refresh", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
