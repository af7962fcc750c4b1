package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manorfm/mcpauth/internal/application"
	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func TestAuthHandler_Login(t *testing.T) {
	loginResult := &application.LoginResult{
		AccessToken: "token",
		TokenType:   "bearer",
		ExpiresIn:   3600,
		Scope:       "mcp:read mcp:write",
		SessionID:   "session",
	}

	tests := []struct {
		name           string
		contentType    string
		body           string
		mockSetup      func(*mockAuthService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "json body",
			contentType: "application/json",
			body:        `{"username":"user1","password":"password123"}`,
			mockSetup: func(m *mockAuthService) {
				m.On("Login", mock.Anything, "user1", "password123").Return(loginResult, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"access_token":"token","token_type":"bearer","expires_in":3600,"scope":"mcp:read mcp:write","session_id":"session"}`,
		},
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=user1&password=password123",
			mockSetup: func(m *mockAuthService) {
				m.On("Login", mock.Anything, "user1", "password123").Return(loginResult, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"access_token":"token","token_type":"bearer","expires_in":3600,"scope":"mcp:read mcp:write","session_id":"session"}`,
		},
		{
			name:        "invalid credentials",
			contentType: "application/json",
			body:        `{"username":"user1","password":"nope"}`,
			mockSetup: func(m *mockAuthService) {
				m.On("Login", mock.Anything, "user1", "nope").Return(nil, domain.ErrInvalidCredentials)
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"invalid_credentials","error_description":"Invalid username or password"}`,
		},
		{
			name:        "missing fields",
			contentType: "application/json",
			body:        `{}`,
			mockSetup: func(m *mockAuthService) {
				m.On("Login", mock.Anything, "", "").Return(nil, domain.ErrMissingParameters)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"missing_parameters","error_description":"Missing required parameters"}`,
		},
		{
			name:           "malformed json",
			contentType:    "application/json",
			body:           `{"username":`,
			mockSetup:      func(m *mockAuthService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid_request","error_description":"Invalid request body"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(mockAuthService)
			tt.mockSetup(service)
			handler := NewAuthHandler(service, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			handler.LoginHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			service.AssertExpectations(t)
		})
	}
}
