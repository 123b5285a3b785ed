package handler

import (
	"net/http/httptest"
	"testing"

	"vizboard/dashboard/internal/pkg/auth"
)

func TestAuthorizeAcceptsMintedToken(t *testing.T) {
	token, err := auth.GenerateToken(7)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/api/datasets", nil)
	req.Header.Set("Bearer", token)

	claims, err := authorize(req)
	if err != nil {
		t.Fatalf("authorize() error = %v", err)
	}
	if claims.UserID != 7 {
		t.Errorf("UserID = %d, want 7", claims.UserID)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"garbage token", "not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/datasets", nil)
			if tc.token != "" {
				req.Header.Set("Bearer", tc.token)
			}
			if _, err := authorize(req); err == nil {
				t.Error("authorize() = nil, want error")
			}
		})
	}
}
