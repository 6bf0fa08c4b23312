package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-cart/pkg/auth"
	"github.com/angelmondragon/storefront-cart/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID})
	require.NoError(t, err)
	return token
}

// serveAuth runs one request through mw and reports the status plus the user id the handler saw.
func serveAuth(mw func(http.Handler) http.Handler, authorization string) (int, string) {
	seen := "unreached"
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp.Code, seen
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	valid := mintTestToken(t, testJWT, userID)
	otherSecret := mintTestToken(t, config.JWTConfig{Secret: "other", Issuer: "storefront", ExpirationMinutes: 60}, userID)

	cases := []struct {
		name          string
		optional      bool
		authorization string
		status        int
		user          string
	}{
		{"required without header", false, "", http.StatusUnauthorized, "unreached"},
		{"required with garbage", false, "Bearer invalid", http.StatusUnauthorized, "unreached"},
		{"required with foreign signature", false, "Bearer " + otherSecret, http.StatusUnauthorized, "unreached"},
		{"required with basic scheme", false, "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "unreached"},
		{"required with valid token", false, "Bearer " + valid, http.StatusNoContent, userID.String()},
		{"optional anonymous", true, "", http.StatusNoContent, ""},
		{"optional with garbage", true, "Bearer garbage", http.StatusUnauthorized, "unreached"},
		{"optional lowercase scheme", true, "bearer " + valid, http.StatusNoContent, userID.String()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mw := Auth(testJWT, nil)
			if tc.optional {
				mw = OptionalAuth(testJWT, nil)
			}
			status, user := serveAuth(mw, tc.authorization)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.user, user)
		})
	}
}
