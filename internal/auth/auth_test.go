package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func decodeJSON(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

func newAuthServer(t *testing.T) (*httptest.Server, *TokenIssuer) {
	t.Helper()
	issuer := NewTokenIssuer("test-secret", 3600)
	service := NewService(issuer, "admin", "secret")

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(issuer.Middleware)
		service.RegisterRoutes(r)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/protected", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(GetUsername(r)))
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, issuer
}

func login(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLogin_ValidCredentialsIssueToken(t *testing.T) {
	server, issuer := newAuthServer(t)

	resp := login(t, server, `{"username":"admin","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	require.Equal(t, "bearer", body.TokenType)

	claims, err := issuer.VerifyToken(body.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Username)
}

func TestLogin_BadCredentialsRejected(t *testing.T) {
	server, _ := newAuthServer(t)
	resp := login(t, server, `{"username":"admin","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddleware_ProtectsRoutes(t *testing.T) {
	server, issuer := newAuthServer(t)

	resp, err := http.Get(server.URL + "/api/protected")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := issuer.GenerateToken("admin")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/protected", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddleware_HealthIsExempt(t *testing.T) {
	server, _ := newAuthServer(t)
	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerifyToken_RejectsTampering(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", 3600)
	other := NewTokenIssuer("secret-b", 3600)

	token, err := issuer.GenerateToken("admin")
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	require.Error(t, err)
}
