package releasea

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreSessionWithUserInPayload(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "restored-token",
			"user":  User{ID: "u-1", Email: "ops@example.com", Role: "admin"},
		})
	})
	client := b.client()

	user := client.RestoreSession(context.Background())

	require.NotNil(t, user)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.Equal(t, "restored-token", client.Token())
	assert.Equal(t, 0, b.count(http.MethodGet, EndpointMe))
}

func TestRestoreSessionFetchesCurrentUser(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token": "restored-token"})
	})
	b.handle(http.MethodGet, EndpointMe, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer restored-token" {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": User{ID: "u-7", Email: "dev@example.com"}})
	})
	client := b.client()

	user := client.RestoreSession(context.Background())

	require.NotNil(t, user)
	assert.Equal(t, "u-7", user.ID)
	assert.Equal(t, "u-7", client.Session().User().ID)
}

func TestRestoreSessionClearsWhenUserUnavailable(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok-new"})
	})
	b.handle(http.MethodGet, EndpointMe, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})
	client := b.client()

	assert.Nil(t, client.RestoreSession(context.Background()))
	assert.Empty(t, client.Token())
	assert.Empty(t, client.Session().CSRFToken())
	assert.Nil(t, client.Session().User())
	assert.Equal(t, 1, b.count(http.MethodGet, EndpointMe))
}

func TestRestoreSessionWithoutRefreshCookie(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "no refresh cookie"})
	})
	client := b.client()

	assert.Nil(t, client.RestoreSession(context.Background()))
	assert.Empty(t, client.Token())
	assert.Empty(t, client.Session().CSRFToken())
}

func TestRestoreSessionWithoutCSRF(t *testing.T) {
	b := newFakeBackend(t)
	b.handle(http.MethodGet, EndpointCSRF, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, nil)
	})
	client := b.client()

	assert.Nil(t, client.RestoreSession(context.Background()))
	assert.Equal(t, 0, b.count(http.MethodPost, EndpointRefresh))
}

func TestRestoreSessionMissingToken(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": User{ID: "u-1"}})
	})
	client := b.client()
	client.SetToken("previous")

	assert.Nil(t, client.RestoreSession(context.Background()))
	assert.Empty(t, client.Token())
}

func TestRefreshSendsCookie(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt-1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]any{"token": "t-1", "user": User{ID: "u-1"}})
	})
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("refresh_token")
		if err != nil || cookie.Value != "rt-1" {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "t-2"})
	})
	client := b.client()

	require.True(t, client.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "secret"}).OK())
	require.True(t, client.refresh(context.Background()))
	assert.Equal(t, "t-2", client.Token())
}

func TestLogin(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": "t-1", "user": User{ID: "u-1", Email: creds.Email}})
	})
	client := b.client()

	t.Run("success", func(t *testing.T) {
		resp := client.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "secret"})
		require.True(t, resp.OK(), "unexpected failure: %v", resp.Err())
		assert.Equal(t, "t-1", client.Token())
		assert.Equal(t, "ops@example.com", client.Session().User().Email)
		assert.Equal(t, 0, b.count(http.MethodGet, EndpointCSRF), "login is CSRF exempt")
	})

	t.Run("bad credentials do not refresh", func(t *testing.T) {
		resp := client.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
		assert.Equal(t, "Invalid credentials", resp.Error)
		assert.Equal(t, 0, b.count(http.MethodPost, EndpointRefresh))
	})

	t.Run("invalid input is rejected locally", func(t *testing.T) {
		before := b.count(http.MethodPost, EndpointLogin)
		resp := client.Login(context.Background(), Credentials{Email: "not-an-email"})
		assert.Equal(t, KindContract, resp.ErrorDetails.Code)
		assert.Equal(t, before, b.count(http.MethodPost, EndpointLogin))
	})
}

func TestLoginWithoutToken(t *testing.T) {
	b := newFakeBackend(t)
	b.handle(http.MethodPost, EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	client := b.client()

	resp := client.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "secret"})

	assert.Equal(t, KindContract, resp.ErrorDetails.Code)
	assert.Empty(t, client.Token())
}

func TestSignupAndSSO(t *testing.T) {
	b := newFakeBackend(t)
	b.handle(http.MethodPost, EndpointSignup, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"token": "t-signup", "user": User{ID: "u-new"}})
	})
	b.handle(http.MethodPost, EndpointSSOExchange, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"token": "t-sso-" + body["code"], "user": User{ID: "u-sso"}})
	})
	client := b.client()

	resp := client.Signup(context.Background(), SignupRequest{Name: "Ops", Email: "ops@example.com", Password: "long-enough"})
	require.True(t, resp.OK(), "unexpected failure: %v", resp.Err())
	assert.Equal(t, "t-signup", client.Token())

	resp = client.ExchangeSSO(context.Background(), "abc")
	require.True(t, resp.OK(), "unexpected failure: %v", resp.Err())
	assert.Equal(t, "t-sso-abc", client.Token())
	assert.Equal(t, "u-sso", client.Session().User().ID)
	assert.Equal(t, 0, b.count(http.MethodGet, EndpointCSRF))
}

func TestLogoutClearsSessionRegardless(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointLogout, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, nil)
	})
	client := b.client()
	client.Session().Establish("t-1", &User{ID: "u-1"})

	resp := client.Logout(context.Background())

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, 1, b.count(http.MethodPost, EndpointLogout), "logout is not retried")
	assert.Empty(t, client.Token())
	assert.Nil(t, client.Session().User())
	assert.Empty(t, client.Session().CSRFToken())
}

func TestProactiveRefreshBeforeExpiry(t *testing.T) {
	b := newFakeBackend(t).withCSRF()
	b.handle(http.MethodPost, EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token": "fresh-token"})
	})
	b.handle(http.MethodGet, "/services", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []string{})
	})

	t.Run("token close to expiry", func(t *testing.T) {
		client := b.client(WithRefreshSkew(time.Minute))
		client.SetToken(signedToken(t, time.Now().Add(10*time.Second)))

		require.True(t, client.Get(context.Background(), "/services").OK())
		assert.Equal(t, "fresh-token", client.Token())
		assert.Equal(t, 1, b.count(http.MethodPost, EndpointRefresh))
	})

	t.Run("token far from expiry", func(t *testing.T) {
		client := b.client(WithRefreshSkew(time.Minute))
		token := signedToken(t, time.Now().Add(time.Hour))
		client.SetToken(token)

		require.True(t, client.Get(context.Background(), "/services").OK())
		assert.Equal(t, token, client.Token())
		assert.Equal(t, 1, b.count(http.MethodPost, EndpointRefresh))
	})
}
