package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/goliatone/go-tokenauth/metrics"
	"github.com/goliatone/go-tokenauth/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	app    *fiber.App
	srv    *server
	db     *bun.DB
	resets map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := store.Open(store.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db, log))

	opts := auth.DefaultOptions()
	opts.SigningKey = "authd-test-signing-key-0123456789"
	opts.BcryptCost = bcrypt.MinCost

	users := store.NewUsers(db)
	registry := prometheus.NewRegistry()
	sink := metrics.NewCollector(registry)

	authenticator, err := auth.NewAuthenticator(users, opts)
	require.NoError(t, err)
	authenticator.WithActivitySink(sink)

	ts := &testServer{db: db, resets: map[string]string{}}
	ts.srv = &server{
		users:         users,
		authenticator: authenticator,
		resolver:      auth.NewResolver(users, authenticator.TokenCodec()).WithActivitySink(sink),
		gate:          auth.NewGate().WithActivitySink(sink),
		policy:        auth.PasswordPolicyFromConfig(opts),
		activity:      sink,
		registry:      registry,
		log:           log,
		notify: func(_ context.Context, email, token string) error {
			ts.resets[email] = token
			return nil
		},
	}

	ts.app = fiber.New()
	ts.srv.routes(ts.app)
	return ts
}

func (ts *testServer) send(t *testing.T, req *http.Request, token string) (int, map[string]any) {
	t.Helper()
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := ts.app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	return resp.StatusCode, payload
}

func (ts *testServer) sendJSON(t *testing.T, method, target, token string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, strings.NewReader(string(raw)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return ts.send(t, req, token)
}

func (ts *testServer) signup(t *testing.T, username, password string) string {
	t.Helper()
	status, body := ts.sendJSON(t, http.MethodPost, "/users/signup", "", fiber.Map{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["id"].(string)
}

func (ts *testServer) login(t *testing.T, username, password string) (int, string) {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login/access-token", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	status, body := ts.send(t, req, "")
	token, _ := body["access_token"].(string)
	return status, token
}

func (ts *testServer) promote(t *testing.T, id string) {
	t.Helper()
	_, err := ts.db.NewUpdate().
		Model((*store.User)(nil)).
		Set("is_superuser = ?", true).
		Where("id = ?", uuid.MustParse(id)).
		Exec(context.Background())
	require.NoError(t, err)
}

func TestRoutes_SignupLoginMe(t *testing.T) {
	ts := newTestServer(t)
	id := ts.signup(t, "alice", "alice-secret")

	status, _ := ts.login(t, "alice", "wrong-secret")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = ts.login(t, "nobody", "wrong-secret")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, token := ts.login(t, "alice", "alice-secret")
	require.Equal(t, fiber.StatusOK, status)
	require.NotEmpty(t, token)

	status, body := ts.send(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "alice@example.com", body["email"])

	status, _ = ts.send(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRoutes_SignupValidation(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.sendJSON(t, http.MethodPost, "/users/signup", "", fiber.Map{
		"email":    "short@example.com",
		"password": "short",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(auth.ReasonInvalidPassword), body["reason"])

	ts.signup(t, "alice", "alice-secret")
	status, _ = ts.sendJSON(t, http.MethodPost, "/users/signup", "", fiber.Map{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "alice-secret",
	})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestRoutes_ChangePassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice", "alice-secret")
	_, token := ts.login(t, "alice", "alice-secret")

	status, body := ts.sendJSON(t, http.MethodPatch, "/users/me/password", token, fiber.Map{
		"current_password": "wrong-secret",
		"new_password":     "another-secret",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(auth.ReasonIncorrectPassword), body["reason"])

	status, body = ts.sendJSON(t, http.MethodPatch, "/users/me/password", token, fiber.Map{
		"current_password": "alice-secret",
		"new_password":     "alice-secret",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(auth.ReasonPasswordReuse), body["reason"])

	status, _ = ts.sendJSON(t, http.MethodPatch, "/users/me/password", token, fiber.Map{
		"current_password": "alice-secret",
		"new_password":     "another-secret",
	})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = ts.login(t, "alice", "another-secret")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRoutes_PasswordRecovery(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice", "alice-secret")

	status, known := ts.send(t, httptest.NewRequest(http.MethodPost, "/password-recovery/alice@example.com", nil), "")
	require.Equal(t, fiber.StatusOK, status)
	status, unknown := ts.send(t, httptest.NewRequest(http.MethodPost, "/password-recovery/nobody@example.com", nil), "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, known, unknown)

	reset := ts.resets["alice@example.com"]
	require.NotEmpty(t, reset)
	assert.Len(t, ts.resets, 1)

	// reset tokens do not open protected routes
	status, _ = ts.send(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), reset)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = ts.sendJSON(t, http.MethodPost, "/reset-password", "", fiber.Map{
		"token":        reset,
		"new_password": "recovered-secret",
	})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = ts.login(t, "alice", "recovered-secret")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRoutes_UserManagement(t *testing.T) {
	ts := newTestServer(t)
	adminID := ts.signup(t, "admin", "admin-secret")
	aliceID := ts.signup(t, "alice", "alice-secret")
	bobID := ts.signup(t, "bob", "bob-secret-1")
	ts.promote(t, adminID)

	_, admin := ts.login(t, "admin", "admin-secret")
	_, alice := ts.login(t, "alice", "alice-secret")

	status, _ := ts.send(t, httptest.NewRequest(http.MethodGet, "/users/"+aliceID, nil), alice)
	assert.Equal(t, fiber.StatusOK, status)

	status, body := ts.send(t, httptest.NewRequest(http.MethodGet, "/users/"+bobID, nil), alice)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, string(auth.ReasonInsufficientPrivilege), body["reason"])

	status, _ = ts.send(t, httptest.NewRequest(http.MethodGet, "/users/"+bobID, nil), admin)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = ts.send(t, httptest.NewRequest(http.MethodDelete, "/users/"+bobID, nil), alice)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = ts.send(t, httptest.NewRequest(http.MethodDelete, "/users/"+adminID, nil), admin)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, string(auth.ReasonSelfActionForbidden), body["reason"])

	status, body = ts.send(t, httptest.NewRequest(http.MethodDelete, "/users/me", nil), admin)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, string(auth.ReasonSelfActionForbidden), body["reason"])

	status, _ = ts.sendJSON(t, http.MethodPatch, "/users/"+aliceID+"/active", alice, fiber.Map{"is_active": false})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = ts.sendJSON(t, http.MethodPatch, "/users/"+adminID+"/active", admin, fiber.Map{"is_active": false})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, string(auth.ReasonSelfActionForbidden), body["reason"])

	status, _ = ts.send(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), admin)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = ts.sendJSON(t, http.MethodPatch, "/users/"+aliceID+"/active", admin, fiber.Map{"is_active": false})
	assert.Equal(t, fiber.StatusNoContent, status)

	status, body = ts.send(t, httptest.NewRequest(http.MethodGet, "/users/me", nil), alice)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(auth.ReasonInactiveAccount), body["reason"])

	status, _ = ts.send(t, httptest.NewRequest(http.MethodDelete, "/users/"+bobID, nil), admin)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = ts.send(t, httptest.NewRequest(http.MethodGet, "/users/"+bobID, nil), admin)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestRoutes_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice", "alice-secret")
	ts.login(t, "alice", "alice-secret")

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tokenauth_authentications_total")
	assert.Contains(t, string(body), "tokenauth_tokens_issued_total")
}

func TestBootstrapSuperuser(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	require.NoError(t, bootstrapSuperuser(ctx, ts.srv.users, ts.srv.authenticator.Hasher(), log))

	t.Setenv("TOKENAUTH_FIRST_SUPERUSER", "root@example.com")
	t.Setenv("TOKENAUTH_FIRST_SUPERUSER_PASSWORD", "root-secret")

	require.NoError(t, bootstrapSuperuser(ctx, ts.srv.users, ts.srv.authenticator.Hasher(), log))
	require.NoError(t, bootstrapSuperuser(ctx, ts.srv.users, ts.srv.authenticator.Hasher(), log))

	user, err := ts.srv.users.GetByIdentifier(ctx, "root@example.com")
	require.NoError(t, err)
	assert.True(t, user.Superuser)
	assert.Equal(t, string(auth.RoleOwner), user.Role)

	status, _ := ts.login(t, "root@example.com", "root-secret")
	assert.Equal(t, fiber.StatusOK, status)
}
