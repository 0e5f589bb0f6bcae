package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelkit/panelauth/pkg/account"
	"github.com/panelkit/panelauth/pkg/config"
	"github.com/panelkit/panelauth/pkg/credential"
	"github.com/panelkit/panelauth/pkg/device"
	"github.com/panelkit/panelauth/pkg/errs"
	"github.com/panelkit/panelauth/pkg/notification"
	"github.com/panelkit/panelauth/pkg/session"
	"github.com/panelkit/panelauth/pkg/signedtoken"
	"github.com/panelkit/panelauth/pkg/twofa"
	"github.com/panelkit/panelauth/pkg/user"
)

type testServer struct {
	server   *httptest.Server
	client   *http.Client
	users    *user.InMemoryRepository
	devices  *device.InMemoryRepository
	notifier *notification.MockNotifier
	tokens   *signedtoken.Service
}

func newTestServer(t *testing.T, features config.Features) *testServer {
	t.Helper()
	users := user.NewInMemoryRepository()
	devices := device.NewInMemoryRepository()
	notifier := notification.NewMockNotifier()
	tokens := signedtoken.NewService("test-secret", "panelauth-test")

	flow := NewService(users, credential.NewVerifier(users), twofa.NewEngine(devices), WithFeatures(features))
	accounts := account.NewService(users, tokens,
		account.WithNotifier(notifier),
		account.WithFeatures(features),
	)
	handle := NewHandle(flow, accounts, session.NewMemoryStore(),
		WithUserRepository(users),
		WithBaseURL("https://panel.example.com"),
	)

	r := chi.NewRouter()
	handle.Routes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testServer{server: server, client: client, users: users, devices: devices, notifier: notifier, tokens: tokens}
}

func (ts *testServer) seedUser(t *testing.T, email, password string, require2FA bool) user.User {
	t.Helper()
	hash, err := credential.HashPassword(password)
	require.NoError(t, err)
	u, err := ts.users.CreateUser(context.Background(), user.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	if require2FA {
		ts.users.SetRequire2FA(u.ID, true)
		_, err = ts.devices.CreateDevice(context.Background(), device.CreateDeviceParams{
			UserID:    u.ID,
			Type:      device.TypeTOTP,
			Secret:    testSecret,
			Confirmed: true,
		})
		require.NoError(t, err)
	}
	return u
}

func (ts *testServer) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := ts.client.Post(ts.server.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := ts.client.Get(ts.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	ts.seedUser(t, "alice@example.com", "correct horse battery", false)

	resp := ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	decode(t, resp, &status)
	assert.Equal(t, "ok", status.Status)

	// A second login attempt on the authenticated session redirects.
	resp = ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLoginEndpointBadPassword(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	ts.seedUser(t, "alice@example.com", "correct horse battery", false)

	resp := ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "INVALID_CREDENTIALS", body.Code)
}

func TestSecondFactorRoundTrip(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	ts.seedUser(t, "alice@example.com", "correct horse battery", true)

	resp := ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	decode(t, resp, &status)
	require.Equal(t, "second_factor_required", status.Status)
	assert.Equal(t, "/login/2fa", status.Next)

	// Code-only accounts get no hardware challenge.
	resp = ts.get(t, "/login/2fa")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var challenge SecondFactorChallengeResponse
	decode(t, resp, &challenge)
	assert.Nil(t, challenge.Challenge)

	code, err := totp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)
	resp = ts.postJSON(t, "/login/2fa", SecondFactorRequest{Token: code})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Now fully authenticated.
	resp = ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestSecondFactorWrongCode(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	ts.seedUser(t, "alice@example.com", "correct horse battery", true)

	resp := ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.postJSON(t, "/login/2fa", SecondFactorRequest{Token: "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "TWO_FA_INVALID", body.Code)
}

func TestSecondFactorWithoutLogin(t *testing.T) {
	ts := newTestServer(t, config.Features{})

	resp := ts.postJSON(t, "/login/2fa", SecondFactorRequest{Token: "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	ts.seedUser(t, "alice@example.com", "correct horse battery", false)

	resp := ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.postJSON(t, "/logout", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The session is anonymous again; login processes normally.
	resp = ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t, config.Features{RegistrationEnabled: true})

	resp := ts.postJSON(t, "/register", RegisterRequest{
		Email:    "bob@example.com",
		FullName: "Bob",
		Password: "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Registration logs the visitor in.
	resp = ts.postJSON(t, "/login", LoginRequest{Email: "bob@example.com", Password: "correct horse battery"})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRegisterEndpointDisabled(t *testing.T) {
	ts := newTestServer(t, config.Features{})

	resp := ts.postJSON(t, "/register", RegisterRequest{
		Email:    "bob@example.com",
		Password: "correct horse battery",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "FEATURE_DISABLED", body.Code)
}

func TestInviteFlowSignedIn(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	ts.seedUser(t, "alice@example.com", "correct horse battery", false)
	team := ts.users.CreateTeam("ops")
	ts.users.CreateInvite(team.ID, "alice@example.com", "invite-token")

	resp := ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "correct horse battery"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.get(t, "/invite/invite-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var invite InviteResponse
	decode(t, resp, &invite)
	assert.Equal(t, "ops", invite.Team)
	assert.True(t, invite.SignedIn)

	resp = ts.postJSON(t, "/invite/invite-token", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInviteFlowNewAccount(t *testing.T) {
	ts := newTestServer(t, config.Features{})
	team := ts.users.CreateTeam("ops")
	ts.users.CreateInvite(team.ID, "carol@example.com", "invite-token")

	resp := ts.postJSON(t, "/invite/invite-token", RegisterRequest{
		FullName: "Carol",
		Password: "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The new account is signed in and a member of the team.
	created, err := ts.users.GetUserByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	member, err := ts.users.IsTeamMember(context.Background(), team.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, member)

	resp = ts.postJSON(t, "/login", LoginRequest{Email: "carol@example.com", Password: "correct horse battery"})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestInviteUnknownToken(t *testing.T) {
	ts := newTestServer(t, config.Features{})

	resp := ts.get(t, "/invite/no-such-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestForgotAndRecoverEndpoints(t *testing.T) {
	ts := newTestServer(t, config.Features{PasswordResetEnabled: true})
	u := ts.seedUser(t, "alice@example.com", "old password1", false)

	resp := ts.postJSON(t, "/forgot", ForgotRequest{Email: "alice@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ts.notifier.Sent(), 1)

	token, err := ts.tokens.Issue(u)
	require.NoError(t, err)

	resp = ts.postJSON(t, "/recover", RecoverRequest{
		ID:       u.ID.String(),
		Token:    token,
		Password: "new password22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.postJSON(t, "/login", LoginRequest{Email: "alice@example.com", Password: "new password22"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotUnknownAddress(t *testing.T) {
	ts := newTestServer(t, config.Features{PasswordResetEnabled: true})

	// Silent success, nothing sent.
	resp := ts.postJSON(t, "/forgot", ForgotRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, ts.notifier.Sent())
}

func TestForgotDisabled(t *testing.T) {
	ts := newTestServer(t, config.Features{})

	resp := ts.postJSON(t, "/forgot", ForgotRequest{Email: "alice@example.com"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRecoverBadToken(t *testing.T) {
	ts := newTestServer(t, config.Features{PasswordResetEnabled: true})
	u := ts.seedUser(t, "alice@example.com", "old password1", false)

	resp := ts.postJSON(t, "/recover", RecoverRequest{
		ID:       u.ID.String(),
		Token:    "garbage",
		Password: "new password22",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.postJSON(t, "/recover", RecoverRequest{
		ID:       "not-a-uuid",
		Token:    "garbage",
		Password: "new password22",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterEndpointMapsProfileFields(t *testing.T) {
	ts := newTestServer(t, config.Features{RegistrationEnabled: true})

	resp := ts.postJSON(t, "/register", RegisterRequest{
		Email:    "dana@example.com",
		FullName: "Dana",
		Password: "correct horse battery",
		Locale:   "de",
		Timezone: "Europe/Berlin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created, err := ts.users.GetUserByEmail(context.Background(), "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Dana", created.FullName)
	assert.Equal(t, "de", created.Locale)
	assert.Equal(t, "Europe/Berlin", created.Timezone)
}

func TestWriteErrorUnwrapsNestedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/forgot", nil)

	wrapped := fmt.Errorf("handling reset request: %w", errs.RateLimited("a password reset mail was sent recently"))
	writeError(w, r, wrapped)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Code)
	assert.Equal(t, "a password reset mail was sent recently", body.Message)
}

type saveFailStore struct {
	*session.MemoryStore
}

func (s *saveFailStore) Save(w http.ResponseWriter, r *http.Request, state *session.State) error {
	return errors.New("session backend down")
}

func TestSecondFactorGuardWithFailingStore(t *testing.T) {
	users := user.NewInMemoryRepository()
	devices := device.NewInMemoryRepository()
	flow := NewService(users, credential.NewVerifier(users), twofa.NewEngine(devices))
	accounts := account.NewService(users, signedtoken.NewService("test-secret", "panelauth-test"))
	handle := NewHandle(flow, accounts, &saveFailStore{session.NewMemoryStore()},
		WithUserRepository(users),
	)

	router := chi.NewRouter()
	handle.Routes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/2fa", nil))

	// The guard failure is reported, not masked by the save failure.
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_CREDENTIALS", body.Code)
}
