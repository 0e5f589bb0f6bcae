package authflow

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/panelkit/panelauth/pkg/account"
	"github.com/panelkit/panelauth/pkg/errs"
	"github.com/panelkit/panelauth/pkg/session"
	"github.com/panelkit/panelauth/pkg/twofa"
	"github.com/panelkit/panelauth/pkg/user"
)

// Handle wires the auth endpoints to the flow and account services.
type Handle struct {
	flow     *Service
	accounts *account.Service
	store    session.Store
	users    user.Repository
	baseURL  string
}

// HandleOption is a functional option for configuring Handle
type HandleOption func(*Handle)

// NewHandle creates a new Handle with the given options
func NewHandle(flow *Service, accounts *account.Service, store session.Store, opts ...HandleOption) *Handle {
	h := &Handle{
		flow:     flow,
		accounts: accounts,
		store:    store,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// WithUserRepository sets the repository used for invite lookups
func WithUserRepository(repo user.Repository) HandleOption {
	return func(h *Handle) {
		h.users = repo
	}
}

// WithBaseURL sets the public base URL used in recovery links
func WithBaseURL(baseURL string) HandleOption {
	return func(h *Handle) {
		h.baseURL = baseURL
	}
}

// Routes mounts all auth endpoints on the router.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/login", h.PostLogin)
	r.Post("/logout", h.PostLogout)
	r.Get("/login/2fa", h.GetSecondFactor)
	r.Post("/login/2fa", h.PostSecondFactor)
	r.Post("/register", h.PostRegister)
	r.Get("/invite/{token}", h.GetInvite)
	r.Post("/invite/{token}", h.PostInvite)
	r.Post("/forgot", h.PostForgot)
	r.Post("/recover", h.PostRecover)
}

type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	KeepLoggedIn bool   `json:"keep_logged_in"`
}

type RegisterRequest struct {
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Password     string `json:"password"`
	Locale       string `json:"locale"`
	Timezone     string `json:"timezone"`
	KeepLoggedIn bool   `json:"keep_logged_in"`
}

type SecondFactorRequest struct {
	Token string `json:"token"`
}

type ForgotRequest struct {
	Email string `json:"email"`
}

type RecoverRequest struct {
	ID       string `json:"id"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

type StatusResponse struct {
	Status string `json:"status"`
	Next   string `json:"next,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.GetCode(err)
	message := "An internal error occurred"
	var structured *errs.Error
	if errors.As(err, &structured) && code != errs.ErrCodeInternal {
		message = structured.Message
	}
	if code == errs.ErrCodeInternal {
		slog.Error("Request failed", "path", r.URL.Path, "err", err)
	}
	render.Status(r, errs.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, ErrorResponse{Code: string(code), Message: message})
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: string(errs.ErrCodeInvalidInput), Message: message})
}

// redirectAuthenticated short-circuits login, registration and reset
// pages for visitors who already hold an authenticated session.
func (h *Handle) redirectAuthenticated(w http.ResponseWriter, r *http.Request, state *session.State) bool {
	if _, ok := h.flow.CurrentUser(r.Context(), state); !ok {
		return false
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return true
}

// Login a user
// (POST /login)
func (h *Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	if h.redirectAuthenticated(w, r, state) {
		return
	}

	data := LoginRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		badRequest(w, r, "Unable to parse request body")
		return
	}

	result, err := h.flow.Login(r.Context(), state, data.Email, data.Password, data.KeepLoggedIn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.Save(w, r, state); err != nil {
		writeError(w, r, errs.Internal(err, "failed to save session"))
		return
	}

	if result.SecondFactorRequired {
		render.JSON(w, r, StatusResponse{Status: "second_factor_required", Next: "/login/2fa"})
		return
	}
	render.JSON(w, r, StatusResponse{Status: "ok"})
}

// End the session
// (POST /logout)
func (h *Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	h.flow.Logout(state)
	if err := h.store.Save(w, r, state); err != nil {
		writeError(w, r, errs.Internal(err, "failed to save session"))
		return
	}
	render.JSON(w, r, StatusResponse{Status: "ok"})
}

type SecondFactorChallengeResponse struct {
	Challenge interface{} `json:"challenge"`
}

// Fetch the hardware challenge for the pending login
// (GET /login/2fa)
func (h *Handle) GetSecondFactor(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)

	req, err := h.flow.SecondFactorChallenge(r.Context(), state, twofa.AppID(r))
	if err != nil {
		// The guard may have reset the session; the reset must stick
		// even though the request fails.
		if saveErr := h.store.Save(w, r, state); saveErr != nil {
			slog.Error("Failed to save session", "path", r.URL.Path, "err", saveErr)
		}
		writeError(w, r, err)
		return
	}
	if err := h.store.Save(w, r, state); err != nil {
		writeError(w, r, errs.Internal(err, "failed to save session"))
		return
	}

	if req == nil {
		render.JSON(w, r, SecondFactorChallengeResponse{})
		return
	}
	render.JSON(w, r, SecondFactorChallengeResponse{Challenge: req})
}

// Submit the second factor proof
// (POST /login/2fa)
func (h *Handle) PostSecondFactor(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)

	data := SecondFactorRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		badRequest(w, r, "Unable to parse request body")
		return
	}

	_, err := h.flow.CompleteSecondFactor(r.Context(), state, data.Token, twofa.AppID(r))
	if saveErr := h.store.Save(w, r, state); saveErr != nil {
		writeError(w, r, errs.Internal(saveErr, "failed to save session"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, StatusResponse{Status: "ok"})
}

// Register a new account
// (POST /register)
func (h *Handle) PostRegister(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	if h.redirectAuthenticated(w, r, state) {
		return
	}

	data := RegisterRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		badRequest(w, r, "Unable to parse request body")
		return
	}

	params := account.RegisterParams{}
	if err := copier.Copy(&params, data); err != nil {
		writeError(w, r, errs.Internal(err, "failed to map registration request"))
		return
	}
	created, err := h.accounts.Register(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A fresh account has no second factor enrolled yet.
	h.flow.Authenticate(state, created, data.KeepLoggedIn)
	if err := h.store.Save(w, r, state); err != nil {
		writeError(w, r, errs.Internal(err, "failed to save session"))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, StatusResponse{Status: "ok"})
}

type InviteResponse struct {
	Team     string `json:"team"`
	Email    string `json:"email"`
	SignedIn bool   `json:"signed_in"`
}

// Inspect a team invite
// (GET /invite/{token})
func (h *Handle) GetInvite(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	token := chi.URLParam(r, "token")

	invite, err := h.users.GetInviteByToken(r.Context(), token)
	if err != nil {
		writeError(w, r, errs.TokenInvalid())
		return
	}
	team, err := h.users.GetTeamByID(r.Context(), invite.TeamID)
	if err != nil {
		writeError(w, r, errs.TokenInvalid())
		return
	}

	_, signedIn := h.flow.CurrentUser(r.Context(), state)
	render.JSON(w, r, InviteResponse{Team: team.Name, Email: invite.Email, SignedIn: signedIn})
}

// Accept a team invite, registering a new account when nobody is
// signed in
// (POST /invite/{token})
func (h *Handle) PostInvite(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	token := chi.URLParam(r, "token")

	if current, ok := h.flow.CurrentUser(r.Context(), state); ok {
		team, err := h.accounts.AcceptInvite(r.Context(), token, current)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, StatusResponse{Status: "ok", Next: "/teams/" + team.ID.String()})
		return
	}

	data := RegisterRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		badRequest(w, r, "Unable to parse request body")
		return
	}

	params := account.RegisterParams{}
	if err := copier.Copy(&params, data); err != nil {
		writeError(w, r, errs.Internal(err, "failed to map registration request"))
		return
	}
	created, team, err := h.accounts.RegisterWithInvite(r.Context(), token, params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.flow.Authenticate(state, created, data.KeepLoggedIn)
	if err := h.store.Save(w, r, state); err != nil {
		writeError(w, r, errs.Internal(err, "failed to save session"))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, StatusResponse{Status: "ok", Next: "/teams/" + team.ID.String()})
}

// Request a password reset mail
// (POST /forgot)
func (h *Handle) PostForgot(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	if h.redirectAuthenticated(w, r, state) {
		return
	}

	data := ForgotRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		badRequest(w, r, "Unable to parse request body")
		return
	}
	if data.Email == "" {
		badRequest(w, r, "Email is required")
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), data.Email, h.baseURL); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, StatusResponse{Status: "ok"})
}

// Set a new password with a recovery token
// (POST /recover)
func (h *Handle) PostRecover(w http.ResponseWriter, r *http.Request) {
	state := h.store.Load(w, r)
	if h.redirectAuthenticated(w, r, state) {
		return
	}

	data := RecoverRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		badRequest(w, r, "Unable to parse request body")
		return
	}

	userID, err := uuid.Parse(data.ID)
	if err != nil {
		writeError(w, r, errs.TokenInvalid())
		return
	}

	if err := h.accounts.ConfirmPasswordReset(r.Context(), userID, data.Token, data.Password); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, StatusResponse{Status: "ok"})
}
