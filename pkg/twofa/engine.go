package twofa

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pquerna/otp/totp"
	"github.com/tstranex/u2f"

	"github.com/panelkit/panelauth/pkg/device"
	"github.com/panelkit/panelauth/pkg/session"
	"github.com/panelkit/panelauth/pkg/user"
)

// Engine verifies second-factor proofs. Two mechanisms are supported:
// hardware challenge/response (phishing resistant, preferred) and
// time-based one-time codes as the fallback.
type Engine struct {
	devices device.Repository
}

// NewEngine creates a new challenge engine
func NewEngine(devices device.Repository) *Engine {
	return &Engine{devices: devices}
}

// AppID derives the application identifier binding hardware proofs to
// this exact origin, preventing relay to a different deployment.
func AppID(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (e *Engine) registrations(ctx context.Context, u user.User) ([]u2f.Registration, []device.Device, error) {
	devices, err := e.devices.FindConfirmedByType(ctx, u.ID, device.TypeU2F)
	if err != nil {
		return nil, nil, err
	}

	var regs []u2f.Registration
	var valid []device.Device
	for _, d := range devices {
		var reg u2f.Registration
		if err := reg.UnmarshalBinary(d.KeyData); err != nil {
			slog.Error("Skipping undecodable hardware registration", "device_id", d.ID, "err", err)
			continue
		}
		regs = append(regs, reg)
		valid = append(valid, d)
	}
	return regs, valid, nil
}

// IssueChallenge prepares the 2FA page. When confirmed hardware
// devices exist it generates a fresh random challenge scoped to the
// device list, replacing any prior challenge in the session; when none
// exist it clears any stale challenge. The returned sign request is
// nil when there is nothing for the browser to sign.
func (e *Engine) IssueChallenge(ctx context.Context, state *session.State, u user.User, appID string) (*u2f.WebSignRequest, error) {
	regs, _, err := e.registrations(ctx, u)
	if err != nil {
		return nil, err
	}

	if len(regs) == 0 {
		state.Challenge = nil
		return nil, nil
	}

	challenge, err := u2f.NewChallenge(appID, []string{appID})
	if err != nil {
		return nil, err
	}
	state.Challenge = challenge
	return challenge.SignRequest(regs), nil
}

// looksLikeSignResponse reports whether the submitted token is
// structurally a challenge-response object rather than a bare code.
func looksLikeSignResponse(token string) bool {
	return strings.HasPrefix(token, "{")
}

// VerifyToken checks a submitted second-factor token for the pending
// principal. The hardware path runs only when a challenge is in flight
// and the token is challenge-shaped; the stored challenge is consumed
// before verification, success or failure, so it is never reusable.
// Anything else falls back to one-time-code matching.
func (e *Engine) VerifyToken(ctx context.Context, state *session.State, u user.User, token, appID string) bool {
	token = strings.ReplaceAll(strings.TrimSpace(token), " ", "")

	if state.Challenge != nil && looksLikeSignResponse(token) {
		challenge := *state.Challenge
		state.Challenge = nil
		return e.verifySignResponse(ctx, u, challenge, token, appID)
	}

	return e.matchCode(ctx, u, token)
}

func (e *Engine) verifySignResponse(ctx context.Context, u user.User, challenge u2f.Challenge, token, appID string) bool {
	if challenge.AppID != appID {
		slog.Warn("Hardware challenge issued for a different origin", "user_id", u.ID, "challenge_app_id", challenge.AppID, "app_id", appID)
		return false
	}

	var resp u2f.SignResponse
	if err := json.Unmarshal([]byte(token), &resp); err != nil {
		slog.Error("Undecodable hardware sign response", "user_id", u.ID, "err", err)
		return false
	}

	regs, devices, err := e.registrations(ctx, u)
	if err != nil {
		slog.Error("Failed to load hardware registrations", "user_id", u.ID, "err", err)
		return false
	}

	for i, reg := range regs {
		newCounter, err := reg.Authenticate(resp, challenge, devices[i].Counter)
		if err != nil {
			continue
		}
		if err := e.devices.UpdateCounter(ctx, devices[i].ID, newCounter); err != nil {
			slog.Error("Failed to persist signature counter", "device_id", devices[i].ID, "err", err)
		}
		return true
	}

	slog.Info("Hardware token verification failed", "user_id", u.ID)
	return false
}

func (e *Engine) matchCode(ctx context.Context, u user.User, code string) bool {
	if code == "" {
		return false
	}

	devices, err := e.devices.FindConfirmedByType(ctx, u.ID, device.TypeTOTP)
	if err != nil {
		slog.Error("Failed to load code generators", "user_id", u.ID, "err", err)
		return false
	}

	for _, d := range devices {
		if totp.Validate(code, d.Secret) {
			return true
		}
	}
	return false
}
