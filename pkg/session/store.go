package session

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
)

const cookieName = "panel_session"

// Store loads and saves per-visitor session state. The cookie and
// CSRF transport around it belongs to the surrounding application;
// this interface is the seam.
type Store interface {
	Load(w http.ResponseWriter, r *http.Request) *State
	Save(w http.ResponseWriter, r *http.Request, state *State) error
}

// MemoryStore keeps session state in process memory keyed by a random
// cookie value. Suitable for tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*State
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*State),
	}
}

func newSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Load returns the state for the request's session cookie, creating a
// fresh session (and setting the cookie) when none exists.
func (s *MemoryStore) Load(w http.ResponseWriter, r *http.Request) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, err := r.Cookie(cookieName); err == nil {
		if state, ok := s.sessions[c.Value]; ok {
			return state
		}
	}

	id := newSessionID()
	state := &State{}
	s.sessions[id] = state
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// Make the new cookie visible to the rest of this request.
	r.AddCookie(&http.Cookie{Name: cookieName, Value: id})
	return state
}

// Save is a no-op for the memory store; Load hands out the live state.
func (s *MemoryStore) Save(w http.ResponseWriter, r *http.Request, state *State) error {
	return nil
}
