package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage.
// It is used by tests and the demo wiring.
type InMemoryRepository struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]User
	usersByEmail map[string]uuid.UUID
	teams        map[uuid.UUID]Team
	members      map[uuid.UUID]map[uuid.UUID]bool // teamID -> set of userID
	invites      map[string]TeamInvite            // token -> invite
	auditLog     []AuditEntry
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:        make(map[uuid.UUID]User),
		usersByEmail: make(map[string]uuid.UUID),
		teams:        make(map[uuid.UUID]Team),
		members:      make(map[uuid.UUID]map[uuid.UUID]bool),
		invites:      make(map[string]TeamInvite),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *InMemoryRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usersByEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *InMemoryRepository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := normalizeEmail(params.Email)
	if _, exists := r.usersByEmail[email]; exists {
		return User{}, ErrUserAlreadyExists
	}

	now := time.Now().UTC()
	u := User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Locale:       params.Locale,
		Timezone:     params.Timezone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[u.ID] = u
	r.usersByEmail[email] = u.ID
	return u, nil
}

func (r *InMemoryRepository) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return nil
}

// SetActive flips the active flag. Test and demo helper.
func (r *InMemoryRepository) SetActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.Active = active
		r.users[id] = u
	}
}

// SetRequire2FA flips the second-factor flag. Test and demo helper.
func (r *InMemoryRepository) SetRequire2FA(id uuid.UUID, required bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.Require2FA = required
		r.users[id] = u
	}
}

func (r *InMemoryRepository) AppendAuditLog(ctx context.Context, entry AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendAuditLocked(entry)
	return nil
}

func (r *InMemoryRepository) appendAuditLocked(entry AuditEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.auditLog = append(r.auditLog, entry)
}

func (r *InMemoryRepository) GetAuditLog(ctx context.Context, userID uuid.UUID) ([]AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []AuditEntry
	for _, e := range r.auditLog {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// TeamAuditLog returns audit entries recorded against a team.
func (r *InMemoryRepository) TeamAuditLog(teamID uuid.UUID) []AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []AuditEntry
	for _, e := range r.auditLog {
		if e.TeamID == teamID {
			entries = append(entries, e)
		}
	}
	return entries
}

// CreateTeam adds a team. Test and demo helper.
func (r *InMemoryRepository) CreateTeam(name string) Team {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := Team{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	r.teams[t.ID] = t
	r.members[t.ID] = make(map[uuid.UUID]bool)
	return t
}

// CreateInvite adds an invite. Test and demo helper.
func (r *InMemoryRepository) CreateInvite(teamID uuid.UUID, email, token string) TeamInvite {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv := TeamInvite{
		ID:        uuid.New(),
		TeamID:    teamID,
		Email:     normalizeEmail(email),
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	r.invites[token] = inv
	return inv
}

func (r *InMemoryRepository) GetTeamByID(ctx context.Context, id uuid.UUID) (Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.teams[id]
	if !ok {
		return Team{}, ErrTeamNotFound
	}
	return t, nil
}

func (r *InMemoryRepository) GetInviteByToken(ctx context.Context, token string) (TeamInvite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invites[token]
	if !ok {
		return TeamInvite{}, ErrInviteNotFound
	}
	return inv, nil
}

func (r *InMemoryRepository) DeleteInvite(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, inv := range r.invites {
		if inv.ID == id {
			delete(r.invites, token)
			return nil
		}
	}
	return ErrInviteNotFound
}

func (r *InMemoryRepository) IsTeamMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.members[teamID]
	if !ok {
		return false, ErrTeamNotFound
	}
	return set[userID], nil
}

// AcceptInvite applies membership, audit entry and invite deletion
// under one lock so no partial state is observable.
func (r *InMemoryRepository) AcceptInvite(ctx context.Context, params AcceptInviteParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[params.Invite.TeamID]
	if !ok {
		return ErrTeamNotFound
	}
	if set[params.UserID] {
		return ErrAlreadyMember
	}
	if _, ok := r.invites[params.Invite.Token]; !ok {
		return ErrInviteNotFound
	}

	set[params.UserID] = true
	r.appendAuditLocked(params.Audit)
	delete(r.invites, params.Invite.Token)
	return nil
}
