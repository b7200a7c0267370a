package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role classifies a registered user.
type Role string

const (
	RoleLearner Role = "learner"
	RoleCoach   Role = "coach"
)

// ParseRole validates a role string from an API payload.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleLearner:
		return RoleLearner, nil
	case RoleCoach:
		return RoleCoach, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// TurnRole tags the author of a conversational turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
	TurnSystem    TurnRole = "system"
)

// Turn is a single role-tagged message in a conversation. Turns are
// append-only; a turn is never mutated once recorded.
type Turn struct {
	ID        string    `json:"id"`
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UserState is a user's durable coaching memory.
type UserState struct {
	UserID      string            `json:"user_id"`
	Name        string            `json:"name,omitempty"`
	Role        Role              `json:"role"`
	Goals       []string          `json:"goals"`
	Preferences map[string]string `json:"preferences"`
	History     []Turn            `json:"conversation_history"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Patch carries a partial memory update. Nil fields are left untouched;
// supplied fields replace the existing value wholesale.
type Patch struct {
	Goals       []string          `json:"goals,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	History     []Turn            `json:"conversation_history,omitempty"`
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
	ErrInvalidRole   = errors.New("invalid role")
)

// Store persists and retrieves per-user coaching memory. Implementations
// must be safe for concurrent use across users; serialization of
// read-modify-write cycles for a single user is the orchestrator's job.
type Store interface {
	// Create registers a new user with empty memory. Duplicate
	// registration fails with ErrAlreadyExists.
	Create(ctx context.Context, userID, name string, role Role) error
	// Get returns the state for a registered user or ErrNotFound.
	Get(ctx context.Context, userID string) (UserState, error)
	// Merge applies a partial update to a registered user's state and
	// returns the result, or ErrNotFound.
	Merge(ctx context.Context, userID string, patch Patch) (UserState, error)
	// Put replaces the full state for a user, creating it if absent.
	Put(ctx context.Context, userID string, state UserState) error
	Close() error
}

// applyPatch merges supplied patch fields into state. Field-level replace:
// a supplied preferences map replaces the stored one rather than merging
// key by key, matching the partial-update contract.
func applyPatch(state UserState, patch Patch) UserState {
	if patch.Goals != nil {
		state.Goals = append([]string(nil), patch.Goals...)
	}
	if patch.Preferences != nil {
		state.Preferences = make(map[string]string, len(patch.Preferences))
		for k, v := range patch.Preferences {
			state.Preferences[k] = v
		}
	}
	if patch.History != nil {
		state.History = append([]Turn(nil), patch.History...)
	}
	state.UpdatedAt = time.Now().UTC()
	return state
}

// cloneState deep-copies a state so callers never share slices or maps
// with the store's internal copy.
func cloneState(s UserState) UserState {
	c := s
	c.Goals = append([]string(nil), s.Goals...)
	if s.Preferences != nil {
		c.Preferences = make(map[string]string, len(s.Preferences))
		for k, v := range s.Preferences {
			c.Preferences[k] = v
		}
	}
	c.History = append([]Turn(nil), s.History...)
	return c
}

func newUserState(userID, name string, role Role) UserState {
	now := time.Now().UTC()
	return UserState{
		UserID:      userID,
		Name:        name,
		Role:        role,
		Goals:       []string{},
		Preferences: map[string]string{},
		History:     []Turn{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
