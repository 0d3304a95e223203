package session

import (
	"slices"

	"github.com/schooldesk/portal/internal/models"
)

// State is the controller's position in the session lifecycle.
type State string

const (
	StateAnonymous     State = "anonymous"
	StateInitializing  State = "initializing"
	StateAuthenticated State = "authenticated"
	StateRefreshing    State = "refreshing"
	StateError         State = "error"
)

// Snapshot is a read-only copy of the session. Mutating it has no effect on
// the controller.
type Snapshot struct {
	State       State
	User        *models.User
	AccessToken string
	Permissions []string
	IsLoading   bool
	Err         error
}

// IsAuthenticated requires both a token and a user.
func (s Snapshot) IsAuthenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// HasPermission reports whether the session carries capability.
func (s Snapshot) HasPermission(capability string) bool {
	return slices.Contains(s.Permissions, capability)
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
