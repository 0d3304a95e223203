package models

// Role identifies which part of the portal a user works in.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleBursar  Role = "bursar"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleBursar, RoleParent, RoleStudent, RoleTeacher:
		return true
	}
	return false
}

// User is the authenticated account as returned by the school backend.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Role             Role   `json:"role"`
	RoleID           string `json:"role_id"` // backend permission group
	SchoolID         string `json:"school_id"`
	SchoolName       string `json:"school_name,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
	AvatarKey        string `json:"avatar_key,omitempty"`
	IsFirstTimeLogin bool   `json:"is_first_time_login"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
