package models

// AccessSession is the identity carried by a verified access token. Handlers
// behind the access middleware read it from the gin context.
type AccessSession struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	SchoolID  string `json:"school_id"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}
