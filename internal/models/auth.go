package models

// LoginRequest is the payload for POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	User         *User    `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Permissions  []string `json:"permissions"`
}

// RefreshRequest is the payload for POST /api/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse carries the replacement access token
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// ForgotPasswordRequest is the payload for POST /api/auth/forgot-password
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// ForgotPasswordResponse reports where the code was sent and for how long it is valid.
// A response without ExpiresIn is not a success.
type ForgotPasswordResponse struct {
	Email     string `json:"email"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// VerifyOTPRequest is the payload for POST /api/auth/verify-otp
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTPResponse carries the token that authorises a password reset
type VerifyOTPResponse struct {
	ResetToken string `json:"reset_token"`
}

// ResetPasswordRequest is the payload for POST /api/auth/reset-password.
// ConfirmPassword is forwarded as-is; matching is the backend's call.
type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	ResetToken      string `json:"reset_token"`
	Email           string `json:"email"`
}

// APIErrorBody is the error envelope used by the school backend
type APIErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
