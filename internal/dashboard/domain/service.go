package domain

import (
	"context"
	"time"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*User, error)

	ListUsers(ctx context.Context) ([]UserResponse, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error

	// EnsureAdmin creates a user holding every route when no user exists yet.
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
}

type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type CreateUserRequest struct {
	Username      string   `json:"username"`
	Name          string   `json:"name"`
	Password      string   `json:"password"`
	AllowedRoutes []string `json:"allowed_routes"`
	Active        *bool    `json:"active"`
}

type UpdateUserRequest struct {
	Name          *string   `json:"name"`
	Password      *string   `json:"password"`
	AllowedRoutes *[]string `json:"allowed_routes"`
	Active        *bool     `json:"active"`
}

type UserResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	AllowedRoutes []string  `json:"allowed_routes"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func ToUserResponse(u *User) UserResponse {
	routes := []string(u.AllowedRoutes)
	if routes == nil {
		routes = []string{}
	}
	return UserResponse{
		ID:            formatID(u.ID),
		Username:      u.Username,
		Name:          u.Name,
		AllowedRoutes: routes,
		Active:        u.Active,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
