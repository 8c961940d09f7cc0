package identity

import (
	"context"
	"time"

	"tekauth/cmd/internal/auth/session"
)

// DefaultRole is assigned when a user is created without one.
const DefaultRole = "user"

// User is a directory record.
type User struct {
	ID           string
	Email        string
	FullName     string
	Role         string
	IsBanned     bool
	PasswordHash string
	CreatedAt    time.Time
}

// SessionUser returns the fields the session subsystem puts into tokens.
func (u User) SessionUser() session.User {
	return session.User{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		IsBanned: u.IsBanned,
	}
}

// CreateUserInput is the input to CreateUser. Password is plain text and is
// hashed before it reaches storage.
type CreateUserInput struct {
	Email    string
	FullName string
	Role     string
	Password string
	Now      time.Time
}

// Directory is the user store used by authentication and session refresh.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	SetBanned(ctx context.Context, id string, banned bool) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}
