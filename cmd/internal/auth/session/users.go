package session

import "context"

// User is the slice of the user record the session subsystem depends on.
type User struct {
	ID       string
	Email    string
	FullName string
	Role     string
	IsBanned bool
}

// UserLookup fetches the current state of a user.
//
// It returns ok=false when the user does not exist. A non-nil error means
// the lookup itself failed and is treated as an unavailable store.
type UserLookup func(ctx context.Context, id string) (u User, ok bool, err error)

func (u User) claims() UserClaims {
	return UserClaims{
		UserID:   u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
	}
}
