package identity

import (
	"context"

	"tekauth/cmd/internal/auth/session"
)

// LookupFunc adapts dir to the session subsystem. A missing user is reported
// as ok=false so the session layer can revoke the presented session.
func LookupFunc(dir Directory) session.UserLookup {
	return func(ctx context.Context, id string) (session.User, bool, error) {
		u, err := dir.GetUserByID(ctx, id)
		if IsNotFound(err) {
			return session.User{}, false, nil
		}
		if err != nil {
			return session.User{}, false, err
		}
		return u.SessionUser(), true, nil
	}
}
