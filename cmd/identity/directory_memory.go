package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"tekauth/cmd/security/password"
)

// MemoryDirectory is an in-process Directory for dev mode and tests.
type MemoryDirectory struct {
	passwords password.Config

	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryDirectory returns an empty directory hashing with cfg.
func NewMemoryDirectory(cfg password.Config) *MemoryDirectory {
	return &MemoryDirectory{
		passwords: cfg,
		byID:      map[string]User{},
		byEmail:   map[string]string{},
	}
}

// Put inserts or replaces u as-is. PasswordHash is stored verbatim, so seed
// data may carry hashes produced elsewhere.
func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[u.ID]; ok {
		delete(d.byEmail, NormalizeEmail(old.Email))
	}
	u.Role = normalizeRole(u.Role)
	d.byID[u.ID] = u
	if u.Email != "" {
		d.byEmail[NormalizeEmail(u.Email)] = u.ID
	}
}

// Delete removes a user. Missing ids are ignored.
func (d *MemoryDirectory) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.byID[id]; ok {
		delete(d.byEmail, NormalizeEmail(u.Email))
		delete(d.byID, id)
	}
}

func (d *MemoryDirectory) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, notFound(op)
	}
	return u, nil
}

func (d *MemoryDirectory) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, notFound(op)
	}
	return d.byID[id], nil
}

func (d *MemoryDirectory) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if !plausibleEmail(email) {
		return User{}, invalid(op, "email is invalid")
	}
	hash, err := hashNewPassword(op, d.passwords, in.Password)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	norm := NormalizeEmail(email)
	if _, taken := d.byEmail[norm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	u := User{
		ID:           id,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         normalizeRole(in.Role),
		PasswordHash: hash,
		CreatedAt:    now,
	}
	d.byID[id] = u
	d.byEmail[norm] = id
	return u, nil
}

func (d *MemoryDirectory) SetBanned(ctx context.Context, id string, banned bool) error {
	return d.update(ctx, "identity.SetBanned", id, func(u *User) { u.IsBanned = banned })
}

func (d *MemoryDirectory) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if strings.TrimSpace(hash) == "" {
		return invalid("identity.UpdatePasswordHash", "empty hash")
	}
	return d.update(ctx, "identity.UpdatePasswordHash", id, func(u *User) { u.PasswordHash = hash })
}

func (d *MemoryDirectory) update(ctx context.Context, op, id string, fn func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return notFound(op)
	}
	fn(&u)
	d.byID[id] = u
	return nil
}
