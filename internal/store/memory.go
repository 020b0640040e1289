package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accountserver/types"
)

// MemoryUserRepository keeps users in process memory. It honours the same
// uniqueness rules as the Postgres repository, checking and writing under
// one lock.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]types.User
	now   func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]types.User),
		now:   time.Now,
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) FindByField(ctx context.Context, field Field, value string) (types.User, error) {
	if field != FieldName && field != FieldEmail {
		return types.User{}, fmt.Errorf("unsupported lookup field %q", field)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if (field == FieldName && user.Name == value) || (field == FieldEmail && user.Email == value) {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) List(ctx context.Context) ([]types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUniqueLocked("", &user.Name, &user.Email); err != nil {
		return types.User{}, err
	}

	now := r.now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if err := r.checkUniqueLocked(id, patch.Name, patch.Email); err != nil {
		return types.User{}, err
	}

	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.PhoneNumber != nil {
		user.PhoneNumber = *patch.PhoneNumber
	}
	if patch.Address != nil {
		user.Address = *patch.Address
	}
	user.UpdatedAt = r.now().UTC()
	r.users[id] = user
	return user, nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) checkUniqueLocked(selfID string, name, email *string) error {
	for id, other := range r.users {
		if id == selfID {
			continue
		}
		if email != nil && other.Email == *email {
			return ErrDuplicateEmail
		}
		if name != nil && other.Name == *name {
			return ErrDuplicateName
		}
	}
	return nil
}
