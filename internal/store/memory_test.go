package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jjudge-oj/accountserver/types"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Create(ctx, types.User{Name: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	found, err := repo.FindByField(ctx, FieldEmail, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	address := "Main St"
	updated, err := repo.Update(ctx, created.ID, types.UserPatch{Address: &address})
	require.NoError(t, err)
	require.Equal(t, "Main St", updated.Address)
	require.Equal(t, "alice", updated.Name)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.GetByID(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, created.ID), ErrNotFound)
}

func TestMemoryUserRepositoryUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	alice, err := repo.Create(ctx, types.User{Name: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, types.User{Name: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{Name: "carol", Email: "a@x.com"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	_, err = repo.Create(ctx, types.User{Name: "alice", Email: "c@x.com"})
	require.ErrorIs(t, err, ErrDuplicateName)

	taken := "bob"
	_, err = repo.Update(ctx, alice.ID, types.UserPatch{Name: &taken})
	require.ErrorIs(t, err, ErrDuplicateName)

	// Keeping one's own values is not a collision.
	same := "a@x.com"
	_, err = repo.Update(ctx, alice.ID, types.UserPatch{Email: &same})
	require.NoError(t, err)
}

func TestMemoryUserRepositoryConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, types.User{Name: fmt.Sprintf("user-%d", i), Email: "same@x.com"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch err {
		case nil:
			ok++
		case ErrDuplicateEmail:
			dup++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 15, dup)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}
