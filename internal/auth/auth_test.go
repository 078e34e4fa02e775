package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/microlearn/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	svc, err := NewServiceWithCost(s, bcrypt.MinCost)
	require.NoError(t, err)
	return svc, s
}

func TestRegisterVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "sam", "hunter22"))

	ok, err := svc.Verify(ctx, "sam", "hunter22")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(ctx, "sam", "wrong-pass")
	require.NoError(t, err)
	assert.False(t, ok)

	acc, err := svc.Account(ctx, "sam", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "sam", acc.Username)
	assert.NotEqual(t, "hunter22", acc.PasswordHash)
}

func TestRoundTripShortPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "pw1"))

	tests := []struct {
		username string
		password string
		want     bool
	}{
		{"alice", "pw1", true},
		{"alice", "wrongpw", false},
		{"bob", "x", false},
	}
	for _, tc := range tests {
		ok, err := svc.Verify(ctx, tc.username, tc.password)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "verify(%q, %q)", tc.username, tc.password)
	}
}

func TestAccountInvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw1"))

	acc, err := svc.Account(ctx, "alice", "wrongpw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, acc)

	acc, err = svc.Account(ctx, "bob", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, acc)
}

func TestVerifyUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	ok, err := svc.Verify(context.Background(), "ghost", "whatever")
	require.NoError(t, err)
	assert.False(t, ok)

	// The dummy password itself must not authenticate a missing account.
	ok, err = svc.Verify(context.Background(), "ghost", "microlearn-dummy-password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "sam", "first-pass"))
	err := svc.Register(ctx, "sam", "second-pass")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	count, err := s.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ok, _ := svc.Verify(ctx, "sam", "first-pass")
	assert.True(t, ok, "original password must still work")
}

func TestRegisterConcurrentSameName(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Register(ctx, "race", "password")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrUsernameTaken), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	count, _ := s.AccountCount(ctx)
	assert.Equal(t, 1, count)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "password"},
		{"short username", "ab", "password"},
		{"long username", strings.Repeat("a", 65), "password"},
		{"bad characters", "sam smith", "password"},
		{"empty password", "sam", ""},
		{"password over bcrypt limit", "sam", strings.Repeat("p", 73)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Register(context.Background(), tc.username, tc.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
