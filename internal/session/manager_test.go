package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()

	mgr, err := NewManager(Config{
		HashKey:  []byte("0123456789abcdef0123456789abcdef"),
		Lifetime: time.Hour,
		Now: func() time.Time {
			return *now
		},
	})
	require.NoError(t, err)
	return mgr
}

func TestIssueAndResolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, &now)

	token, err := mgr.Issue("01HZXFORM")
	require.NoError(t, err)

	id, err := mgr.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, "01HZXFORM", id)
}

func TestResolveRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	now := time.Now()
	mgr := newTestManager(t, &now)

	token, err := mgr.Issue("form-a")
	require.NoError(t, err)

	_, err = mgr.Resolve(token + "x")
	require.True(t, errors.Is(err, ErrInvalidToken))

	_, err = mgr.Resolve("")
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewManager(Config{HashKey: []byte("another-key-another-key-another!")})
	require.NoError(t, err)
	_, err = other.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken, "tokens signed with a different key must not resolve")
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, &now)

	token, err := mgr.Issue("form-a")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = mgr.Resolve(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = mgr.Resolve(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	key, err := GenerateKey()
	require.NoError(t, err)
	require.Len(t, key, 32)

	mgr, err := NewManager(Config{HashKey: key})
	require.NoError(t, err)
	_, err = mgr.Issue("  ")
	require.Error(t, err)
}
