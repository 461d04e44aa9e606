package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry(time.Minute, 10)
	defer r.Stop()

	s, err := New("anonymous", nil, "", false)
	require.NoError(t, err)
	require.NoError(t, r.Add(s))

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)

	r.Remove(s.ID)
	_, ok = r.Get(s.ID)
	assert.False(t, ok)
}

func TestRegistry_EnforcesSessionLimit(t *testing.T) {
	r := NewRegistry(time.Minute, 1)
	defer r.Stop()

	s1, _ := New("a", nil, "", false)
	require.NoError(t, r.Add(s1))

	s2, _ := New("b", nil, "", false)
	err := r.Add(s2)
	require.Error(t, err)
	var limitErr *SessionLimitExceededError
	assert.ErrorAs(t, err, &limitErr)
}

func TestRegistry_SweepsIdleSessions(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, 10)
	defer r.Stop()

	s, _ := New("anonymous", nil, "", false)
	require.NoError(t, r.Add(s))

	// Polls All rather than Get: Get touches the session and would keep it
	// from ever going idle.
	require.Eventually(t, func() bool {
		for _, other := range r.All() {
			if other.ID == s.ID {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_InvalidateAllBumpsEverySession(t *testing.T) {
	r := NewRegistry(time.Minute, 10)
	defer r.Stop()

	s, _ := New("anonymous", map[string]struct{}{"web": {}}, "", false)
	require.NoError(t, r.Add(s))

	assert.True(t, s.Admits("a", map[string]struct{}{"web": {}}))
	r.InvalidateAll()
	assert.False(t, s.Admits("a", map[string]struct{}{"other": {}}))
}
