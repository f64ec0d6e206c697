package services

import (
	"context"
	"testing"
	"time"

	"camcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityTokenRoundTrip(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	identity := domain.Identity{ID: "user-1", DisplayName: "Alice"}

	token, err := svc.GenerateToken(identity)
	require.NoError(t, err)
	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestIdentityValidateRejectsBadTokens(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)

	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  error
	}{
		{
			"garbage",
			func(t *testing.T) string { return "not-a-token" },
			ErrInvalidToken,
		},
		{
			"wrong secret",
			func(t *testing.T) string {
				other := NewIdentityService("other-secret", time.Hour)
				token, err := other.GenerateToken(domain.Identity{ID: "user-1"})
				require.NoError(t, err)
				return token
			},
			ErrInvalidToken,
		},
		{
			"expired",
			func(t *testing.T) string {
				expired := NewIdentityService("test-secret", -time.Minute)
				token, err := expired.GenerateToken(domain.Identity{ID: "user-1"})
				require.NoError(t, err)
				return token
			},
			ErrExpiredToken,
		},
		{
			"empty user id",
			func(t *testing.T) string {
				token, err := svc.GenerateToken(domain.Identity{DisplayName: "Nobody"})
				require.NoError(t, err)
				return token
			},
			ErrInvalidToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIdentitySignInAndOut(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	token, err := svc.GenerateToken(domain.Identity{ID: "user-1", DisplayName: "Alice"})
	require.NoError(t, err)

	_, ok := svc.IsSignedIn("user-1")
	require.False(t, ok, "identity must not be signed in before SignIn")

	identity, err := svc.SignIn(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), identity.ID)
	_, ok = svc.IsSignedIn("user-1")
	assert.True(t, ok, "identity must be signed in after SignIn")

	svc.SignOut("user-1")
	_, ok = svc.IsSignedIn("user-1")
	assert.False(t, ok, "identity must be signed out after SignOut")
}

func TestIdentityWatchDeliversEvents(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.Watch(ctx)

	token, err := svc.GenerateToken(domain.Identity{ID: "user-1", DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = svc.SignIn(token)
	require.NoError(t, err)
	svc.SignOut("user-1")

	expect := func(kind domain.IdentityEventKind) {
		t.Helper()
		select {
		case event := <-events:
			assert.Equal(t, kind, event.Kind)
			assert.Equal(t, domain.UserID("user-1"), event.Identity.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
	expect(domain.IdentitySignedIn)
	expect(domain.IdentitySignedOut)
}

func TestIdentityRepeatSignInIsInert(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token, err := svc.GenerateToken(domain.Identity{ID: "user-1", DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = svc.SignIn(token)
	require.NoError(t, err)

	events := svc.Watch(ctx)
	_, err = svc.SignIn(token)
	require.NoError(t, err)

	select {
	case event := <-events:
		t.Errorf("unexpected event %+v for a repeat sign-in", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIdentityWatchBuffersBurstsWithoutLoss(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.Watch(ctx)

	// Publish a burst without draining; every event, and especially the
	// trailing sign-out, must still arrive in order.
	const users = 20
	for i := 0; i < users; i++ {
		id := domain.UserID(rune('a'+i%26)) + "-user"
		token, err := svc.GenerateToken(domain.Identity{ID: id})
		require.NoError(t, err)
		_, err = svc.SignIn(token)
		require.NoError(t, err)
	}
	token, err := svc.GenerateToken(domain.Identity{ID: "user-last"})
	require.NoError(t, err)
	_, err = svc.SignIn(token)
	require.NoError(t, err)
	svc.SignOut("user-last")

	var got []domain.IdentityEvent
	for len(got) < users+2 {
		select {
		case event := <-events:
			got = append(got, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("drained %d of %d events before timing out", len(got), users+2)
		}
	}
	last := got[len(got)-1]
	assert.Equal(t, domain.IdentitySignedOut, last.Kind)
	assert.Equal(t, domain.UserID("user-last"), last.Identity.ID)
}

func TestIdentitySignOutOfUnknownIsSilent(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.Watch(ctx)

	svc.SignOut("user-unknown")

	select {
	case event := <-events:
		t.Errorf("unexpected event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBoundIdentityFiltersEvents(t *testing.T) {
	svc := NewIdentityService("test-secret", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bound := svc.For("user-1")
	events := bound.Watch(ctx)

	for _, id := range []domain.UserID{"user-2", "user-1"} {
		token, err := svc.GenerateToken(domain.Identity{ID: id})
		require.NoError(t, err)
		_, err = svc.SignIn(token)
		require.NoError(t, err)
	}

	select {
	case event := <-events:
		assert.Equal(t, domain.UserID("user-1"), event.Identity.ID,
			"bound watcher must only see its own identity")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the bound event")
	}

	_, ok := bound.Current()
	assert.True(t, ok, "bound provider must report its identity signed in")
	svc.SignOut("user-1")
	_, ok = bound.Current()
	assert.False(t, ok, "bound provider must follow sign-out")
}
