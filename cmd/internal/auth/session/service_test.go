package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var (
	userAda   = User{ID: "42", Email: "ada@example.com", FullName: "Ada Lovelace", Role: "user"}
	userGrace = User{ID: "7", Email: "grace@example.com", FullName: "Grace Hopper", Role: "admin"}
)

func TestService_LoginAndValidateAccess(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{UserAgent: "firefox", IP: "203.0.113.9"})
	require.NoError(t, err)
	require.Equal(t, "42", iss.UserID)
	require.NotEmpty(t, iss.TokenID)
	require.Equal(t, testNow.Add(15*time.Minute), iss.AccessExpiresAt)
	require.Equal(t, testNow.Add(week), iss.RefreshExpiresAt)

	claims, err := f.svc.ValidateAccess(iss.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "42", claims.UserID)
	require.Equal(t, "ada@example.com", claims.Email)
	require.Equal(t, "Ada Lovelace", claims.FullName)
	require.Equal(t, "user", claims.Role)

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, iss.TokenID, sessions[0].TokenID)
	require.Equal(t, "firefox", sessions[0].UserAgent)
	require.Equal(t, "203.0.113.9", sessions[0].IP)

	require.Equal(t, []string{EventCreated}, f.audit.types())
}

func TestService_LoginRejectsUnknownAndBannedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "404", Metadata{})
	require.ErrorIs(t, err, ErrUserNotFound)

	banned := userAda
	banned.IsBanned = true
	f.putUser(banned)

	_, err = f.svc.Login(ctx, "42", Metadata{})
	require.ErrorIs(t, err, ErrAccountSuspended)

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestService_RefreshRotates(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "42", Metadata{UserAgent: "firefox"})
	require.NoError(t, err)

	f.advance(10 * time.Minute)

	second, err := f.svc.Refresh(ctx, "  "+first.RefreshToken+"\n", Metadata{UserAgent: "firefox"})
	require.NoError(t, err)
	require.NotEqual(t, first.TokenID, second.TokenID)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, f.clock.Now().Add(week), second.RefreshExpiresAt)

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, second.TokenID, sessions[0].TokenID)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.refreshes.WithLabelValues("ok")))
	require.Equal(t, []string{EventCreated, EventRotated}, f.audit.types())
}

// Theft simulation: the attacker and the victim both hold R1.
func TestService_ReplayOfRotatedTokenRevokesSuccessor(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.RefreshToken, Metadata{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.Equal(t, CodeSessionInvalid, PublicCode(err))

	_, err = f.svc.Refresh(ctx, second.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrSessionInvalid)

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Empty(t, sessions)

	require.Contains(t, f.audit.types(), EventReuseDetected)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.reuse))
}

func TestService_RefreshErrorsHideReason(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		reason string
		setup  func(t *testing.T, f *fixture) string
	}{
		{
			reason: ReasonNotFound,
			setup: func(t *testing.T, f *fixture) string {
				iss, err := f.svc.Login(ctx, "42", Metadata{})
				require.NoError(t, err)
				f.svc.Logout(ctx, "42", iss.TokenID)
				return iss.RefreshToken
			},
		},
		{
			reason: ReasonReuse,
			setup: func(t *testing.T, f *fixture) string {
				iss, err := f.svc.Login(ctx, "42", Metadata{})
				require.NoError(t, err)
				_, err = f.svc.Refresh(ctx, iss.RefreshToken, Metadata{})
				require.NoError(t, err)
				return iss.RefreshToken
			},
		},
		{
			reason: ReasonHashMismatch,
			setup: func(t *testing.T, f *fixture) string {
				iss, err := f.svc.Login(ctx, "42", Metadata{})
				require.NoError(t, err)
				_, err = f.registry.Create(ctx, "42", iss.TokenID, "some-other-token", Metadata{}, week)
				require.NoError(t, err)
				return iss.RefreshToken
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			f := newFixture(t)
			f.putUser(userAda)
			presented := tc.setup(t, f)

			_, err := f.svc.Refresh(ctx, presented, Metadata{})
			require.Equal(t, ErrSessionInvalid, err)
			require.NotContains(t, err.Error(), tc.reason)
			reason, _ := sessionReason(err)
			require.Empty(t, reason)

			// The reason still reaches the audit trail.
			f.audit.mu.Lock()
			last := f.audit.events[len(f.audit.events)-1]
			f.audit.mu.Unlock()
			require.Equal(t, tc.reason, last.Reason)
		})
	}
}

func TestService_TwoDevicesLogoutAll(t *testing.T) {
	f := newFixture(t)
	f.putUser(userGrace)
	ctx := context.Background()

	laptop, err := f.svc.Login(ctx, "7", Metadata{UserAgent: "laptop"})
	require.NoError(t, err)
	f.advance(time.Second)
	phone, err := f.svc.Login(ctx, "7", Metadata{UserAgent: "phone"})
	require.NoError(t, err)

	sessions, err := f.svc.ListSessions(ctx, "7")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "laptop", sessions[0].UserAgent)
	require.Equal(t, "phone", sessions[1].UserAgent)

	n, err := f.svc.LogoutAll(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	sessions, err = f.svc.ListSessions(ctx, "7")
	require.NoError(t, err)
	require.Empty(t, sessions)

	for _, iss := range []Issued{laptop, phone} {
		_, err := f.svc.Refresh(ctx, iss.RefreshToken, Metadata{})
		require.ErrorIs(t, err, ErrSessionInvalid)
	}
}

func TestService_LogoutSingleSession(t *testing.T) {
	f := newFixture(t)
	f.putUser(userGrace)
	ctx := context.Background()

	laptop, err := f.svc.Login(ctx, "7", Metadata{})
	require.NoError(t, err)
	phone, err := f.svc.Login(ctx, "7", Metadata{})
	require.NoError(t, err)

	f.svc.Logout(ctx, "7", laptop.TokenID)
	f.svc.Logout(ctx, "7", laptop.TokenID)

	_, err = f.svc.Refresh(ctx, laptop.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrSessionInvalid)

	// A logged-out session is not a theft signal; the other device survives.
	_, err = f.svc.Refresh(ctx, phone.RefreshToken, Metadata{})
	require.NoError(t, err)

	// Access tokens are stateless and outlive logout until they expire.
	_, err = f.svc.ValidateAccess(laptop.AccessToken)
	require.NoError(t, err)
}

func TestService_LogoutToken(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	f.svc.LogoutToken(ctx, "garbage")
	f.svc.LogoutToken(ctx, "")
	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	f.svc.LogoutToken(ctx, iss.RefreshToken)
	sessions, err = f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestService_RefreshBannedUserRevokesEverything(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	a, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	banned := userAda
	banned.IsBanned = true
	f.putUser(banned)

	_, err = f.svc.Refresh(ctx, a.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrAccountSuspended)
	require.Equal(t, CodeAccountSuspended, PublicCode(err))

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestService_RefreshDeletedUserRevokesOnlyThatSession(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	a, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)
	b, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	f.deleteUser("42")

	_, err = f.svc.Refresh(ctx, a.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrUserNotFound)

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, b.TokenID, sessions[0].TokenID)
}

func TestService_ConcurrentRefreshExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	const n = 8
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		errs    = make([]error, n)
		results = make([]Issued, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.svc.Refresh(ctx, iss.RefreshToken, Metadata{})
		}()
	}
	close(start)
	wg.Wait()

	wins := 0
	var winner Issued
	for i, err := range errs {
		if err == nil {
			wins++
			winner = results[i]
			continue
		}
		require.ErrorIs(t, err, ErrSessionInvalid)
	}
	require.Equal(t, 1, wins)

	// The index and the records agree, and nothing but the winner can remain.
	requireIndexMatchesRecords(t, f.mr, f.registry.prefix, "42")
	require.False(t, f.mr.Exists(f.registry.sessionKey("42", iss.TokenID)))

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.LessOrEqual(t, len(sessions), 1)
	if !slices.Contains(f.audit.types(), EventReuseDetected) {
		require.Len(t, sessions, 1)
	}
	// A loser that hit the tombstone may have revoked the winner too.
	if len(sessions) == 1 {
		require.Equal(t, winner.TokenID, sessions[0].TokenID)
	} else {
		_, err = f.svc.Refresh(ctx, winner.RefreshToken, Metadata{})
		require.ErrorIs(t, err, ErrSessionInvalid)
	}

	n2, err := f.svc.LogoutAll(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, len(sessions), n2)
	requireIndexMatchesRecords(t, f.mr, f.registry.prefix, "42")
}

func TestService_RefreshInputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "   ", Metadata{})
	require.ErrorIs(t, err, ErrMissingToken)
	require.Equal(t, CodeMissingToken, PublicCode(err))

	_, err = f.svc.Refresh(ctx, strings.Repeat("x", 4097), Metadata{})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, "not.a.jwt", Metadata{})
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Equal(t, CodeInvalidToken, PublicCode(err))

	_, err = f.svc.ValidateAccess("")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestService_AccessTokenIsNotARefreshToken(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, iss.AccessToken, Metadata{})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.ValidateAccess(iss.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_ExpiredRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	f.advance(week + time.Minute)

	_, err = f.svc.Refresh(ctx, iss.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, ErrTokenExpired)

	sessions, err := f.svc.ListSessions(ctx, "42")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestService_StoreOutageFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	f.mr.Close()

	out, err := f.svc.Refresh(ctx, iss.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, Issued{}, out)
	require.Equal(t, CodeStoreUnavailable, PublicCode(err))

	out, err = f.svc.Login(ctx, "42", Metadata{})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, Issued{}, out)

	_, err = f.svc.LogoutAll(ctx, "42")
	require.ErrorIs(t, err, ErrStoreUnavailable)

	// Best-effort logout swallows the failure.
	f.svc.Logout(ctx, "42", iss.TokenID)
}

func TestService_UserLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.putUser(userAda)
	ctx := context.Background()

	iss, err := f.svc.Login(ctx, "42", Metadata{})
	require.NoError(t, err)

	broken, err := NewService(jwtTestConfig(), mustCodec(t, jwtTestConfig()), f.registry,
		func(context.Context, string) (User, bool, error) {
			return User{}, false, errors.New("db down")
		},
		WithClock(f.clock.Now),
	)
	require.NoError(t, err)

	_, err = broken.Refresh(ctx, iss.RefreshToken, Metadata{})
	require.ErrorIs(t, err, ErrStoreUnavailable)

	// The session survives an infrastructure failure.
	_, err = f.svc.Refresh(ctx, iss.RefreshToken, Metadata{})
	require.NoError(t, err)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(jwtTestConfig(), nil, nil, nil)
	require.Error(t, err)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.login("ok")
	m.refresh("ok")
	m.revoked("logout", 1)
	m.reuseDetected()
}
